// Package document implements the pure mutation engine and the wire
// codec for room chat documents. Nothing in this package performs I/O;
// every function returns a fresh document value and leaves its inputs
// untouched, so callers can race reads against mutations freely.
package document

import (
	"fmt"
	"time"

	"github.com/dittotube/watchparty/internal/models"
)

// NewMessage builds a message authored by user. The id combines the
// client-local clock with the author id, which makes accidental
// collisions across clients astronomically unlikely without being a
// cryptographic guarantee. When replyTo is non-nil a snapshot of it is
// embedded in the new message.
func NewMessage(author models.User, text string, replyTo *models.Message) models.Message {
	now := time.Now()

	msg := models.Message{
		ID:        fmt.Sprintf("%d-%s", now.UnixMilli(), author.ID),
		User:      author,
		Text:      text,
		Timestamp: now.Format("15:04"),
	}

	if replyTo != nil {
		snapshot := cloneMessage(*replyTo)
		msg.ReplyTo = &snapshot
	}

	return msg
}

// Append returns a new document with msg added at the end.
func Append(doc models.ChatDocument, msg models.Message) models.ChatDocument {
	next := make(models.ChatDocument, 0, len(doc)+1)
	next = append(next, doc...)
	return append(next, msg)
}

// Remove returns a new document without the given message. An unknown
// id is a no-op, not an error: a delete racing another client's delete
// is an expected, recoverable case.
func Remove(doc models.ChatDocument, messageID string) models.ChatDocument {
	if doc.Find(messageID) == nil {
		return doc
	}

	next := make(models.ChatDocument, 0, len(doc)-1)
	for _, msg := range doc {
		if msg.ID == messageID {
			continue
		}
		next = append(next, msg)
	}
	return next
}

// ToggleReaction flips userID's membership in the emoji's reaction set
// on the given message. Removing the last member deletes the emoji key
// entirely, so an empty set never appears on the wire. An unknown
// message id is a no-op.
func ToggleReaction(doc models.ChatDocument, messageID, emoji, userID string) models.ChatDocument {
	idx := -1
	for i := range doc {
		if doc[i].ID == messageID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return doc
	}

	next := make(models.ChatDocument, len(doc))
	copy(next, doc)

	msg := cloneMessage(next[idx])

	users := msg.Reactions[emoji]
	removed := false
	for i, id := range users {
		if id == userID {
			users = append(users[:i:i], users[i+1:]...)
			removed = true
			break
		}
	}
	if !removed {
		users = append(users, userID)
	}

	if msg.Reactions == nil {
		msg.Reactions = make(map[string][]string, 1)
	}
	if len(users) == 0 {
		delete(msg.Reactions, emoji)
	} else {
		msg.Reactions[emoji] = users
	}
	if len(msg.Reactions) == 0 {
		msg.Reactions = nil
	}

	next[idx] = msg
	return next
}

func cloneMessage(msg models.Message) models.Message {
	if msg.Reactions != nil {
		reactions := make(map[string][]string, len(msg.Reactions))
		for emoji, users := range msg.Reactions {
			reactions[emoji] = append([]string(nil), users...)
		}
		msg.Reactions = reactions
	}
	return msg
}

package models

// User identifies a chat participant for the lifetime of one session.
// The id is generated client-side; uniqueness is only as strong as the
// random component behind it.
type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar"`
}

// Message is a single entry in a room's chat document.
//
// ReplyTo embeds a snapshot of the referenced message taken at reply
// time, not a live reference. The snapshot survives deletion of the
// original and does not pick up later reactions to it.
//
// Reactions maps an emoji to the ids of the users who toggled it on.
// An emoji key with an empty user list must never appear; the key is
// removed instead.
type Message struct {
	ID        string              `json:"id"`
	User      User                `json:"user"`
	Text      string              `json:"text"`
	Timestamp string              `json:"timestamp"`
	ReplyTo   *Message            `json:"replyTo,omitempty"`
	Reactions map[string][]string `json:"reactions,omitempty"`
}

// ChatDocument is the full ordered history of a room, oldest first.
// It is always serialized, published, and replaced as a whole; a
// mutation never edits a document in place.
type ChatDocument []Message

// Find returns the message with the given id, or nil.
func (d ChatDocument) Find(messageID string) *Message {
	for i := range d {
		if d[i].ID == messageID {
			return &d[i]
		}
	}
	return nil
}

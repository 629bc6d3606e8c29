package document

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dittotube/watchparty/internal/models"
)

var (
	alice = models.User{ID: "user-1", Username: "alice", AvatarURL: "https://i.pravatar.cc/40?u=alice"}
	bob   = models.User{ID: "user-2", Username: "bob", AvatarURL: "https://i.pravatar.cc/40?u=bob"}
)

func TestNewMessageIDCarriesAuthor(t *testing.T) {
	msg := NewMessage(alice, "hello", nil)

	require.True(t, strings.HasSuffix(msg.ID, "-"+alice.ID))
	require.Equal(t, alice, msg.User)
	require.Equal(t, "hello", msg.Text)
	require.NotEmpty(t, msg.Timestamp)
	require.Nil(t, msg.ReplyTo)
}

func TestAppendDoesNotMutateInput(t *testing.T) {
	original := models.ChatDocument{NewMessage(alice, "first", nil)}

	next := Append(original, NewMessage(bob, "second", nil))

	require.Len(t, original, 1)
	require.Len(t, next, 2)
	require.Equal(t, "first", next[0].Text)
	require.Equal(t, "second", next[1].Text)
}

func TestRemoveUnknownIDIsNoOp(t *testing.T) {
	doc := models.ChatDocument{NewMessage(alice, "keep me", nil)}

	next := Remove(doc, "missing-id")

	require.Equal(t, doc, next)
}

func TestRemoveDropsMessage(t *testing.T) {
	first := NewMessage(alice, "first", nil)
	second := models.Message{ID: "fixed-id", User: bob, Text: "second", Timestamp: "10:00"}
	doc := models.ChatDocument{first, second}

	next := Remove(doc, "fixed-id")

	require.Len(t, next, 1)
	require.Equal(t, first.ID, next[0].ID)
	require.Len(t, doc, 2)
}

func TestToggleReactionAddsAndRemoves(t *testing.T) {
	msg := models.Message{ID: "m1", User: alice, Text: "hi", Timestamp: "10:00"}
	doc := models.ChatDocument{msg}

	reacted := ToggleReaction(doc, "m1", "👍", bob.ID)
	require.Equal(t, []string{bob.ID}, reacted[0].Reactions["👍"])
	require.Nil(t, doc[0].Reactions, "input document must stay untouched")

	cleared := ToggleReaction(reacted, "m1", "👍", bob.ID)
	require.Nil(t, cleared[0].Reactions, "last member removal must delete the emoji key")
	require.Equal(t, doc, cleared, "double toggle is an involution")
}

func TestToggleReactionKeepsOtherMembers(t *testing.T) {
	msg := models.Message{
		ID: "m1", User: alice, Text: "hi", Timestamp: "10:00",
		Reactions: map[string][]string{"🔥": {alice.ID, bob.ID}},
	}
	doc := models.ChatDocument{msg}

	next := ToggleReaction(doc, "m1", "🔥", alice.ID)

	require.Equal(t, []string{bob.ID}, next[0].Reactions["🔥"])
	require.Equal(t, []string{alice.ID, bob.ID}, doc[0].Reactions["🔥"])
}

func TestToggleReactionUnknownMessageIsNoOp(t *testing.T) {
	doc := models.ChatDocument{NewMessage(alice, "hi", nil)}

	next := ToggleReaction(doc, "missing", "👍", bob.ID)

	require.Equal(t, doc, next)
}

func TestReactionInvariantHoldsAcrossSequences(t *testing.T) {
	doc := models.ChatDocument{
		{ID: "m1", User: alice, Text: "one", Timestamp: "10:00"},
		{ID: "m2", User: bob, Text: "two", Timestamp: "10:01"},
	}

	steps := []struct {
		messageID string
		emoji     string
		userID    string
	}{
		{"m1", "👍", alice.ID},
		{"m1", "👍", bob.ID},
		{"m2", "🔥", alice.ID},
		{"m1", "👍", alice.ID},
		{"m2", "🔥", alice.ID},
		{"m1", "👍", bob.ID},
	}

	for _, step := range steps {
		doc = ToggleReaction(doc, step.messageID, step.emoji, step.userID)
		for _, msg := range doc {
			for emoji, users := range msg.Reactions {
				require.NotEmptyf(t, users, "emoji %q must not keep an empty set", emoji)
			}
		}
	}
}

func TestReplySnapshotSurvivesRemoval(t *testing.T) {
	original := models.Message{ID: "m1", User: alice, Text: "original", Timestamp: "10:00"}
	doc := models.ChatDocument{original}

	reply := NewMessage(bob, "replying", &original)
	doc = Append(doc, reply)
	doc = Remove(doc, "m1")

	require.Len(t, doc, 1)
	require.NotNil(t, doc[0].ReplyTo)
	require.Equal(t, "original", doc[0].ReplyTo.Text)
	require.Equal(t, alice.ID, doc[0].ReplyTo.User.ID)
}

func TestReplySnapshotIgnoresLaterReactions(t *testing.T) {
	original := models.Message{ID: "m1", User: alice, Text: "original", Timestamp: "10:00"}
	doc := models.ChatDocument{original}

	reply := NewMessage(bob, "replying", &original)
	doc = Append(doc, reply)
	doc = ToggleReaction(doc, "m1", "👍", bob.ID)

	require.Equal(t, []string{bob.ID}, doc[0].Reactions["👍"])
	require.Nil(t, doc[1].ReplyTo.Reactions, "snapshot must not track the live message")
}

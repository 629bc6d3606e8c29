package dto

import (
	"github.com/dittotube/watchparty/internal/models"
)

// ChatActionRequest is a mutation frame sent by a UI socket. Exactly
// one action applies per frame; fields irrelevant to the action are
// ignored.
type ChatActionRequest struct {
	Action    string `json:"action" validate:"required,oneof=send react delete"`
	Text      string `json:"text" validate:"required_if=Action send,max=4000"`
	ReplyToID string `json:"reply_to_id,omitempty"`
	MessageID string `json:"message_id,omitempty" validate:"required_unless=Action send,max=128"`
	Emoji     string `json:"emoji,omitempty" validate:"required_if=Action react,max=16"`
}

// ChatSocketEvent is pushed to UI sockets whenever the room document
// or the connection status changes. Messages always carries the full
// document; the UI replaces, never merges.
type ChatSocketEvent struct {
	Type      string           `json:"type"`
	Room      string           `json:"room,omitempty"`
	Status    string           `json:"status"`
	Destroyed bool             `json:"destroyed,omitempty"`
	Messages  []models.Message `json:"messages"`
}

// NewChatSocketEvent builds the document snapshot event for UI sockets.
func NewChatSocketEvent(room, status string, destroyed bool, doc models.ChatDocument) ChatSocketEvent {
	messages := make([]models.Message, 0, len(doc))
	messages = append(messages, doc...)

	return ChatSocketEvent{
		Type:      "document",
		Room:      room,
		Status:    status,
		Destroyed: destroyed,
		Messages:  messages,
	}
}

package dto

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
)

func TestChatActionRequestValidation(t *testing.T) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	cases := []struct {
		name  string
		frame ChatActionRequest
		ok    bool
	}{
		{"send with text", ChatActionRequest{Action: "send", Text: "hello"}, true},
		{"send with reply", ChatActionRequest{Action: "send", Text: "hello", ReplyToID: "m1"}, true},
		{"send without text", ChatActionRequest{Action: "send"}, false},
		{"react", ChatActionRequest{Action: "react", MessageID: "m1", Emoji: "👍"}, true},
		{"react without emoji", ChatActionRequest{Action: "react", MessageID: "m1"}, false},
		{"react without message id", ChatActionRequest{Action: "react", Emoji: "👍"}, false},
		{"delete", ChatActionRequest{Action: "delete", MessageID: "m1"}, true},
		{"delete without message id", ChatActionRequest{Action: "delete"}, false},
		{"unknown action", ChatActionRequest{Action: "edit", MessageID: "m1"}, false},
		{"missing action", ChatActionRequest{Text: "hello"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validate.Struct(tc.frame)
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}

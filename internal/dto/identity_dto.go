package dto

import "github.com/dittotube/watchparty/internal/models"

// IdentitySetupRequest carries the locally chosen username.
type IdentitySetupRequest struct {
	Username string `json:"username" validate:"required,min=2,max=32"`
}

// IdentityResponse is the session user returned to the UI.
type IdentityResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// NewIdentityResponse converts a session user into a DTO.
func NewIdentityResponse(user models.User) IdentityResponse {
	return IdentityResponse{
		ID:       user.ID,
		Username: user.Username,
		Avatar:   user.AvatarURL,
	}
}

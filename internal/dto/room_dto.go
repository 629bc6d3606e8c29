package dto

// RoomEnterRequest carries the free-text room name typed by the user.
type RoomEnterRequest struct {
	Name string `json:"name" validate:"required,min=1,max=128"`
}

// RoomDestroyRequest confirms room destruction with the shared passcode.
type RoomDestroyRequest struct {
	Passcode string `json:"passcode" validate:"required,max=32"`
}

// RoomStatusResponse reports the active room and connection status.
type RoomStatusResponse struct {
	Slug      string `json:"slug,omitempty"`
	Status    string `json:"status"`
	Destroyed bool   `json:"destroyed,omitempty"`
	Messages  int    `json:"messages"`
}

package dto

// VideoLookupRequest carries a pasted video link or a bare video id.
type VideoLookupRequest struct {
	Link string `json:"link" validate:"required,max=512"`
}

// VideoInfoResponse is the metadata returned for a looked-up video.
// Field names follow the oEmbed payload the original lookup endpoint
// returns.
type VideoInfoResponse struct {
	Title      string `json:"title"`
	AuthorName string `json:"author_name"`
}

package dto

import "time"

// VideoSavedEvent is published to the platform exchange once a check-in
// record carries its durable video reference.
type VideoSavedEvent struct {
	UserID          string    `json:"userId"`
	Date            string    `json:"date"`
	VideoURL        string    `json:"videoUrl"`
	DurationSeconds int       `json:"durationSeconds"`
	SizeBytes       int64     `json:"sizeBytes"`
	SavedAt         time.Time `json:"savedAt"`
}

type SubmitRequest struct {
	UserID string  `json:"userId" binding:"required"`
	Date   string  `json:"date" binding:"required"`
	Notes  *string `json:"notes"`
}

type StateResponse struct {
	State           string `json:"state"`
	Progress        int    `json:"progress"`
	DeviceAvailable bool   `json:"deviceAvailable"`
	ElapsedSeconds  int    `json:"elapsedSeconds"`
	Error           string `json:"error,omitempty"`
}

type StopResponse struct {
	DurationSeconds int    `json:"durationSeconds"`
	SizeBytes       int64  `json:"sizeBytes"`
	MimeType        string `json:"mimeType"`
	PreviewPath     string `json:"previewPath"`
}

type SubmitResponse struct {
	VideoURL string `json:"videoUrl"`
}

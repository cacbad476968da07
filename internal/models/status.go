package models

import "time"

// Upload status values reported back once a batch reaches a terminal state.
const (
	UploadStatusCompleted = "completed"
	UploadStatusFailed    = "failed"
)

// UploadStatus is the body sent to the upload status endpoint.
type UploadStatus struct {
	Status                 string `json:"status"`
	Info                   string `json:"info,omitempty"`
	FailedRecordsObjectKey string `json:"failedRecordsObjectKey,omitempty"`
}

// StatusReport describes the terminal state of one upload. The HTTP status
// endpoint receives Update; the Kafka status topic receives the whole report.
type StatusReport struct {
	UploadID  string       `json:"upload_id"`
	ObjectKey string       `json:"object_key"`
	Update    UploadStatus `json:"update"`
	Total     int          `json:"total"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Timestamp time.Time    `json:"timestamp"`
}

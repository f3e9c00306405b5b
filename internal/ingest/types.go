package ingest

import "time"

// JournalContentType is the media type of the journal export format.
const JournalContentType = "application/vnd.fdo.journal"

// Config holds intake server settings.
type Config struct {
	Listen            string
	MaxBodySize       int64 // 0 means unlimited
	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration
	MaxLineSize       int
	MaxFieldSize      int64
}

// UploadResponse is the body of a completed upload.
type UploadResponse struct {
	StreamID string `json:"stream_id"`
	Entries  int    `json:"entries"`
	Bytes    int64  `json:"bytes"`
	Aborted  bool   `json:"aborted"`
	Reason   string `json:"reason,omitempty"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	QueueDepth    int    `json:"queue_depth"`
	Workers       int    `json:"workers"`
	Streams       int64  `json:"streams"`
	ActiveStreams int64  `json:"active_streams"`
	Entries       int64  `json:"entries"`
	Aborted       int64  `json:"aborted"`
}

// ErrorResponse is the body of any failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

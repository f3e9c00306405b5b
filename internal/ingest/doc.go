// Package ingest is the HTTP intake for journal export uploads.
//
// It accepts the stream produced by systemd-journal-upload (or any client
// POSTing the export format) and feeds it, still streaming, to the journal
// parser. Each request is one parse session with its own stream id.
//
// # Routes
//
//   - POST /upload, POST /* : journal upload
//   - GET /healthz           : liveness and counters
//   - GET /metrics           : Prometheus exposition
//   - GET /events            : server-sent adapter events
//
// # Upload Responses
//
//   - 200 OK: the stream was parsed to its end, or until a framing error
//     stopped it (reported in the body as aborted with a reason)
//   - 413 Payload Too Large: the body exceeded server.max_body_size
//   - 415 Unsupported Media Type: unknown Content-Encoding
//   - 400 Bad Request: the compressed body could not be opened
//   - 500 Internal Server Error: wrong Content-Type, or the body could not
//     be read
//
// Supported Content-Encoding values are gzip, deflate, zstd and lz4.
package ingest

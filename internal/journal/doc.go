// Package journal parses the systemd journal export format.
//
// An export stream is a sequence of entries. Each entry is a run of field
// lines terminated by a blank line. A field line is either
//
//	KEY=VALUE\n
//
// or, for values that may contain arbitrary bytes,
//
//	KEY\n<8 byte little-endian length><payload>\n
//
// Parse reads one stream sequentially and hands every completed entry to a
// Sink. A stream that ends without a trailing blank line loses its last
// entry. A framing error (truncated length header, bad payload terminator,
// truncated line) stops the stream; entries emitted before it stay emitted,
// the entry being assembled is discarded.
//
// Invalid UTF-8 in names or values is replaced with U+FFFD and counted in
// Stats.InvalidUTF8.
package journal

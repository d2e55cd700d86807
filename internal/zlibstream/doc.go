// Package zlibstream decompresses the gateway's transport-compressed frame
// stream.
//
// With zlib-stream compression the gateway runs a single zlib stream for the
// whole lifetime of a connection. Each websocket binary frame carries the
// next slice of that stream, and a complete message is delimited by a
// Z_SYNC_FLUSH marker (the bytes 00 00 FF FF) at the end of a frame. The
// inflater therefore has to:
//
//   - Accumulate frames until the marker arrives, since the gateway may
//     split one message across several frames (and the marker itself can
//     straddle a frame boundary).
//   - Carry the LZ77 window across messages: later messages back-reference
//     plaintext from earlier ones, so each message is inflated with the
//     last 32 KiB of cumulative output as its preset dictionary.
//
// The inflater is not safe for concurrent use; each connection owns one.
package zlibstream

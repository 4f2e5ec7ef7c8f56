// Package transport provides the chunk sources the streaming pipeline
// pulls from: a chunked HTTP implementation carrying line-delimited JSON
// frames, and a WebSocket implementation carrying one frame per message.
package transport

import "context"

// ChunkSource is an upstream producer of raw notification chunks.
//
// Demand is caller-driven and single-item: the consumer calls Next only
// when it is ready for exactly one more chunk, and implementations must
// not read ahead of that demand. Next blocks until a chunk arrives, the
// context is cancelled, or the source fails.
//
// Cancel requests cancellation of the underlying connection. It is
// idempotent and safe to call concurrently with Next; a blocked Next
// returns an error once Cancel has taken effect.
type ChunkSource interface {
	Next(ctx context.Context) ([]byte, error)
	Cancel() error
}

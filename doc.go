// Package docstream is a client driver for a document database's query
// and change-notification protocol.
//
// A Client issues point queries against the database's HTTP endpoint and
// opens change-notification streams over HTTP chunked responses or
// WebSocket. Streams are snapshot-consistent: the driver loads a document
// snapshot when the stream opens and filters out live events whose
// effects the snapshot already contains, so a consumer observes one
// coherent sequence with no gap and no replay.
//
// Responses and events are decoded into the typed Value model of the
// values package. The client tracks the highest transaction timestamp it
// has observed and replays it to the server on every query, which gives a
// single client session read-your-writes consistency across connections.
package docstream

// Package stream turns a raw chunk source into an ordered feed of typed
// document events.
//
// The pipeline has two stages. ChunkStage decodes NDJSON chunks into
// values, records transaction watermarks, and terminates the stream on
// protocol-fatal conditions such as permission revocation. SnapshotStage
// sits downstream and guarantees snapshot consistency: on the start event
// it loads a document snapshot, establishes a watermark from the
// snapshot's timestamp, and drops any live event at or below it so a
// consumer never observes state older than the snapshot it was handed.
//
// Both stages forward events on unbuffered channels, so a slow consumer
// exerts backpressure all the way to the transport read loop: at most one
// event is in flight per stage. A Subscription terminates with at most
// one error and cancels its upstream exactly once. The Supervisor runs
// beside the pipeline and injects a fatal error when a health probe
// reports the connection dead.
package stream

// Package publisher relays replication status from the bridge to external
// systems.
//
// # Architecture
//
// A Registry owns the bridge's single subscription. Events arrive on a
// buffered ChannelSink and a relay goroutine handles them one at a time:
//
//  1. The event becomes a Record (sequence, node id, token or ERROR, time)
//  2. A GlobFilter over the token decides whether it is published
//  3. Every Worker encodes the record and publishes it with retry
//
// Records are published to every sink in bridge order. A sink that keeps
// failing delays the relay by at most its retry budget; the ChannelSink
// then absorbs the backlog and the bridge drops what does not fit.
//
// # Sinks and formats
//
// Sinks and transformers are created by type through factories registered
// with RegisterSink and RegisterTransformer. The msgpack and json formats are
// built in; the publisher/sink package registers the kafka, nats and log
// sinks and is imported for its side effects:
//
//	import _ "github.com/maxpert/statusbridge/publisher/sink"
//
// # Filtering
//
// Patterns use gobwas/glob syntax against the published token:
//
//	filter_tokens = ["ERROR", "OFF*"]   # errors and OFFLINE only
//
// An empty pattern list publishes everything.
package publisher

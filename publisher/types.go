package publisher

import (
	"time"

	"github.com/maxpert/statusbridge/status"
)

// ErrorToken is the token published for error notifications
const ErrorToken = "ERROR"

// Record is a single status event as published to external systems
type Record struct {
	Seq    uint64                    `msgpack:"seq" json:"seq"`                         // Monotonic per relay
	NodeID uint64                    `msgpack:"node" json:"node_id"`                    // Publishing node
	Token  string                    `msgpack:"token" json:"token"`                     // Status token or ERROR
	Error  *status.ErrorNotification `msgpack:"error,omitempty" json:"error,omitempty"` // Set for ERROR only
	TS     int64                     `msgpack:"ts" json:"ts"`                           // Relay time (unix ms)
}

// NewRecord converts a bridge event into a publishable record
func NewRecord(seq, nodeID uint64, event status.Event, at time.Time) Record {
	rec := Record{
		Seq:    seq,
		NodeID: nodeID,
		Token:  event.Token,
		TS:     at.UnixMilli(),
	}
	if event.Err != nil {
		errCopy := *event.Err
		rec.Token = ErrorToken
		rec.Error = &errCopy
	}
	return rec
}

// Sink represents a destination for status records (e.g., Kafka, NATS, log)
type Sink interface {
	// Publish sends an encoded record to the sink
	Publish(topic string, key string, value []byte) error
	// Close releases any resources held by the sink
	Close() error
}

// Transformer encodes records for a sink
type Transformer interface {
	Transform(rec Record) ([]byte, error)
}

// Filter determines whether a record should be published
type Filter interface {
	// Match returns true if records with this token should be published
	Match(token string) bool
}

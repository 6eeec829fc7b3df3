// Package pubsub wraps NATS publish so the Dispatcher can fire Pub-kind
// callbacks, per SPEC_FULL.md §4.D.
package pubsub

import (
	"github.com/nats-io/nats.go"
)

// Publisher publishes a payload to a subject.
type Publisher interface {
	Publish(subject string, headers map[string]string, payload []byte) error
}

// NATSPublisher publishes over an established NATS connection.
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher wraps an already-connected *nats.Conn.
func NewNATSPublisher(conn *nats.Conn) *NATSPublisher {
	return &NATSPublisher{conn: conn}
}

// Publish sends payload as a NATS message, carrying headers when the
// server supports them.
func (p *NATSPublisher) Publish(subject string, headers map[string]string, payload []byte) error {
	msg := nats.NewMsg(subject)
	msg.Data = payload
	for k, v := range headers {
		msg.Header.Set(k, v)
	}
	return p.conn.PublishMsg(msg)
}

// Connect dials NATS with the given options, matching SPEC_FULL.md §6.2's
// NATS_HOST/NATS_PORT/NATS_USER/NATS_PASSWORD configuration.
func Connect(url string, opts ...nats.Option) (*nats.Conn, error) {
	return nats.Connect(url, opts...)
}

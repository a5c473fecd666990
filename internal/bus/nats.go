package bus

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATSPublisher publishes events as JSON to NATS subjects
// "<prefix>.<channel>". The UI collaborator subscribes to the same subjects.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

// ConnectNATS connects to the broker and returns a publisher.
func ConnectNATS(url, prefix string) (*NATSPublisher, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	conn, err := nats.Connect(url, nats.Name("skillforge"))
	if err != nil {
		return nil, fmt.Errorf("connecting to event bus: %w", err)
	}
	return &NATSPublisher{conn: conn, prefix: prefix}, nil
}

// Publish marshals the payload and publishes it on the channel's subject.
func (p *NATSPublisher) Publish(channel string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", channel, err)
	}
	subject := channel
	if p.prefix != "" {
		subject = p.prefix + "." + channel
	}
	return p.conn.Publish(subject, data)
}

// Close flushes pending publishes and closes the connection.
func (p *NATSPublisher) Close() error {
	if err := p.conn.Flush(); err != nil {
		p.conn.Close()
		return err
	}
	p.conn.Close()
	return nil
}

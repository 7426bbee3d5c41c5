package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Frame is one push message. An empty SocketID means every socket.
type Frame struct {
	Event    string          `json:"event"`
	Data     json.RawMessage `json:"data"`
	SocketID string          `json:"socketId,omitempty"`
	Origin   string          `json:"origin,omitempty"`
}

// Relay carries frames to sockets owned by other instances.
type Relay interface {
	// Publish sends f to instance, or to every instance when instance is "".
	Publish(ctx context.Context, instance string, f Frame) error
	Subscribe(instance string, deliver func(Frame)) error
	Close() error
}

type NoopRelay struct{}

func (NoopRelay) Publish(context.Context, string, Frame) error { return nil }
func (NoopRelay) Subscribe(string, func(Frame)) error          { return nil }
func (NoopRelay) Close() error                                 { return nil }

const (
	subjectPrefix    = "eventapi.push."
	subjectBroadcast = subjectPrefix + "all"
)

type NATSRelay struct {
	conn *nats.Conn
	subs []*nats.Subscription
}

func NewNATSRelay(url string, opts ...nats.Option) (*NATSRelay, error) {
	defaults := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSRelay{conn: nc}, nil
}

func (r *NATSRelay) Publish(_ context.Context, instance string, f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshaling frame: %w", err)
	}
	subject := subjectBroadcast
	if instance != "" {
		subject = subjectPrefix + instance
	}
	return r.conn.Publish(subject, data)
}

// Subscribe listens on the instance subject and on the broadcast subject.
func (r *NATSRelay) Subscribe(instance string, deliver func(Frame)) error {
	handler := func(msg *nats.Msg) {
		var f Frame
		if err := json.Unmarshal(msg.Data, &f); err != nil {
			slog.Warn("realtime: dropping malformed frame", "subject", msg.Subject, "error", err)
			return
		}
		deliver(f)
	}
	for _, subject := range []string{subjectPrefix + instance, subjectBroadcast} {
		sub, err := r.conn.Subscribe(subject, handler)
		if err != nil {
			return fmt.Errorf("subscribing to %s: %w", subject, err)
		}
		r.subs = append(r.subs, sub)
	}
	// registered on the server before anyone publishes to us
	if err := r.conn.Flush(); err != nil {
		return fmt.Errorf("flushing subscription: %w", err)
	}
	return nil
}

func (r *NATSRelay) Close() error {
	for _, s := range r.subs {
		_ = s.Unsubscribe()
	}
	r.conn.Close()
	return nil
}

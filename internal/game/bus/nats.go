package bus

import (
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/cory-johannsen/hetman/internal/game/event"
)

// Publisher is the subset of *nats.Conn the mirror needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Subject returns the mirror subject for a room notice: <prefix>.<code>.<type>.
func Subject(prefix, code string, t event.Type) string {
	return fmt.Sprintf("%s.%s.%s", prefix, code, t)
}

type mirrored struct {
	subject string
	data    []byte
}

// NATSMirror forwards room notices to NATS from its own goroutine so publishing
// never runs under a room lock.
type NATSMirror struct {
	pub    Publisher
	prefix string
	logger *zap.Logger

	queue chan mirrored
	done  chan struct{}
	once  sync.Once
}

// NewNATSMirror creates a mirror. Start must run for messages to be forwarded.
//
// Precondition: pub and logger must be non-nil; buffer > 0.
func NewNATSMirror(pub Publisher, prefix string, buffer int, logger *zap.Logger) *NATSMirror {
	return &NATSMirror{
		pub:    pub,
		prefix: prefix,
		logger: logger,
		queue:  make(chan mirrored, buffer),
		done:   make(chan struct{}),
	}
}

// Mirror enqueues a notice. When the queue is full the notice is dropped.
func (m *NATSMirror) Mirror(code string, t event.Type, data []byte) {
	msg := mirrored{subject: Subject(m.prefix, code, t), data: data}
	select {
	case m.queue <- msg:
	default:
		m.logger.Warn("nats mirror queue full, dropping notice", zap.String("subject", msg.subject))
	}
}

// Start forwards queued notices until Stop is called.
func (m *NATSMirror) Start() error {
	for {
		select {
		case msg := <-m.queue:
			if err := m.pub.Publish(msg.subject, msg.data); err != nil {
				m.logger.Warn("nats publish failed", zap.String("subject", msg.subject), zap.Error(err))
			}
		case <-m.done:
			return nil
		}
	}
}

// Stop ends Start. Safe to call more than once.
func (m *NATSMirror) Stop() {
	m.once.Do(func() { close(m.done) })
}

// Connect dials NATS with reconnect logging.
//
// Postcondition: Returns a connected *nats.Conn or a non-nil error.
func Connect(url string, logger *zap.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("hetman"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", url, err)
	}
	return nc, nil
}

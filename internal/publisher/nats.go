package publisher

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

type Metrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	NATSSetConnected(connected bool)
}

type conn interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher announces each installed dataset on a single subject.
type NATSPublisher struct {
	nc      *nats.Conn
	pub     conn
	subject string
	metrics Metrics
	logger  *slog.Logger
}

func NewNATSPublisher(url, subject string, m Metrics, logger *slog.Logger) (*NATSPublisher, error) {
	logger = logger.With("component", "nats_publisher")
	nc, err := nats.Connect(url,
		nats.Name("bikeflow"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Info("nats closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return &NATSPublisher{nc: nc, pub: nc, subject: subject, metrics: m, logger: logger}, nil
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}

type DatasetLoadedMessage struct {
	Version    string    `json:"version"`
	Stations   int       `json:"stations"`
	Trips      int       `json:"trips"`
	Skipped    int       `json:"skipped"`
	DurationMS int64     `json:"durationMs"`
	LoadedAt   time.Time `json:"loadedAt"`
}

func (p *NATSPublisher) PublishDatasetLoaded(msg DatasetLoadedMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	err = p.pub.Publish(p.subject, b)
	if p.metrics != nil {
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	if err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	p.logger.Debug("dataset announced", "subject", p.subject, "version", msg.Version)
	return nil
}

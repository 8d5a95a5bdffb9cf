package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/signalsfoundry/loranet-simulator/core"
	"github.com/signalsfoundry/loranet-simulator/internal/logging"
)

// Forwarder publishes domain events to NATS so external systems (dashboards,
// alerting, downstream pipelines) can consume the run without touching the
// simulator. It is a pure observer: publish failures are logged and never
// feed back into the simulation.
type Forwarder struct {
	nc     *nats.Conn
	prefix string
	log    logging.Logger
}

// Options configures the NATS connection.
type Options struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
}

// envelope is the wire shape of one forwarded event.
type envelope struct {
	ID     string         `json:"id"`
	Time   float64        `json:"time"`
	Type   string         `json:"type"`
	Device string         `json:"device,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`
}

// NewForwarder connects to NATS. The connection reconnects on its own;
// events emitted while disconnected are dropped.
func NewForwarder(opts Options, log logging.Logger) (*Forwarder, error) {
	if log == nil {
		log = logging.Noop()
	}
	prefix := strings.TrimSuffix(opts.SubjectPrefix, ".")
	if prefix == "" {
		prefix = "loranet"
	}

	nc, err := nats.Connect(opts.URL,
		nats.Name("loranet-simulator"),
		nats.MaxReconnects(opts.MaxReconnects),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn(context.Background(), "nats disconnected", logging.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info(context.Background(), "nats reconnected", logging.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %q: %w", opts.URL, err)
	}

	return &Forwarder{nc: nc, prefix: prefix, log: log}, nil
}

// Observer returns the subscriber to hang on the simulation's event
// stream. Subjects are <prefix>.events.<type>, e.g. loranet.events.transmit_success.
func (f *Forwarder) Observer() core.Observer {
	return func(ev core.DomainEvent) {
		env := envelope{
			ID:     uuid.NewString(),
			Time:   ev.Time,
			Type:   ev.Type,
			Device: ev.Device,
			Fields: ev.Fields,
		}
		data, err := json.Marshal(env)
		if err != nil {
			f.log.Error(context.Background(), "marshal event failed",
				logging.String("type", ev.Type), logging.String("error", err.Error()))
			return
		}
		subject := fmt.Sprintf("%s.events.%s", f.prefix, ev.Type)
		if err := f.nc.Publish(subject, data); err != nil {
			f.log.Warn(context.Background(), "publish failed",
				logging.String("subject", subject), logging.String("error", err.Error()))
		}
	}
}

// Close flushes pending publishes and drops the connection.
func (f *Forwarder) Close() {
	if f.nc == nil {
		return
	}
	if err := f.nc.Drain(); err != nil {
		f.nc.Close()
	}
}

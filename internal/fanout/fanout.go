// Package fanout republishes engine events onto NATS so a remote
// observer (a dashboard, an alerting service) can subscribe without
// sharing the process's in-memory EventBus.
package fanout

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/sigtrader/enginecore/pkg/sigengine"
)

// Config configures the NATS connection and subject prefix.
type Config struct {
	URL    string
	Prefix string // default "signals."
}

// DefaultConfig returns the conventional local NATS endpoint.
func DefaultConfig() Config {
	return Config{URL: "nats://localhost:4222", Prefix: "signals."}
}

// Publisher republishes sigengine.Event values onto a NATS subject named
// "{prefix}{strategyName}.{symbol}".
type Publisher struct {
	nc     *nats.Conn
	prefix string
	log    zerolog.Logger
}

// Connect dials NATS with the teacher's reconnect posture (infinite
// reconnects, logged transitions) and returns a Publisher.
func Connect(cfg Config, log zerolog.Logger) (*Publisher, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = "signals."
	}
	nc, err := nats.Connect(
		cfg.URL,
		nats.Name("sigengine-live-driver"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("fanout: nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("fanout: nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("fanout: connect to nats: %w", err)
	}
	return &Publisher{nc: nc, prefix: cfg.Prefix, log: log}, nil
}

// Publish serializes ev and publishes it to its slot's subject. Publish
// errors are logged, not returned — a fanout failure must never affect
// the live driver's own event delivery.
func (p *Publisher) Publish(ev sigengine.Event) {
	if !p.nc.IsConnected() {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		p.log.Warn().Err(err).Msg("fanout: marshal event")
		return
	}
	subject := fmt.Sprintf("%s%s.%s", p.prefix, ev.StrategyName, ev.Symbol)
	if err := p.nc.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).Str("subject", subject).Msg("fanout: publish event")
	}
}

// Tap wraps an event channel, publishing a copy of each event to NATS as
// it passes through, and forwards every event unchanged to the returned
// channel.
func (p *Publisher) Tap(in <-chan sigengine.Event) <-chan sigengine.Event {
	out := make(chan sigengine.Event, cap(in))
	go func() {
		defer close(out)
		for ev := range in {
			p.Publish(ev)
			out <- ev
		}
	}()
	return out
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	p.nc.Close()
}

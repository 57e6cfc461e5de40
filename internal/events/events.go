// Package events publishes ingestion and import notifications to NATS.
package events

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"

	"ais_parser/internal/logging"
)

// Config configures event publishing. An empty URL disables it.
type Config struct {
	URL           string        `koanf:"url" validate:"omitempty,url"`
	SubjectPrefix string        `koanf:"subject_prefix" validate:"required"`
	MaxReconnects int           `koanf:"max_reconnects"`
	ReconnectWait time.Duration `koanf:"reconnect_wait"`
}

// Subjects, relative to the configured prefix.
const (
	SubjectFileIngested     = "ingest.file"
	SubjectIntervalImported = "import.interval"
)

// FileIngested is published after an input file is recorded in the ledger.
type FileIngested struct {
	RunID    string        `json:"run_id"`
	Filename string        `json:"filename"`
	Ext      string        `json:"ext"`
	Source   int16         `json:"source"`
	Invalid  int           `json:"invalid"`
	Clean    int           `json:"clean"`
	Dirty    int           `json:"dirty"`
	Duration time.Duration `json:"duration_ns"`
	At       time.Time     `json:"at"`
}

// IntervalImported is published after a reconciled interval is committed.
type IntervalImported struct {
	RunID      string    `json:"run_id"`
	MMSI       int64     `json:"mmsi"`
	IMO        int64     `json:"imo_number"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Valid      int       `json:"valid"`
	Outliers   int       `json:"outliers"`
	Artificial int       `json:"artificial"`
	At         time.Time `json:"at"`
}

// Publisher sends JSON events. The zero value discards everything.
type Publisher struct {
	nc      *natsgo.Conn
	prefix  string
	publish func(subject string, data []byte) error
}

// Connect opens a NATS connection, or returns a discarding publisher when
// cfg.URL is empty.
func Connect(cfg Config) (*Publisher, error) {
	if cfg.URL == "" {
		return &Publisher{}, nil
	}

	nc, err := natsgo.Connect(cfg.URL,
		natsgo.Name("ais_parser"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logging.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logging.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return &Publisher{nc: nc, prefix: cfg.SubjectPrefix, publish: nc.Publish}, nil
}

// Enabled reports whether events are actually sent.
func (p *Publisher) Enabled() bool {
	return p != nil && p.publish != nil
}

// Subject returns the full subject name for a relative one.
func (p *Publisher) Subject(name string) string {
	if p.prefix == "" {
		return name
	}
	return p.prefix + "." + name
}

// Publish encodes v as JSON and sends it on the prefixed subject.
func (p *Publisher) Publish(subject string, v any) error {
	if !p.Enabled() {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", subject, err)
	}
	if err := p.publish(p.Subject(subject), data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// FileIngested publishes a file ledger event.
func (p *Publisher) FileIngested(ev FileIngested) error {
	return p.Publish(SubjectFileIngested, ev)
}

// IntervalImported publishes an interval import event.
func (p *Publisher) IntervalImported(ev IntervalImported) error {
	return p.Publish(SubjectIntervalImported, ev)
}

// Close flushes pending events and closes the connection.
func (p *Publisher) Close() {
	if p == nil || p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
	}
}

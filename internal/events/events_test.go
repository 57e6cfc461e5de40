package events

import (
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func TestDisabledPublisher(t *testing.T) {
	p, err := Connect(Config{})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if p.Enabled() {
		t.Error("publisher without URL should be disabled")
	}
	if err := p.FileIngested(FileIngested{Filename: "a.csv"}); err != nil {
		t.Errorf("disabled publish error = %v", err)
	}
	p.Close()

	var nilPub *Publisher
	if nilPub.Enabled() {
		t.Error("nil publisher should be disabled")
	}
}

func TestPublish(t *testing.T) {
	var subject string
	var payload []byte
	p := &Publisher{prefix: "ais", publish: func(s string, data []byte) error {
		subject, payload = s, data
		return nil
	}}

	ev := IntervalImported{MMSI: 235012345, IMO: 9074729, Valid: 10, Outliers: 1, Start: time.Unix(0, 0).UTC()}
	if err := p.IntervalImported(ev); err != nil {
		t.Fatalf("IntervalImported() error = %v", err)
	}
	if subject != "ais.import.interval" {
		t.Errorf("subject = %q", subject)
	}

	var got IntervalImported
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if got.MMSI != ev.MMSI || got.Outliers != 1 {
		t.Errorf("payload = %+v", got)
	}
}

func TestPublishError(t *testing.T) {
	p := &Publisher{publish: func(string, []byte) error { return errors.New("nats: connection closed") }}
	if err := p.FileIngested(FileIngested{}); err == nil {
		t.Error("expected publish error")
	}
	if got := p.Subject("ingest.file"); got != "ingest.file" {
		t.Errorf("Subject() without prefix = %q", got)
	}
}

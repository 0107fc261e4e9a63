package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/timmy/subtitles/internal/domain"
)

// NATSPublisher publishes JSON snapshots on "{prefix}{jobID}".
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSPublisher connects to a NATS server and keeps reconnecting if the link drops.
func NewNATSPublisher(url, subjectPrefix string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("rascor-subtitles"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", url, err)
	}
	return &NATSPublisher{nc: nc, prefix: subjectPrefix}, nil
}

func (p *NATSPublisher) Name() string { return "nats" }

// Subject returns the subject for a job.
func (p *NATSPublisher) Subject(jobID string) string {
	return p.prefix + jobID
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(_ context.Context, jobID string, snapshot domain.ProgressSnapshot) error {
	b, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return p.nc.Publish(p.Subject(jobID), b)
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
	}
}

package events

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// LogPublisher writes each event as a structured log line.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With().Str("component", "events").Logger()}
}

func (p *LogPublisher) Publish(_ context.Context, ev Event) error {
	p.logger.Info().
		Str("event_id", ev.ID.String()).
		Str("event_type", string(ev.Type)).
		Str("tenant_id", ev.TenantID).
		Interface("data", ev.Data).
		Msg("domain event")
	return nil
}

// MultiPublisher fans an event out to several publishers concurrently. All
// publishers are attempted; the first error is returned.
type MultiPublisher struct {
	publishers []Publisher
}

func NewMultiPublisher(publishers ...Publisher) *MultiPublisher {
	var ps []Publisher
	for _, p := range publishers {
		if p != nil {
			ps = append(ps, p)
		}
	}
	return &MultiPublisher{publishers: ps}
}

func (m *MultiPublisher) Publish(ctx context.Context, ev Event) error {
	var g errgroup.Group
	for _, p := range m.publishers {
		p := p
		g.Go(func() error {
			if err := p.Publish(ctx, ev); err != nil {
				return fmt.Errorf("publish %s via %T: %w", ev.Type, p, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Add appends a destination. Not safe for use once publishing has started.
func (m *MultiPublisher) Add(p Publisher) {
	if p != nil {
		m.publishers = append(m.publishers, p)
	}
}

// Len returns the number of destinations.
func (m *MultiPublisher) Len() int { return len(m.publishers) }

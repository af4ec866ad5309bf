// Package adt coordinates admissions, transfers, bed releases and
// discharges across the bed registry, the assignment ledger and the
// encounter manager. Every operation runs in one database transaction and
// serializes on row locks; events are published only after commit.
package adt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/adt/internal/domain/assignment"
	"github.com/ehr/adt/internal/domain/bed"
	"github.com/ehr/adt/internal/domain/encounter"
	"github.com/ehr/adt/internal/domain/identity"
	"github.com/ehr/adt/internal/platform/apperr"
	"github.com/ehr/adt/internal/platform/db"
	"github.com/ehr/adt/internal/platform/events"
)

const (
	OpAdmit        = "admit"
	OpTransfer     = "transfer"
	OpReleaseBed   = "release_bed"
	OpDischarge    = "discharge"
	OpHousekeeping = "housekeeping"
)

// TxRunner runs fn inside one transaction, committing when fn returns nil.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Observer receives operation outcomes. telemetry.Metrics satisfies it.
type Observer interface {
	ObserveOperation(op string, err error, d time.Duration)
	ObserveEvent(eventType string, err error)
	SetAuditMismatches(n int)
}

type nopObserver struct{}

func (nopObserver) ObserveOperation(string, error, time.Duration) {}
func (nopObserver) ObserveEvent(string, error)                    {}
func (nopObserver) SetAuditMismatches(int)                        {}

// Deps wires the orchestrator. Publisher, Observer and Now are optional.
type Deps struct {
	Tx         TxRunner
	Beds       *bed.Registry
	Ledger     *assignment.Ledger
	Encounters *encounter.Manager
	Identity   *identity.Resolver
	Publisher  events.Publisher
	Observer   Observer
	Logger     zerolog.Logger
	Now        func() time.Time
}

type Orchestrator struct {
	tx         TxRunner
	beds       *bed.Registry
	ledger     *assignment.Ledger
	encounters *encounter.Manager
	identity   *identity.Resolver
	publisher  events.Publisher
	obs        Observer
	logger     zerolog.Logger
	now        func() time.Time
}

func New(d Deps) *Orchestrator {
	o := &Orchestrator{
		tx:         d.Tx,
		beds:       d.Beds,
		ledger:     d.Ledger,
		encounters: d.Encounters,
		identity:   d.Identity,
		publisher:  d.Publisher,
		obs:        d.Observer,
		logger:     d.Logger.With().Str("component", "adt").Logger(),
		now:        d.Now,
	}
	if o.publisher == nil {
		o.publisher = events.Nop
	}
	if o.obs == nil {
		o.obs = nopObserver{}
	}
	if o.now == nil {
		o.now = func() time.Time { return time.Now().UTC() }
	}
	return o
}

// run executes fn in a transaction, classifies the resulting error and
// records the outcome.
func (o *Orchestrator) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := classify(o.tx.RunInTx(ctx, fn))
	o.obs.ObserveOperation(op, err, time.Since(start))
	return err
}

// publish delivers events after commit. Failures are logged and counted;
// the committed operation still succeeds.
func (o *Orchestrator) publish(ctx context.Context, evs ...events.Event) {
	tenant := db.TenantFromContext(ctx)
	for _, ev := range evs {
		ev.TenantID = tenant
		err := o.publisher.Publish(context.WithoutCancel(ctx), ev)
		o.obs.ObserveEvent(string(ev.Type), err)
		if err != nil {
			o.logger.Warn().Err(err).
				Str("event_id", ev.ID.String()).
				Str("event_type", string(ev.Type)).
				Msg("event publish failed")
		}
	}
}

// classify turns Postgres failures into the typed errors callers branch on.
func classify(err error) error {
	if err == nil || apperr.Kind(err) != "internal" {
		return err
	}
	switch {
	case db.IsLockTimeout(err):
		return &apperr.LockTimeoutError{Err: err}
	case db.IsTransient(err):
		return &apperr.TransientError{Err: err}
	case db.IsUniqueViolation(err):
		return apperr.Conflict("conflicting concurrent write (%s)", db.ConstraintName(err))
	case errors.Is(err, context.DeadlineExceeded):
		return &apperr.TransientError{Err: err}
	}
	return err
}

// lockErr tags a lock-timeout with the resource that could not be locked.
func lockErr(resource string, err error) error {
	if db.IsLockTimeout(err) {
		return &apperr.LockTimeoutError{Resource: resource, Err: err}
	}
	return err
}

func (o *Orchestrator) lockBed(ctx context.Context, id uuid.UUID) (*bed.Bed, error) {
	b, err := o.beds.LockBed(ctx, id)
	if err != nil {
		return nil, lockErr("bed", err)
	}
	return b, nil
}

// lockBeds locks the given beds in ascending id order and returns them
// keyed by id.
func (o *Orchestrator) lockBeds(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]*bed.Bed, error) {
	sorted := make([]uuid.UUID, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i][:], sorted[j][:]) < 0
	})
	out := make(map[uuid.UUID]*bed.Bed, len(sorted))
	for _, id := range sorted {
		if _, ok := out[id]; ok {
			continue
		}
		b, err := o.lockBed(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = b
	}
	return out, nil
}

func (o *Orchestrator) lockEncounter(ctx context.Context, id uuid.UUID) (*encounter.Encounter, error) {
	enc, err := o.encounters.LockEncounter(ctx, id)
	if err != nil {
		return nil, lockErr("encounter", err)
	}
	return enc, nil
}

func requireActor(actor string) error {
	if actor == "" {
		return apperr.Validation("actor", "is required")
	}
	return nil
}

func notePtr(format string, args ...interface{}) *string {
	s := fmt.Sprintf(format, args...)
	return &s
}

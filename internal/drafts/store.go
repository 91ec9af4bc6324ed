package drafts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store writes drafts to the session cache and, for valuation drafts with a client key,
// to the durable device cache.
type Store struct {
	session    Cache
	durable    Cache
	sessionTTL time.Duration
	durableTTL time.Duration
	log        *zap.Logger
	now        func() time.Time
}

func NewStore(session, durable Cache, sessionTTL, durableTTL time.Duration, log *zap.Logger) *Store {
	return &Store{
		session:    session,
		durable:    durable,
		sessionTTL: sessionTTL,
		durableTTL: durableTTL,
		log:        log,
		now:        time.Now,
	}
}

// Save stamps UpdatedAt and writes d. Only the session write can fail the call.
func (s *Store) Save(ctx context.Context, d *Draft) error {
	d.UpdatedAt = s.now().UTC()
	if err := s.session.Put(ctx, SessionKey(d.FlowID), *d, s.sessionTTL); err != nil {
		return fmt.Errorf("save session draft: %w", err)
	}
	if d.Kind == KindValuation && d.ClientKey != "" {
		if err := s.durable.Put(ctx, DurableKey(d.ClientKey), *d, s.durableTTL); err != nil {
			s.log.Warn("drafts: durable write failed",
				zap.String("flow_id", d.FlowID.String()), zap.Error(err))
		}
	}
	return nil
}

// Load returns the session draft of a flow.
func (s *Store) Load(ctx context.Context, flowID uuid.UUID) (*Draft, error) {
	return s.session.Get(ctx, SessionKey(flowID))
}

// Device returns the durable draft last written for a client key.
func (s *Store) Device(ctx context.Context, clientKey string) (*Draft, error) {
	if clientKey == "" {
		return nil, ErrNoDraft
	}
	return s.durable.Get(ctx, DurableKey(clientKey))
}

// Source names where a resolved draft came from.
type Source string

const (
	SourceNavigation Source = "navigation"
	SourceAccount    Source = "account"
	SourceDevice     Source = "device"
)

// RowSource loads the newest draft row of an authenticated user.
// It returns ErrNoDraft when the user has none.
type RowSource interface {
	LatestDraft(ctx context.Context, userID uuid.UUID) (*Draft, error)
}

// ResolveRequest carries whatever the client could send back.
type ResolveRequest struct {
	FlowID    *uuid.UUID
	UserID    *uuid.UUID
	ClientKey string
}

// Resolver recovers a draft: navigation state, then the account's latest row, then the
// device cache.
type Resolver struct {
	store *Store
	rows  RowSource
	log   *zap.Logger
}

func NewResolver(store *Store, rows RowSource, log *zap.Logger) *Resolver {
	return &Resolver{store: store, rows: rows, log: log}
}

// Resolve walks the sources in order. Lookup failures other than a miss are logged and
// the next source is tried.
func (r *Resolver) Resolve(ctx context.Context, req ResolveRequest) (*Draft, Source, error) {
	if req.FlowID != nil {
		d, err := r.store.Load(ctx, *req.FlowID)
		if err == nil {
			return d, SourceNavigation, nil
		}
		r.miss(SourceNavigation, err)
	}
	if req.UserID != nil && r.rows != nil {
		d, err := r.rows.LatestDraft(ctx, *req.UserID)
		if err == nil {
			return d, SourceAccount, nil
		}
		r.miss(SourceAccount, err)
	}
	if req.ClientKey != "" {
		d, err := r.store.Device(ctx, req.ClientKey)
		if err == nil {
			return d, SourceDevice, nil
		}
		r.miss(SourceDevice, err)
	}
	return nil, "", ErrNoDraft
}

func (r *Resolver) miss(src Source, err error) {
	if errors.Is(err, ErrNoDraft) {
		return
	}
	r.log.Warn("drafts: source lookup failed", zap.String("source", string(src)), zap.Error(err))
}

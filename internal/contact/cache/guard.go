package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"reconciler/internal/contact/models"
	"reconciler/internal/contact/ports"
	id "reconciler/pkg/domain"
	"reconciler/pkg/platform/circuit"
)

// ErrCircuitOpen is returned by reads and writes skipped while the breaker
// is open.
var ErrCircuitOpen = fmt.Errorf("view cache circuit open: %w", ports.ErrCacheBypassed)

// Guarded shields the service from a failing cache. Once the breaker opens,
// Get and Put are skipped until a probe succeeds. Invalidate always reaches
// the cache so recovered entries are never left stale.
type Guarded struct {
	next    ports.ViewCache
	breaker *circuit.Breaker
	logger  *slog.Logger
}

// NewGuarded wraps next with breaker.
func NewGuarded(next ports.ViewCache, breaker *circuit.Breaker, logger *slog.Logger) *Guarded {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guarded{next: next, breaker: breaker, logger: logger}
}

func (g *Guarded) Get(ctx context.Context, primaryID id.ContactID) (*models.IdentityView, bool, error) {
	if !g.breaker.Allow() {
		return nil, false, ErrCircuitOpen
	}
	view, ok, err := g.next.Get(ctx, primaryID)
	g.record(ctx, err)
	return view, ok, err
}

func (g *Guarded) Put(ctx context.Context, view *models.IdentityView) error {
	if !g.breaker.Allow() {
		return ErrCircuitOpen
	}
	err := g.next.Put(ctx, view)
	g.record(ctx, err)
	return err
}

func (g *Guarded) Invalidate(ctx context.Context, primaryIDs ...id.ContactID) error {
	err := g.next.Invalidate(ctx, primaryIDs...)
	g.record(ctx, err)
	return err
}

func (g *Guarded) record(ctx context.Context, err error) {
	if err == nil {
		if _, change := g.breaker.RecordSuccess(); change.Closed {
			g.logger.InfoContext(ctx, "view cache circuit closed", "breaker", g.breaker.Name())
		}
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	if _, change := g.breaker.RecordFailure(); change.Opened {
		g.logger.WarnContext(ctx, "view cache circuit opened", "breaker", g.breaker.Name(), "error", err)
	}
}

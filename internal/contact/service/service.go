package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"reconciler/internal/contact/metrics"
	"reconciler/internal/contact/models"
	"reconciler/internal/contact/ports"
	id "reconciler/pkg/domain"
	dErrors "reconciler/pkg/domain-errors"
	"reconciler/pkg/platform/sentinel"
	"reconciler/pkg/requestcontext"
)

// defaultMaxAttempts bounds how often a transaction is retried with a wider
// lock scope before the request is rejected as conflicting.
const defaultMaxAttempts = 5

var tracer = otel.Tracer("reconciler.contact")

// Service reconciles contact observations into identity groups.
//
// Each call runs its read-decide-write sequence as one transaction holding the
// lock keys of the observation's values and of every identity group it
// touches. Calls on disjoint groups never wait on each other.
type Service struct {
	tx          ports.ContactStoreTx
	logger      *slog.Logger
	metrics     *metrics.Metrics
	publisher   ports.EventPublisher
	cache       ports.ViewCache
	maxAttempts int
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithPublisher emits identity events after every committed change.
func WithPublisher(p ports.EventPublisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithViewCache serves Lookup through cache and keeps it coherent on Identify.
func WithViewCache(c ports.ViewCache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// New creates a Service running its transactions through tx.
func New(tx ports.ContactStoreTx, opts ...Option) (*Service, error) {
	if tx == nil {
		return nil, errors.New("transaction runner is required")
	}
	s := &Service{
		tx:          tx,
		logger:      slog.Default(),
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Identify reconciles one observation and returns the consolidated identity it
// belongs to afterwards.
func (s *Service) Identify(ctx context.Context, obs models.Observation) (*models.IdentifyResult, error) {
	start := time.Now()
	defer s.metrics.ObserveIdentify(start)

	ctx, span := tracer.Start(ctx, "contact.Identify",
		trace.WithAttributes(
			attribute.Bool("observation.has_email", obs.Email != ""),
			attribute.Bool("observation.has_phone", obs.Phone != ""),
		),
	)
	defer span.End()

	obs = obs.Normalize()
	if err := obs.Validate(); err != nil {
		span.SetStatus(codes.Error, "invalid observation")
		return nil, err
	}

	var result *models.IdentifyResult
	err := s.runScoped(ctx, newLockScope(obs.LockKeys()...), func(ctx context.Context, store ports.Store, scope lockScope) error {
		r, err := reconcile(ctx, store, obs, scope)
		if err != nil {
			return err
		}
		s.invalidate(ctx, r)
		result = r
		return nil
	})
	if err != nil {
		err = s.translate(err, "failed to reconcile contact")
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		return nil, err
	}

	span.SetAttributes(
		attribute.String("identify.outcome", string(result.Outcome)),
		attribute.Int64("identify.primary_id", result.View.PrimaryID.Int64()),
	)
	s.metrics.IncrementOutcome(string(result.Outcome))
	if len(result.Absorbed) > 0 {
		s.metrics.ObserveAbsorbed(len(result.Absorbed))
	}
	s.logger.InfoContext(ctx, "observation reconciled",
		"request_id", requestcontext.RequestID(ctx),
		"outcome", result.Outcome,
		"primary_id", result.View.PrimaryID,
		"absorbed", len(result.Absorbed),
	)
	s.publish(ctx, result)
	return result, nil
}

// Lookup returns the consolidated identity of the group contactID belongs to.
func (s *Service) Lookup(ctx context.Context, contactID id.ContactID) (*models.IdentityView, error) {
	start := time.Now()
	defer s.metrics.ObserveLookup(start)

	ctx, span := tracer.Start(ctx, "contact.Lookup",
		trace.WithAttributes(attribute.Int64("contact.id", contactID.Int64())),
	)
	defer span.End()

	if contactID <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "contact id must be positive")
	}

	var view *models.IdentityView
	err := s.runScoped(ctx, newLockScope(models.GroupKey(contactID)), func(ctx context.Context, store ports.Store, scope lockScope) error {
		primary, err := loadGroupPrimary(ctx, store, contactID, scope)
		if err != nil {
			return err
		}
		if cached := s.cachedView(ctx, primary.ID); cached != nil {
			view = cached
			return nil
		}
		secondaries, err := store.ChildrenOf(ctx, primary.ID)
		if err != nil {
			return err
		}
		view = models.AssembleView(primary, secondaries)
		s.storeView(ctx, view)
		return nil
	})
	if err != nil {
		err = s.translate(err, "failed to load contact")
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		return nil, err
	}
	return view, nil
}

// runScoped runs fn in a transaction holding scope, widening the scope and
// retrying whenever fn reports groups it resolved without holding their keys.
func (s *Service) runScoped(ctx context.Context, scope lockScope, fn func(ctx context.Context, store ports.Store, scope lockScope) error) error {
	for attempt := 1; ; attempt++ {
		err := s.tx.RunInTx(ctx, scope.keys(), func(ctx context.Context, store ports.Store) error {
			return fn(ctx, store, scope)
		})
		var scopeErr *lockScopeError
		if !errors.As(err, &scopeErr) {
			return err
		}
		if attempt >= s.maxAttempts {
			s.logger.WarnContext(ctx, "lock scope did not settle",
				"request_id", requestcontext.RequestID(ctx),
				"attempts", attempt,
			)
			return dErrors.New(dErrors.CodeConflict, "identity groups changed concurrently, retry the request")
		}
		s.metrics.IncrementLockScopeRetry()
		scope.add(scopeErr.missing...)
	}
}

// translate maps store and runner failures onto coded errors.
func (s *Service) translate(err error, msg string) error {
	switch {
	case dErrors.Is(err):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "request timed out")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "contact not found")
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "identity store unavailable")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}

// invalidate drops cached views of every group r changed. It runs while the
// groups are still locked so no reader can cache the pre-commit view.
func (s *Service) invalidate(ctx context.Context, r *models.IdentifyResult) {
	if s.cache == nil || r.Outcome == models.OutcomeNoop || r.Outcome == models.OutcomeCreatePrimary {
		return
	}
	ids := append([]id.ContactID{r.View.PrimaryID}, r.Absorbed...)
	if err := s.cache.Invalidate(ctx, ids...); err != nil {
		s.logger.WarnContext(ctx, "failed to invalidate cached views",
			"request_id", requestcontext.RequestID(ctx),
			"primary_id", r.View.PrimaryID,
			"error", err,
		)
	}
}

func (s *Service) cachedView(ctx context.Context, primaryID id.ContactID) *models.IdentityView {
	if s.cache == nil {
		return nil
	}
	view, ok, err := s.cache.Get(ctx, primaryID)
	switch {
	case errors.Is(err, ports.ErrCacheBypassed):
		s.metrics.IncrementCacheLookup("bypass")
		return nil
	case err != nil:
		s.metrics.IncrementCacheLookup("error")
		s.logger.WarnContext(ctx, "view cache read failed",
			"request_id", requestcontext.RequestID(ctx),
			"primary_id", primaryID,
			"error", err,
		)
		return nil
	case !ok:
		s.metrics.IncrementCacheLookup("miss")
		return nil
	}
	s.metrics.IncrementCacheLookup("hit")
	return view
}

func (s *Service) storeView(ctx context.Context, view *models.IdentityView) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Put(ctx, view); err != nil && !errors.Is(err, ports.ErrCacheBypassed) {
		s.logger.WarnContext(ctx, "view cache write failed",
			"request_id", requestcontext.RequestID(ctx),
			"primary_id", view.PrimaryID,
			"error", err,
		)
	}
}

// publish emits the events of a committed result. The change is already
// durable, so failures are logged and counted only.
func (s *Service) publish(ctx context.Context, r *models.IdentifyResult) {
	if s.publisher == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, event := range r.Events(requestcontext.RequestID(ctx), requestcontext.Now(ctx)) {
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.metrics.IncrementPublishFailure()
			s.logger.ErrorContext(ctx, "failed to publish identity event",
				"request_id", event.RequestID,
				"event_type", event.Type,
				"primary_id", event.PrimaryID,
				"error", err,
			)
		}
	}
}

// Package sync is the engine's command surface. Each request hydrates a fresh
// working copy, runs at most one mutation through the event processor, and
// returns the scope-filtered result. The service holds no mutable state across
// requests; the only cross-request artifact is the best-effort dataset cache.
package sync

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"clicr/internal/access"
	"clicr/internal/audit"
	"clicr/internal/ledger/hydrate"
	"clicr/internal/ledger/models"
	id "clicr/pkg/domain"
	dErrors "clicr/pkg/domain-errors"
	"clicr/pkg/platform/circuit"
	"clicr/pkg/platform/sentinel"
)

// Store is the slice of the authoritative store the sync service uses beyond
// what the hydrator and processor already cover.
type Store interface {
	GetUser(ctx context.Context, userID id.UserID) (models.User, error)
	UpdateUser(ctx context.Context, user models.User) error

	ListPatrons(ctx context.Context, businessID id.BusinessID) ([]models.Patron, error)
	ListPatronBans(ctx context.Context, businessID id.BusinessID) ([]models.PatronBan, error)
	InsertScanEvent(ctx context.Context, scan models.IdentityScanEvent) error

	CreateVenue(ctx context.Context, venue models.Venue) error
	UpdateVenue(ctx context.Context, venue models.Venue) error
	DeleteVenue(ctx context.Context, venueID id.VenueID) error
	CreateArea(ctx context.Context, area models.Area) error
	UpdateArea(ctx context.Context, area models.Area) error
	DeleteArea(ctx context.Context, areaID id.AreaID) error
	EnsureSnapshot(ctx context.Context, areaID id.AreaID) (models.OccupancySnapshot, error)
	CreateDevice(ctx context.Context, device models.Device) error
	UpdateDevice(ctx context.Context, device models.Device) error
	DeleteDevice(ctx context.Context, deviceID id.DeviceID) error
	CreateStaffBan(ctx context.Context, ban models.StaffBan) error
	CreatePatron(ctx context.Context, patron models.Patron) error
	CreatePatronBan(ctx context.Context, ban models.PatronBan) error
}

// Processor is the atomic event processor slice the service dispatches to.
type Processor interface {
	RecordEvent(ctx context.Context, ds *models.Dataset, req ProcessorRequest) (models.CountEvent, error)
	ResetCounts(ctx context.Context, ds *models.Dataset, scope id.ResetScope, target string, by id.UserID) error
}

// Metrics is implemented by the platform metrics registry.
type Metrics interface {
	IncrementScanDecisions(result string)
	IncrementAdmissionDecisions(decision string)
	IncrementCacheFallbacks()
}

// Service wires the hydrator, the scope filter, the event processor, and the
// domain engines behind the two operations callers see: Read and Command.
type Service struct {
	store     Store
	hydrator  *hydrate.Hydrator
	processor Processor
	logger    *slog.Logger
	emitter   audit.Emitter
	metrics   Metrics
	cache     DatasetCache
	breaker   *circuit.Breaker
	tracer    trace.Tracer
}

// Option configures a Service.
type Option func(s *Service)

// WithCache attaches the last-known dataset cache.
func WithCache(c DatasetCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithEmitter attaches an audit emitter; emission is best effort.
func WithEmitter(e audit.Emitter) Option {
	return func(s *Service) { s.emitter = e }
}

// WithMetrics attaches a metrics registry.
func WithMetrics(m Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New constructs a Service.
func New(store Store, hydrator *hydrate.Hydrator, processor Processor, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:     store,
		hydrator:  hydrator,
		processor: processor,
		logger:    logger,
		breaker:   circuit.New("hydration"),
		tracer:    otel.Tracer("clicr/internal/sync"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Read returns the scope-filtered working copy for the principal.
func (s *Service) Read(ctx context.Context, userID id.UserID) (*models.Dataset, error) {
	ctx, span := s.tracer.Start(ctx, "sync.read")
	defer span.End()

	caller, ds, err := s.workingCopy(ctx, userID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("business_id", ds.Business.ID.String()))
	return access.Filter(caller, ds), nil
}

// Command hydrates, dispatches one named action, and returns the updated
// scope-filtered working copy. All actions mutate; a degraded (cache-only)
// working copy refuses them outright.
func (s *Service) Command(ctx context.Context, userID id.UserID, cmd Command) (*Response, error) {
	ctx, span := s.tracer.Start(ctx, "sync.command",
		trace.WithAttributes(attribute.String("action", cmd.Action)))
	defer span.End()

	caller, ds, err := s.workingCopy(ctx, userID)
	if err != nil {
		return nil, err
	}
	if ds.Degraded {
		return nil, dErrors.New(dErrors.CodeUnavailable,
			"working copy is a cached fallback, mutations refused")
	}

	resp, err := s.dispatch(ctx, caller, ds, cmd)
	if err != nil {
		return nil, err
	}

	// The action may have replaced the caller's record (UPDATE_USER) or
	// shrunk its assignments (APPLY_STAFF_BAN); re-resolve before filtering.
	if current := ds.UserByID(userID); current != nil {
		caller = current
	}
	resp.Dataset = access.Filter(caller, ds)
	return resp, nil
}

// workingCopy resolves the principal and hydrates its business. The returned
// user pointer aliases the dataset's user slice.
func (s *Service) workingCopy(ctx context.Context, userID id.UserID) (*models.User, *models.Dataset, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if dErrors.Is(err, sentinel.ErrNotFound) {
			return nil, nil, dErrors.New(dErrors.CodeForbidden, "unknown principal")
		}
		return nil, nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "principal lookup failed")
	}
	if !user.Active {
		return nil, nil, dErrors.New(dErrors.CodeForbidden, "principal is deactivated")
	}

	ds, err := s.hydrateWithFallback(ctx, user.BusinessID)
	if err != nil {
		return nil, nil, err
	}

	caller := ds.UserByID(user.ID)
	if caller == nil {
		ds.Users = append(ds.Users, user)
		caller = &ds.Users[len(ds.Users)-1]
	}
	return caller, ds, nil
}

// hydrateWithFallback runs a full hydration seeded with the cached copy, so a
// partial refresh keeps the cached collections instead of dropping them. Only
// when the store is unreachable outright is the cached copy itself served,
// marked degraded.
func (s *Service) hydrateWithFallback(ctx context.Context, businessID id.BusinessID) (*models.Dataset, error) {
	var cached *models.Dataset
	if s.cache != nil {
		var cacheErr error
		if cached, cacheErr = s.cache.Get(ctx, businessID); cacheErr != nil {
			s.logger.WarnContext(ctx, "dataset cache get failed", "error", cacheErr)
		}
	}

	ds, err := s.hydrator.Hydrate(ctx, businessID, cached)
	if err == nil {
		if _, change := s.breaker.RecordSuccess(); change.Closed {
			s.logger.InfoContext(ctx, "store hydration recovered, circuit closed",
				"breaker", s.breaker.Name())
		}
		if s.cache != nil {
			if cacheErr := s.cache.Put(ctx, businessID, ds); cacheErr != nil {
				s.logger.WarnContext(ctx, "dataset cache put failed", "error", cacheErr)
			}
		}
		return ds, nil
	}

	open, change := s.breaker.RecordFailure()
	if change.Opened {
		s.logger.ErrorContext(ctx, "store hydration failing repeatedly, circuit opened",
			"breaker", s.breaker.Name(), "error", err)
	}

	if cached != nil {
		// Warn per request only until the circuit opens; after that the
		// transition logs carry the signal.
		if !open || change.Opened {
			s.logger.WarnContext(ctx, "hydration failed, serving cached working copy",
				"business_id", businessID, "error", err)
		}
		if s.metrics != nil {
			s.metrics.IncrementCacheFallbacks()
		}
		cached.Degraded = true
		return cached, nil
	}
	return nil, err
}

// requireAssigned enforces venue-level authorization off the hydrated
// assignment list, never off anything the client sent.
func requireAssigned(caller *models.User, venueID id.VenueID) error {
	if !caller.AssignedTo(venueID) {
		return dErrors.New(dErrors.CodeForbidden, "caller is not assigned to this venue")
	}
	return nil
}

// requireManager gates structural actions to owner and manager roles.
func requireManager(caller *models.User) error {
	if caller.Role != models.RoleOwner && caller.Role != models.RoleManager {
		return dErrors.New(dErrors.CodeForbidden, "action requires a manager role")
	}
	return nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.emitter == nil {
		return
	}
	if err := s.emitter.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "error", err)
	}
}

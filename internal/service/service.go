package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"lojapdv/backend/internal/cache"
	"lojapdv/backend/internal/domain"
	"lojapdv/backend/internal/metrics"
	"lojapdv/backend/internal/session"
	"lojapdv/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	Logger            logrus.FieldLogger
	Metrics           *metrics.Metrics
	SaleCache         cache.SaleCache
	SaleCacheTTL      time.Duration
	LowStockThreshold int
	SessionIdle       time.Duration
	Now               func() time.Time
}

type Service struct {
	repo     store.Repository
	log      logrus.FieldLogger
	metrics  *metrics.Metrics
	sales    cache.SaleCache
	saleTTL  time.Duration
	lowStock int
	sessions *session.Registry
	now      func() time.Time
}

func New(repo store.Repository, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.SaleCache == nil {
		opts.SaleCache = cache.NoopSaleCache{}
	}
	if opts.SaleCacheTTL <= 0 {
		opts.SaleCacheTTL = 5 * time.Minute
	}
	if opts.LowStockThreshold <= 0 {
		opts.LowStockThreshold = 5
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		repo:     repo,
		log:      opts.Logger.WithField("component", "service"),
		metrics:  opts.Metrics,
		sales:    opts.SaleCache,
		saleTTL:  opts.SaleCacheTTL,
		lowStock: opts.LowStockThreshold,
		sessions: session.NewRegistry(opts.SessionIdle),
		now:      opts.Now,
	}
}

func (s *Service) Sessions() *session.Registry {
	return s.sessions
}

func (s *Service) OpenSession(actor domain.Actor) *session.Session {
	sess := s.sessions.Open(actor, s.now())
	s.log.WithFields(logrus.Fields{"session_id": sess.ID, "user": actor.Username}).Info("session opened")
	return sess
}

func (s *Service) Session(id string, username string) (*session.Session, error) {
	return s.sessions.Get(id, username, s.now())
}

// CloseSession ends the session; its cart is discarded.
func (s *Service) CloseSession(id string) {
	s.sessions.Close(id)
	s.log.WithField("session_id", id).Info("session closed")
}

func (s *Service) SweepSessions() int {
	removed := s.sessions.Sweep(s.now())
	if removed > 0 {
		s.log.WithField("removed", removed).Info("idle sessions swept")
	}
	return removed
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Forbidden("admin role required")
	}
	return nil
}

// storeFailure passes domain errors through and marks anything else as a
// failed transaction.
func storeFailure(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := domain.KindOf(err); ok {
		return err
	}
	return domain.TransactionFailed(err)
}

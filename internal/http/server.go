package http

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"kakeibo/internal/cache"
	"kakeibo/internal/events"
	logfields "kakeibo/internal/log"
	"kakeibo/internal/middleware/ratelimit"
	"kakeibo/internal/middleware/security"
	"kakeibo/internal/middleware/trace"
	"kakeibo/internal/sheets"
)

// Route paths served by the proxy.
const (
	PathReadAll       = "/api/expenses"
	PathSubmit        = "/api/submit"
	PathSubscription  = "/api/subscription"
	PathLivingExpense = "/api/living-expense"
	PathUpdate        = "/api/update"
	PathDelete        = "/api/delete"
	PathHealth        = "/healthz"
	PathReady         = "/readyz"
)

const (
	readAllKey     = "ledger"
	backendTimeout = 20 * time.Second
	sweepInterval  = time.Minute
)

// Options configures a Server. Zero values pick defaults.
type Options struct {
	Addr               string
	Backend            sheets.Backend
	ReadCacheTTL       time.Duration
	RateLimitPerMinute int
	TrustedProxies     []string
	Logger             *logfields.Logger
	Clock              func() time.Time
	// Publisher, when set, receives events.LedgerChanged after every
	// successful mutation.
	Publisher events.Publisher
}

// Server is the ledger proxy.
type Server struct {
	http.Server
	backend  sheets.Backend
	bus      events.Publisher
	logger   *logfields.Logger
	now      func() time.Time
	started  time.Time
	detector *security.Detector
	limiter  *ratelimit.Limiter
	tracer   *trace.Middleware

	// readAll holds encoded read-all responses. gen is bumped by every
	// successful mutation so a read that started earlier is not cached.
	readAll *cache.LRU[[]byte]
	caches  *cache.Manager
	reads   singleflight.Group
	gen     atomic.Uint64

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware around opts.Backend.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logfields.Setup(logfields.ComponentHTTP)
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	ttl := opts.ReadCacheTTL
	if ttl <= 0 {
		ttl = 15 * time.Second
	}

	detector := security.NewDetector()
	for _, cidr := range opts.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", logfields.FieldError, err)
		}
	}

	s := &Server{
		backend:  opts.Backend,
		bus:      opts.Publisher,
		logger:   logger,
		now:      now,
		started:  now(),
		detector: detector,
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		tracer:   trace.NewMiddleware(detector.ExtractClientIP, logger.WithComponent(logfields.ComponentTrace).Slog()),
		readAll:  cache.NewLRU[[]byte](4, ttl).WithClock(now),
		caches:   cache.NewManager(logger.WithComponent(logfields.ComponentCache).Slog()),
	}
	s.caches.Register(s.readAll)
	s.caches.Start(sweepInterval)

	limited := s.limiter.Middleware(detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		logfields.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
			logfields.FieldClientIP, detector.ExtractClientIP(r),
			logfields.FieldPath, r.URL.Path)
		TooManyRequestsError().Write(w)
	})
	api := func(method string, h http.HandlerFunc) http.Handler {
		return limited(allow(method, h))
	}

	mux := http.NewServeMux()
	mux.Handle(PathReadAll, api(http.MethodGet, s.handleReadAll))
	mux.Handle(PathSubmit, api(http.MethodPost, s.handleSubmit))
	mux.Handle(PathSubscription, api(http.MethodPost, s.handleSubscription))
	mux.Handle(PathLivingExpense, api(http.MethodPost, s.handleLivingExpense))
	mux.Handle(PathUpdate, api(http.MethodPost, s.handleUpdate))
	mux.Handle(PathDelete, api(http.MethodPost, s.handleDelete))
	mux.HandleFunc(PathHealth, s.handleHealth)
	mux.HandleFunc(PathReady, s.handleReady)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		NewResponse().Fail(http.StatusNotFound, "not found").Write(w)
	})

	var handler http.Handler = mux
	handler = detector.Middleware(logger.WithComponent(logfields.ComponentSecurity).Slog())(handler)
	handler = security.Headers(security.DefaultHeadersConfig())(handler)
	handler = logfields.Middleware(logger, trace.RequestID)(handler)
	handler = s.tracer.Handler(handler)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// allow rejects other methods with a JSON 405.
func allow(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			MethodNotAllowedError(method).Write(w)
			return
		}
		next(w, r)
	}
}

// invalidate drops cached reads after a successful mutation and tells
// other processes about it.
func (s *Server) invalidate() {
	s.gen.Add(1)
	s.readAll.Purge()
	if s.bus != nil {
		s.bus.Publish(events.LedgerChanged)
	}
}

// Shutdown stops background sweeps and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

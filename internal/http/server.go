// Package http serves the JSON API over the per-user budget controllers.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"homebudget/internal/cache"
	"homebudget/internal/docstore"
	"homebudget/internal/identity"
	"homebudget/internal/log"
	"homebudget/internal/middleware/ratelimit"
	"homebudget/internal/middleware/security"
	"homebudget/internal/middleware/trace"
	"homebudget/internal/voice"
)

// ReadyFunc reports whether the backing store can serve requests.
type ReadyFunc func(ctx context.Context) error

// Options configures a Server. Store is required.
type Options struct {
	Addr               string
	Store              docstore.Store
	Logger             *log.Logger
	UserHeader         string
	RateLimitPerMinute int
	Sessions           SessionsConfig
	Transcriber        voice.Transcriber
	Keywords           voice.Keywords
	Ready              ReadyFunc
	Clock              func() time.Time
	// EventHeartbeat is the interval of keep-alive comments on /api/events.
	EventHeartbeat time.Duration
}

type Server struct {
	http.Server
	sessions    *Sessions
	limiter     *ratelimit.Limiter
	caches      *cache.Manager
	tracer      *trace.Middleware
	detector    *security.Detector
	transcriber voice.Transcriber
	keywords    voice.Keywords
	ready       ReadyFunc
	now         func() time.Time
	heartbeat   time.Duration

	shutdownOnce sync.Once
}

// NewServer configures routes and middlewares, returning a ready-to-run server.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.New(log.DefaultConfig())
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.UserHeader == "" {
		opts.UserHeader = "X-User-ID"
	}
	if opts.Transcriber == nil {
		opts.Transcriber = voice.PlainText{}
	}
	if opts.Keywords == nil {
		opts.Keywords = voice.DefaultKeywords()
	}
	if opts.Sessions.MaxSessions == 0 {
		opts.Sessions.MaxSessions = 1000
	}
	if opts.Sessions.IdleTTL == 0 {
		opts.Sessions.IdleTTL = 30 * time.Minute
	}
	if opts.Sessions.Clock == nil {
		opts.Sessions.Clock = opts.Clock
	}
	if opts.EventHeartbeat == 0 {
		opts.EventHeartbeat = 15 * time.Second
	}

	logger := opts.Logger.WithComponent(log.ComponentHTTP)
	detector := security.NewDetector(opts.Logger)
	s := &Server{
		sessions:    NewSessions(opts.Store, opts.Logger, opts.Sessions),
		limiter:     ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		caches:      cache.NewManager(),
		tracer:      trace.NewMiddleware(opts.Logger, detector.ClientIP),
		detector:    detector,
		transcriber: opts.Transcriber,
		keywords:    opts.Keywords,
		ready:       opts.Ready,
		now:         opts.Clock,
		heartbeat:   opts.EventHeartbeat,
	}
	s.caches.Register(s.sessions)
	s.caches.StartCleanup(time.Minute)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/budget", s.handleGetBudget)
	mux.HandleFunc("GET /api/budgets", s.handleListBudgets)
	mux.HandleFunc("POST /api/budgets", s.handleCreateBudget)
	mux.HandleFunc("PUT /api/budgets/active", s.handleSwitchBudget)
	mux.HandleFunc("DELETE /api/budgets/active", s.handleDeleteBudget)
	mux.HandleFunc("PUT /api/income", s.handleSetIncome)

	mux.HandleFunc("POST /api/transactions", s.handleAddTransaction)
	mux.HandleFunc("PUT /api/transactions/{id}", s.handleUpdateTransaction)
	mux.HandleFunc("DELETE /api/transactions/{id}", s.handleDeleteTransaction)
	mux.HandleFunc("POST /api/categories", s.handleCreateCategory)
	mux.HandleFunc("PUT /api/categories/{id}", s.handleUpdateCategory)
	mux.HandleFunc("DELETE /api/categories/{id}", s.handleDeleteCategory)
	mux.HandleFunc("POST /api/types", s.handleAddType)
	mux.HandleFunc("DELETE /api/types", s.handleRemoveType)
	mux.HandleFunc("POST /api/payment-methods", s.handleAddPaymentMethod)
	mux.HandleFunc("DELETE /api/payment-methods", s.handleRemovePaymentMethod)
	mux.HandleFunc("PUT /api/subcategories/{label}", s.handleSetSubcategory)
	mux.HandleFunc("DELETE /api/subcategories/{label}", s.handleRemoveSubcategory)

	mux.HandleFunc("POST /api/archive", s.handleArchiveMonth)
	mux.HandleFunc("GET /api/archives", s.handleListArchives)
	mux.HandleFunc("GET /api/archives/{period}", s.handleGetArchive)
	mux.HandleFunc("DELETE /api/archives/{period}", s.handleDeleteArchive)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /api/forecast", s.handleForecast)

	mux.HandleFunc("POST /api/voice", s.handleVoice)
	mux.HandleFunc("GET /api/notifications", s.handleNotifications)
	mux.HandleFunc("GET /api/events", s.handleEvents)

	var h http.Handler = mux
	h = identity.FromHeader(opts.UserHeader)(h)
	h = s.limiter.Middleware(detector.ClientIP, isProbe, s.onRateLimit)(h)
	h = detector.Middleware(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = log.Middleware(logger, trace.GetRequestID)(h)
	h = s.tracer.Middleware(h)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func isProbe(r *http.Request) bool {
	return r.URL.Path == "/healthz" || r.URL.Path == "/readyz"
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	writeJSON(w, http.StatusTooManyRequests, ErrorBody{Error: "rate limit exceeded", Code: CodeRateLimited})
}

// Shutdown stops accepting requests, then closes every session.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		shutdownErr = s.Server.Shutdown(ctx)
		s.caches.Stop()
		s.limiter.Stop()
		s.sessions.Close()
	})
	return shutdownErr
}

// Sessions exposes the session pool.
func (s *Server) Sessions() *Sessions {
	return s.sessions
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// session resolves the caller's identity and returns its started session.
// Failures are written to w.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*userSession, bool) {
	uid, err := identity.Context{}.UserID(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	us, err := s.sessions.Get(r.Context(), uid)
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return us, true
}

// fail writes err and drops a session that lost its store connection so the
// next request starts a fresh one.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, us *userSession, err error) {
	if _, code := classify(err); code == CodeUnavailable {
		s.sessions.drop(us.UserID(), us)
	}
	s.writeError(w, r, err)
}

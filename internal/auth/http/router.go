package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/sessionauth/internal/auth/csrf"
	"github.com/aussiebroadwan/sessionauth/internal/auth/metrics"
	"github.com/aussiebroadwan/sessionauth/internal/auth/service"
	"github.com/aussiebroadwan/sessionauth/internal/auth/store"
	"github.com/aussiebroadwan/sessionauth/pkg/authsdk"
	"github.com/aussiebroadwan/sessionauth/pkg/httpx"
	"github.com/aussiebroadwan/sessionauth/pkg/slogx"
	"github.com/redis/go-redis/v9"
)

// DefaultMaxBodyBytes bounds JSON request bodies.
const DefaultMaxBodyBytes = 10 << 10

// Limits are the rate limit profiles applied per client IP.
type Limits struct {
	API   httpx.RateLimitConfig
	Login httpx.RateLimitConfig
	Reset httpx.RateLimitConfig
}

// DefaultLimits returns the httpx profiles, including any env overrides.
func DefaultLimits() Limits {
	return Limits{API: httpx.APILimit, Login: httpx.LoginLimit, Reset: httpx.ResetLimit}
}

// Options tune the router. The zero value is a development setup.
type Options struct {
	Version        string
	Production     bool     // Secure cookies and HSTS
	AllowedOrigins []string // CORS origins allowed to send credentials
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	Limits         *Limits       // nil means DefaultLimits
	Redis          redis.Cmdable // shared rate limit counters; nil keeps them in process
	TrustedProxies int           // proxy hops trusted to report the client IP; 0 keys on the peer address
}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	sessions  *service.SessionService
	store     store.Store
	metrics   *metrics.Metrics
	csrf      *csrf.Guard
	opts      Options
	limits    Limits
	startTime time.Time
	logger    *slog.Logger
}

func NewRouter(
	sessions *service.SessionService,
	st store.Store,
	m *metrics.Metrics,
	logger *slog.Logger,
	opts Options,
) *Router {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	limits := DefaultLimits()
	if opts.Limits != nil {
		limits = *opts.Limits
	}

	r := &Router{
		Mux:       http.NewServeMux(),
		sessions:  sessions,
		store:     st,
		metrics:   m,
		csrf:      csrf.New(),
		opts:      opts,
		limits:    limits,
		startTime: time.Now(),
		logger:    logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		httpx.Recover(),
		httpx.SecurityHeaders(opts.Production),
		httpx.CORS(opts.AllowedOrigins...),
		httpx.BodyLimit(opts.MaxBodyBytes),
		httpx.Timeout(opts.RequestTimeout),
		r.csrf.Middleware(),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerSystem()

	r.Mux.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "Not found - "+req.URL.Path)
	})
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// limit returns an IP-keyed rate limit. Limiters with the same name share
// counters, in Redis when configured.
func (r *Router) limit(name string, config httpx.RateLimitConfig) httpx.Middleware {
	var limiter httpx.Limiter
	if r.opts.Redis != nil {
		limiter = httpx.NewRedisLimiter(r.opts.Redis, "ratelimit:"+name+":", config)
	} else {
		limiter = httpx.NewMemoryLimiter(config)
	}
	return httpx.RateLimit(limiter, config, httpx.ProxiedIPKeyExtractor(r.opts.TrustedProxies))
}

func (r *Router) registerAuth() {
	h := &AuthHandler{
		Sessions: r.sessions,
		cookies: cookieJar{
			secure:     r.opts.Production,
			accessTTL:  r.sessions.Tokens.AccessTTL(),
			refreshTTL: r.sessions.Tokens.RefreshTTL(),
		},
	}

	// Every API route shares one budget; login and reset add a stricter one.
	api := r.limit("api", r.limits.API)
	login := r.limit("login", r.limits.Login)
	reset := r.limit("reset", r.limits.Reset)
	authn := httpx.AuthnMiddleware(r.sessions.Tokens.AccessVerifier(), authsdk.AccessTokenCookie)

	r.Mux.Handle("POST /api/auth/register", httpx.Chain(http.HandlerFunc(h.HandleRegister), api))
	r.Mux.Handle("POST /api/auth/login", httpx.Chain(http.HandlerFunc(h.HandleLogin), api, login))
	r.Mux.Handle("POST /api/auth/refresh", httpx.Chain(http.HandlerFunc(h.HandleRefresh), api))
	r.Mux.Handle("POST /api/auth/logout", httpx.Chain(http.HandlerFunc(h.HandleLogout), api))
	r.Mux.Handle("GET /api/auth/csrf-token", httpx.Chain(http.HandlerFunc(h.HandleCSRFToken), api, authn))
	r.Mux.Handle("GET /api/auth/verify-email/{token}", httpx.Chain(http.HandlerFunc(h.HandleVerifyEmail), api))
	r.Mux.Handle("POST /api/auth/forgot-password", httpx.Chain(http.HandlerFunc(h.HandleForgotPassword), api, reset))
	r.Mux.Handle("POST /api/auth/reset-password", httpx.Chain(http.HandlerFunc(h.HandleResetPassword), api, reset))
	r.Mux.Handle("GET /api/auth/me", httpx.Chain(http.HandlerFunc(h.HandleMe), api, authn))
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /api/health", HealthHandler())
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.opts.Version))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.opts.Version, r.store))
	r.Mux.Handle("GET /metrics", r.metrics.Handler())
}

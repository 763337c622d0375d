package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"schememap/internal/cache"
	"schememap/internal/core"
	"schememap/internal/dataset"
	applog "schememap/internal/log"
	"schememap/internal/metrics"
	"schememap/internal/middleware/ratelimit"
	"schememap/internal/middleware/security"
	"schememap/internal/middleware/trace"
	"schememap/internal/services"
	appweb "schememap/web"
)

// Explorer runs the eligibility pipeline.
type Explorer interface {
	Explore(ctx context.Context, c core.Criteria) (services.Result, error)
	Categories() ([]string, error)
	IncomeMax() int64
}

// Snapshots reports the installed dataset.
type Snapshots interface {
	Current() (*dataset.Dataset, error)
}

// Reloader rebuilds the dataset from its sources.
type Reloader interface {
	Reload(ctx context.Context, reason string) (*dataset.Dataset, error)
}

// Options configures the server. Zero values fall back to defaults.
type Options struct {
	Addr               string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IncomeDefault      int64
	AdminToken         string
	RateLimitPerMinute int
	MapCacheSize       int
	MapCacheTTL        time.Duration
	Registerer         prometheus.Registerer
	Gatherer           prometheus.Gatherer
	Logger             *applog.Logger
}

type Server struct {
	http.Server
	templates *template.Template

	explorer Explorer
	data     Snapshots
	reloader Reloader

	incomeDefault int64
	adminToken    string
	startedAt     time.Time
	logger        *applog.Logger

	limiter  *ratelimit.Limiter
	detector *security.Detector
	pngCache *cache.LRU[[]byte]
	janitor  *cache.Janitor

	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run http.Server.
func NewServer(opts Options, explorer Explorer, data Snapshots, reloader Reloader) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.MapCacheSize <= 0 {
		opts.MapCacheSize = 64
	}
	if opts.MapCacheTTL <= 0 {
		opts.MapCacheTTL = 10 * time.Minute
	}
	if opts.IncomeDefault < 0 || opts.IncomeDefault > explorer.IncomeMax() {
		opts.IncomeDefault = 0
	}

	t, err := template.New("").Funcs(templateFuncs()).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	static, err := fs.Sub(appweb.StaticFS, "static")
	if err != nil {
		return nil, err
	}

	s := &Server{
		Server: http.Server{
			Addr:              opts.Addr,
			ReadTimeout:       opts.ReadTimeout,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      opts.WriteTimeout,
		},
		templates:     t,
		explorer:      explorer,
		data:          data,
		reloader:      reloader,
		incomeDefault: opts.IncomeDefault,
		adminToken:    opts.AdminToken,
		startedAt:     time.Now(),
		logger:        opts.Logger.WithComponent(applog.ComponentHTTP),
		limiter:       ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		detector:      security.NewDetector(),
		pngCache:      cache.NewLRU[[]byte](opts.MapCacheSize, opts.MapCacheTTL),
	}
	s.janitor = cache.StartJanitor(opts.MapCacheTTL, s.pngCache)
	metrics.RegisterMiddlewareCounters(opts.Registerer, s.limiter.Hits, s.detector.SuspiciousRequests)
	metrics.RegisterCacheCounters(opts.Registerer, s.pngCache.Hits, s.pngCache.Misses)

	s.Handler = s.routes(static, opts.Gatherer)
	return s, nil
}

func (s *Server) routes(static fs.FS, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(s.detector.Middleware)
	r.Use(trace.NewMiddleware(s.detector.ExtractClientIP, s.logger).Middleware)
	r.Use(applog.Middleware(s.logger))
	r.Use(applog.RequestIDMiddleware(trace.RequestIDFromRequest))

	// Probes and scraping stay outside the browser headers and rate limit.
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
		r.Use(s.limiter.Middleware(s.detector.ExtractClientIP, s.rateLimited, http.MethodPost))

		r.With(security.StaticAssetMiddleware(3600)).
			Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))

		r.Get("/", s.handleIndex)
		r.Post("/explore", s.handleExplore)
		r.Get("/api/explore", s.handleAPIExplore)
		r.Get("/map.png", s.handleMapPNG)
		r.Post("/admin/reload", s.handleAdminReload)
	})
	return r
}

func (s *Server) rateLimited(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldClientIP, s.detector.ExtractClientIP(r),
		applog.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "Too many requests. Please try again in a minute.").
		Header("Retry-After", "60").
		Write(w)
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		s.janitor.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

package router

import (
	"time"

	"github.com/gin-gonic/gin"

	authHandler "github.com/jwalitptl/slot-booking/internal/handler/auth"
	"github.com/jwalitptl/slot-booking/internal/handler/health"
	"github.com/jwalitptl/slot-booking/internal/handler/prometheus"
	"github.com/jwalitptl/slot-booking/internal/handler/slot"
	"github.com/jwalitptl/slot-booking/internal/middleware"
	"github.com/jwalitptl/slot-booking/pkg/validator"
)

type Router struct {
	engine  *gin.Engine
	auth    *middleware.AuthMiddleware
	authH   *authHandler.Handler
	slotH   *slot.Handler
	healthH *health.Handler
	metrics *prometheus.Handler
	config  RouterConfig
}

type RouterConfig struct {
	AllowedOrigins  []string
	ClaimsPerMinute int
	ClaimBurst      int
	RequestTimeout  time.Duration
	HSTS            bool
	// ReleaseMode switches gin out of debug mode.
	ReleaseMode bool
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	authH *authHandler.Handler,
	slotH *slot.Handler,
	healthH *health.Handler,
	metrics *prometheus.Handler,
	config RouterConfig,
) *Router {
	if config.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}
	validator.Register()

	engine := gin.New()

	security := middleware.DefaultSecurityConfig()
	security.HSTS = config.HSTS

	timeout := middleware.DefaultTimeoutConfig()
	if config.RequestTimeout > 0 {
		timeout.Duration = config.RequestTimeout
	}

	engine.Use(
		middleware.RequestID(),
		middleware.Logger(),
		metrics.Middleware(),
		middleware.Recovery(),
		middleware.ErrorHandler(),
		middleware.CORS(middleware.DefaultCORSConfig(config.AllowedOrigins...)),
		middleware.SecurityHeaders(security),
		middleware.SizeLimit(middleware.DefaultSizeLimitConfig()),
		middleware.Timeout(timeout),
	)

	return &Router{
		engine:  engine,
		auth:    auth,
		authH:   authH,
		slotH:   slotH,
		healthH: healthH,
		metrics: metrics,
		config:  config,
	}
}

func (r *Router) Setup() {
	api := r.engine.Group("/api/v1")

	r.healthH.RegisterRoutes(api)
	api.GET("/metrics", r.metrics.Handler())

	limiter := func() gin.HandlerFunc {
		return middleware.NewRateLimiter(middleware.RateLimiterConfig{
			PerMinute: r.config.ClaimsPerMinute,
			Burst:     r.config.ClaimBurst,
		}).RateLimit()
	}

	r.authH.RegisterRoutes(api, limiter())

	public := api.Group("")
	public.Use(r.auth.Identify())

	protected := api.Group("")
	protected.Use(r.auth.Authenticate())
	r.slotH.RegisterRoutes(public, protected, limiter())
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

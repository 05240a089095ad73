package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/keystore/internal/config"
	"github.com/turtacn/keystore/internal/domain/service"
	"github.com/turtacn/keystore/internal/infrastructure/monitoring"
	"github.com/turtacn/keystore/internal/interfaces/http/handlers"
	"github.com/turtacn/keystore/internal/interfaces/http/middleware"
	"github.com/turtacn/keystore/pkg/errors"
	"github.com/turtacn/keystore/pkg/logger"
)

// Router HTTP 路由器
type Router struct {
	engine        *gin.Engine
	config        *config.Config
	logger        logger.Logger
	keyHandler    *handlers.UserKeyHandler
	healthHandler *handlers.HealthHandler
	verifier      service.IdentityVerifier
	metrics       *monitoring.Metrics
	gatherer      prometheus.Gatherer
	tracer        trace.Tracer
	server        *http.Server
}

// NewRouter 创建路由器
func NewRouter(
	cfg *config.Config,
	log logger.Logger,
	keyHandler *handlers.UserKeyHandler,
	healthHandler *handlers.HealthHandler,
	verifier service.IdentityVerifier,
	metrics *monitoring.Metrics,
	gatherer prometheus.Gatherer,
	tracer trace.Tracer,
) *Router {
	// 设置 Gin 模式
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	// Trailing slashes are trimmed before routing instead of redirected.
	engine.RedirectTrailingSlash = false

	r := &Router{
		engine:        engine,
		config:        cfg,
		logger:        log.WithComponent("http"),
		keyHandler:    keyHandler,
		healthHandler: healthHandler,
		verifier:      verifier,
		metrics:       metrics,
		gatherer:      gatherer,
		tracer:        tracer,
	}
	r.setupRoutes()
	r.server = &http.Server{
		Addr:           fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort),
		Handler:        r.Handler(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20, // 1MB
	}
	return r
}

func (r *Router) setupRoutes() {
	// 全局中间件
	r.engine.Use(middleware.Recovery(r.logger))
	r.engine.Use(middleware.RequestID(r.logger))
	r.engine.Use(middleware.Observability(r.tracer, r.metrics))
	r.engine.Use(middleware.Logging(r.logger))

	if len(r.config.Server.AllowedOrigins) > 0 {
		r.engine.Use(cors.New(cors.Config{
			AllowOrigins:     r.config.Server.AllowedOrigins,
			AllowMethods:     []string{"GET", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
			ExposeHeaders:    []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	// 健康检查路由（不需要认证）
	health := r.engine.Group("/health")
	{
		health.GET("/live", r.healthHandler.LivenessCheck)
		health.GET("/ready", r.healthHandler.ReadinessCheck)
	}

	if r.config.Monitoring.MetricsEnabled && r.gatherer != nil {
		r.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})))
	}

	// Pprof 性能分析（仅在非生产环境）
	if r.config.Monitoring.PprofEnabled && r.config.Server.Environment != "production" {
		pprof.Register(r.engine)
	}

	org := r.engine.Group("/organizations/:organization")
	org.Use(middleware.Identity(r.verifier, r.logger))
	{
		org.GET("/user/publickey", r.keyHandler.GetOwnPublicKey)
		org.DELETE("/user/publickey", r.keyHandler.DeleteOwnPublicKey)
		org.GET("/users/:user/publickey", r.keyHandler.GetUserPublicKey)
		org.DELETE("/users/:user/publickey", r.keyHandler.DeleteUserPublicKey)
	}

	// 404 处理
	r.engine.NoRoute(func(c *gin.Context) {
		handlers.SendError(c, errors.ErrNotFound("the requested resource was not found"))
	})
}

// Handler returns the root handler. Paths ending in "/" are served as if the
// slash were absent.
func (r *Router) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if p := req.URL.Path; len(p) > 1 && strings.HasSuffix(p, "/") {
			req.URL.Path = strings.TrimRight(p, "/")
			if req.URL.Path == "" {
				req.URL.Path = "/"
			}
			req.URL.RawPath = ""
		}
		r.engine.ServeHTTP(w, req)
	})
}

// Start 启动 HTTP 服务器，阻塞直到服务器关闭
func (r *Router) Start() error {
	r.logger.Info(context.Background(), "Starting HTTP server", logger.Fields{"address": r.server.Addr})
	if err := r.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop 停止 HTTP 服务器
func (r *Router) Stop(ctx context.Context) error {
	r.logger.Info(ctx, "Stopping HTTP server...")
	return r.server.Shutdown(ctx)
}

//Personal.AI order the ending

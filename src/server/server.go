package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	app "photoalbum/src/app"
	cfg "photoalbum/src/configuration"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type (
	Options struct {
		Config *cfg.Properties
		Images *app.ImageService
		Auth   *app.AuthService
		// OIDC enables the /auth/oidc routes when set.
		OIDC     *OIDCLogin
		Registry *prometheus.Registry
		Log      *logrus.Logger
	}

	Server struct {
		config   *cfg.Properties
		router   *gin.Engine
		images   *app.ImageService
		auth     *app.AuthService
		oidc     *OIDCLogin
		registry *prometheus.Registry
		log      *logrus.Logger
	}
)

func NewServer(opts Options) *Server {
	if opts.Config.Server.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}
	registerValidationRules()

	s := &Server{
		config:   opts.Config,
		images:   opts.Images,
		auth:     opts.Auth,
		oidc:     opts.OIDC,
		registry: opts.Registry,
		log:      opts.Log,
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	s.router = s.newRouter()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) newRouter() *gin.Engine {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "photoalbum",
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})
	if err := s.registry.Register(requests); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			requests = already.ExistingCollector.(*prometheus.CounterVec)
		}
	}

	router := gin.New()
	router.Use(recovery(s.log), sentryHub(), requestLogger(s.log, requests))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     s.config.Server.CorsOrigins,
		AllowMethods:     []string{"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Content-Length", "Accept-Encoding", "Authorization", "Cache-Control"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	if s.config.Server.Pprof {
		pprof.Register(router)
	}

	router.GET("/health", s.GetHealth)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	if local, ok := s.images.Backend().(*app.LocalStorage); ok {
		router.Static("/uploads", local.Root())
	}

	auth := router.Group("/auth")
	auth.POST("/signup", s.SignUp)
	auth.POST("/signin", s.SignIn)
	auth.POST("/signout", s.requireAuth(), s.SignOut)
	if s.oidc != nil {
		auth.GET("/oidc/login", s.OIDCSignIn)
		auth.GET("/oidc/callback", s.OIDCCallback)
	}

	public := router.Group("/images")
	public.POST("/upload", s.UploadImage)
	public.POST("/sign", s.optionalAuth(), s.SignUpload)

	images := router.Group("/images", s.requireAuth())
	images.POST("", s.SaveImage)
	images.GET("", s.GetImageList)
	images.GET("/labels/all", s.GetLabels)
	images.POST("/labels/new", s.CreateLabel)
	images.DELETE("/labels/:id", s.DeleteLabel)
	images.GET("/:id", s.GetImage)
	images.DELETE("/:id", s.DeleteImage)
	images.POST("/:id/archive", s.ArchiveImage)
	images.POST("/:id/restore", s.RestoreImage)
	images.POST("/:id/labels", s.AddImageLabel)
	images.DELETE("/:id/labels/:labelId", s.RemoveImageLabel)

	router.NoRoute(func(c *gin.Context) { c.JSON(http.StatusNotFound, errorBody("route not found")) })
	return router
}

func (s *Server) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", s.config.Server.Port),
		Handler:           s.router,
		ReadHeaderTimeout: s.config.Server.ReadTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.WithField("addr", srv.Addr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
		defer cancel()
		s.log.Info("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

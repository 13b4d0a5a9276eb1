// Package httpserver exposes the backup service over HTTP: notifications,
// health and Prometheus metrics.
package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ledgerbak/internal/backup"
	"ledgerbak/internal/fs"
)

// DefaultAddr is used when no listen address is configured.
const DefaultAddr = "127.0.0.1:8411"

// Service is the part of backup.Service the API needs.
type Service interface {
	backup.Notifier
	State() backup.WorkerState
	QueueDepth() int
	Accepting() bool
}

// Server serves the HTTP API.
type Server struct {
	addr      string
	svc       Service
	allowed   map[string]bool
	logger    backup.Logger
	engine    *gin.Engine
	startTime time.Time

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewServer builds the API. When restrict is set, POST /notify only accepts
// paths listed in resources.
func NewServer(addr string, svc Service, resources []string, restrict bool, logger backup.Logger) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	s := &Server{
		addr:      addr,
		svc:       svc,
		logger:    logger,
		startTime: time.Now(),
	}
	if restrict {
		s.allowed = make(map[string]bool, len(resources))
		for _, r := range resources {
			if p, err := fs.Resolve(r); err == nil {
				s.allowed[p] = true
			}
		}
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.POST("/notify", s.handleNotify)
	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.engine = r
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	server := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	s.logger.Info("http server listening", "addr", listener.Addr().String())
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server failed", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address once started, else the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	s.mu.Unlock()
	if server == nil {
		return nil
	}
	s.logger.Info("http server stopping")
	return server.Shutdown(ctx)
}

// Run starts the server and stops it when ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return s.Stop(shutdownCtx)
}

func (s *Server) handleNotify(c *gin.Context) {
	var req struct {
		Path string `json:"path" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body or missing path field"})
		return
	}

	path, err := fs.Resolve(req.Path)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if s.allowed != nil && !s.allowed[path] {
		c.JSON(http.StatusForbidden, gin.H{"error": "path is not a configured resource"})
		return
	}
	if !s.svc.Accepting() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "backup service is stopping"})
		return
	}

	s.svc.Notify(path)
	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "path": path})
}

func (s *Server) handleHealth(c *gin.Context) {
	status, code := "ok", http.StatusOK
	if !s.svc.Accepting() {
		status, code = "stopping", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":      status,
		"worker":      s.svc.State().String(),
		"queue_depth": s.svc.QueueDepth(),
		"uptime":      time.Since(s.startTime).Round(time.Second).String(),
	})
}

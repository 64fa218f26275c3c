// Package server 通过 HTTP 提供转换、批量上传、模式切换与变体推断接口。
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yleoer/zhconv/pkg/engine"
	"github.com/yleoer/zhconv/pkg/jobs"
	"github.com/yleoer/zhconv/pkg/pipeline"
	"github.com/yleoer/zhconv/pkg/provider"
)

// EngineProvider 是服务依赖的 provider.Provider 能力
type EngineProvider interface {
	pipeline.Source
	State() provider.State
	SetMode(mode engine.Mode) error
	CachedModes() []engine.Mode
}

// Options 是 HTTP 服务的配置
type Options struct {
	APIToken  string // 为空时不校验
	BodyLimit int64
	Version   string
}

// Server 持有路由依赖
type Server struct {
	provider EngineProvider
	runner   *jobs.Runner
	opts     Options
	logger   *zap.Logger
}

// New 创建一个新的 Server 实例
func New(p EngineProvider, runner *jobs.Runner, opts Options, logger *zap.Logger) *Server {
	return &Server{provider: p, runner: runner, opts: opts, logger: logger}
}

// Router 构建 gin 路由
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog(), s.limitBody())
	r.HandleMethodNotAllowed = true
	r.NoRoute(func(c *gin.Context) { c.String(http.StatusNotFound, "404 Not found") })
	r.NoMethod(func(c *gin.Context) { c.String(http.StatusMethodNotAllowed, "405 Method not allowed") })

	r.GET("/", s.doc)
	r.GET("/info", s.info)
	r.GET("/groups", s.groups)

	api := r.Group("/", s.authorize())
	{
		api.GET("/mode", s.getMode)
		api.PUT("/mode", s.putMode)
		api.POST("/convert/:target", s.convert)
		api.POST("/batch/:target", s.batch)
		api.POST("/is-hans", s.isHans)
	}
	return r
}

// ListenAndServe 在 addr 上提供服务，ctx 结束后优雅关闭
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}

func (s *Server) limitBody() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.opts.BodyLimit > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.opts.BodyLimit)
		}
		c.Next()
	}
}

func (s *Server) authorize() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.opts.APIToken == "" {
			c.Next()
			return
		}
		if c.GetHeader("Authorization") != "Bearer "+s.opts.APIToken {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "401 Unauthorized"})
			return
		}
		c.Next()
	}
}

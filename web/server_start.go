package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tradeforge/config"
	"tradeforge/logger"
)

// WebServer Web服务器
type WebServer struct {
	server *http.Server
	addr   string
}

// NewWebServer 创建Web服务器，web.enabled=false 时返回 nil
func NewWebServer(cfg *config.Config, svc *Services) *WebServer {
	if !cfg.Web.Enabled {
		return nil
	}

	debug := cfg.System.LogLevel == "debug"
	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(GinLoggerMiddleware(debug))
	r.Use(I18nMiddleware())

	SetupRoutes(r, svc)

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	return &WebServer{
		addr: addr,
		server: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  time.Duration(cfg.Web.ReadTimeout) * time.Second,
			WriteTimeout: time.Duration(cfg.Web.WriteTimeout) * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start 启动Web服务器，ctx 取消后自动关闭
func (ws *WebServer) Start(ctx context.Context) error {
	if ws == nil {
		return nil
	}

	go func() {
		logger.Info("🌐 Web服务器启动在 http://%s", ws.addr)
		if err := ws.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("❌ Web服务器启动失败: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		ws.Stop()
	}()

	return nil
}

// Stop 停止Web服务器
func (ws *WebServer) Stop() {
	if ws == nil || ws.server == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := ws.server.Shutdown(ctx); err != nil {
		logger.Error("❌ Web服务器关闭失败: %v", err)
		return
	}
	logger.Info("✅ Web服务器已关闭")
}

package server

import (
	"context"
	"net/http"
	"time"

	"Bt1QLink/config"
	"Bt1QLink/core/link"
	"Bt1QLink/logger"

	"github.com/gorilla/mux"
)

// Server 管理接口的 HTTP 服务
type Server struct {
	cfg     *config.Config
	handler *APIHandler
	httpSrv *http.Server
}

// New builds the admin HTTP server around a running link manager.
func New(cfg *config.Config, mgr *link.Manager) *Server {
	handler := NewAPIHandler(cfg, mgr)

	router := mux.NewRouter()

	// 添加 CORS 中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	router.HandleFunc("/api/login", handler.LoginHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/nodes", handler.AuthMiddleware(handler.GetNodesHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/players", handler.AuthMiddleware(handler.GetPlayersHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/players/{guild_id}", handler.AuthMiddleware(handler.GetPlayerHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/players/{guild_id}/move", handler.AuthMiddleware(handler.MovePlayerHandler)).Methods(http.MethodPost)

	return &Server{
		cfg:     cfg,
		handler: handler,
		httpSrv: &http.Server{
			Addr:         cfg.AdminAddr,
			Handler:      router,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
	}
}

// Run blocks serving requests until Shutdown is called.
func (s *Server) Run() error {
	logger.Info("admin server listening", logger.String("addr", s.httpSrv.Addr))
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown 优雅关闭,等待在途请求完成
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

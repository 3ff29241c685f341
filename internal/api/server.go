package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"BondingBot/internal/telegram"
	"BondingBot/pkg/logger"
)

// Handler 消费一条入站消息。实现负责自行向用户回发结果。
type Handler interface {
	HandleUpdate(ctx context.Context, userID int64, text string)
}

// Server 暴露 Telegram webhook 入口。每条更新在独立 goroutine 中
// 处理，HTTP 层立即确认，避免 Telegram 因超时重投。
type Server struct {
	addr        string
	secretToken string
	handler     Handler
	logger      *slog.Logger
}

// NewServer 构造 webhook 服务实例。secretToken 为空时跳过来源校验。
func NewServer(addr, secretToken string, handler Handler) *Server {
	return &Server{
		addr:        addr,
		secretToken: secretToken,
		handler:     handler,
		logger:      logger.Named("api"),
	}
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(30 * time.Second))
	router.Get("/healthz", s.handleHealth)
	router.Post("/telegram/webhook", s.handleWebhook)

	server := &http.Server{
		Addr:              s.addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.logger.Info("webhook 服务已启动", slog.String("addr", s.addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleWebhook 校验来源并分发一条 Telegram 更新。
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "来源校验失败", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "请求体读取失败", http.StatusBadRequest)
		return
	}
	var update telegram.Update
	if err := json.Unmarshal(body, &update); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}

	// 非文本更新（贴纸、成员变动等）直接确认并忽略。
	if update.Message == nil || update.Message.From == nil || update.Message.Text == "" {
		w.WriteHeader(http.StatusOK)
		return
	}

	userID := update.Message.From.ID
	text := update.Message.Text
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		s.handler.HandleUpdate(ctx, userID, text)
	}()

	w.WriteHeader(http.StatusOK)
}

// authorized 用常数时间比较校验 Telegram 的 secret token 头。
func (s *Server) authorized(r *http.Request) bool {
	if s.secretToken == "" {
		return true
	}
	got := r.Header.Get("X-Telegram-Bot-Api-Secret-Token")
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.secretToken)) == 1
}

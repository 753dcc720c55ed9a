package bot

import (
	"encoding/json"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server — HTTP-фасад бота. Чат-адаптеры (Slack, Mattermost, тестовый CLI)
// доставляют сюда уже извлеченные из своей платформы сообщения; сам бот
// о чат-платформе ничего не знает.
type Server struct {
	router *chi.Mux
	core   *Core
	logger *zap.Logger
}

func NewServer(core *Core, reg *prometheus.Registry, logger *zap.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		core:   core,
		logger: logger.Named("bot-api"),
	}
	s.routes(reg)
	return s
}

func (s *Server) routes(reg *prometheus.Registry) {
	r := s.router

	// --- Глобальные инфраструктурные Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(TracingMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	if reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	r.Post("/v1/messages", s.handleMessage)
}

type messageRequest struct {
	SenderID string   `json:"sender_id"`
	Aliases  []string `json:"aliases,omitempty"`
	Text     string   `json:"text"`
}

type messageResponse struct {
	Reply string `json:"reply"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.SenderID == "" || req.Text == "" {
		http.Error(w, "sender_id and text are required", http.StatusBadRequest)
		return
	}

	// RealIP уже развернул X-Forwarded-For / X-Real-IP в RemoteAddr
	sourceIP := remoteIP(r)

	reply := s.core.OnMessage(r.Context(), Message{
		SenderID: req.SenderID,
		Aliases:  req.Aliases,
		SourceIP: sourceIP,
		Text:     req.Text,
	})

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(messageResponse{Reply: reply}); err != nil {
		s.logger.Error("failed to write response", zap.Error(err))
	}
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr без порта (уже чистый IP после RealIP)
		return r.RemoteAddr
	}
	return host
}

// ServeHTTP позволяет использовать Server как стандартный http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

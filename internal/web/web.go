package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/AlexYaroshenko/notifybot/internal/bot"
	"github.com/AlexYaroshenko/notifybot/internal/metrics"
)

// maxBodyBytes caps webhook payloads; Telegram updates are tiny.
const maxBodyBytes = 1 << 20

// Server owns the HTTP surface: the webhook, the health probe and metrics.
type Server struct {
	srv        *http.Server
	dispatcher *bot.Dispatcher
	log        zerolog.Logger
}

func NewServer(port string, dispatcher *bot.Dispatcher, log zerolog.Logger) *Server {
	s := &Server{
		dispatcher: dispatcher,
		log:        log,
	}
	s.srv = &http.Server{
		Addr:         ":" + port,
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Router builds the route table. Exposed for handler tests.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/telegram/webhook", s.handleWebhook)
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	return r
}

func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.srv.Addr).Msg("starting web server")
	return s.srv.ListenAndServe()
}

// Shutdown stops accepting traffic, then waits for detached continuations.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return err
	}
	s.dispatcher.Wait()
	return nil
}

// handleWebhook acknowledges the delivery first and processes it afterwards.
// Telegram retries aggressively on timeouts and non-2xx responses, so the 200
// must never wait on the store or on outbound sends — and a malformed body is
// still acknowledged, otherwise the same broken payload would be redelivered
// forever.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.log.Warn().Err(err).Msg("webhook body read failed")
		body = nil
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"ok":true}`))

	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	if len(body) > 0 {
		s.dispatcher.HandleAsync(body)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// KeepAlive pings the health endpoint every few minutes so free-tier hosting
// does not put the instance to sleep between updates.
func KeepAlive(baseURL string, log zerolog.Logger) {
	ticker := time.NewTicker(4 * time.Minute)
	defer ticker.Stop()

	client := &http.Client{Timeout: 10 * time.Second}
	for range ticker.C {
		resp, err := client.Get(baseURL + "/health")
		if err != nil {
			log.Warn().Err(err).Msg("keep-alive ping failed")
			continue
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			log.Warn().Int("status", resp.StatusCode).Msg("keep-alive ping returned non-200")
		}
	}
}

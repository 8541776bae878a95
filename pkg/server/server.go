// Package server is the inbound HTTP edge: the WhatsApp webhook pipeline
// (signature verification, rate limiting, deduplication, background
// dispatch) and the synchronous chat API.
package server

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/relayne/crmagent/agent/contract"
	"github.com/relayne/crmagent/pkg/dedup"
	phonex "github.com/relayne/crmagent/pkg/phone"
	"github.com/relayne/crmagent/pkg/ratelimit"
)

type Config struct {
	Addr            string        `split_words:"true" default:":8080"`
	BearerKey       string        `split_words:"true"`
	RateLimitMax    int           `split_words:"true" default:"20"`
	RateLimitWindow time.Duration `split_words:"true" default:"1m"`
	DedupTTL        time.Duration `split_words:"true" default:"1h"`
	DispatchTimeout time.Duration `split_words:"true" default:"3m"`
}

// Server wires the two inbound paths to the responder and the outbound
// sender. dispatch is replaceable so pipeline tests can count background
// hand-offs without running the agent.
type Server struct {
	responder contractx.Responder
	sender    contractx.Sender

	verifyToken string
	appSecret   string
	bearerKey   string

	limiter *ratelimit.Limiter
	dedup   *dedup.Deduplicator

	dispatchTimeout time.Duration
	dispatch        func(sender, text string)
	background      sync.WaitGroup

	addr string
}

func New(cfg Config, responder contractx.Responder, sender contractx.Sender, verifyToken, appSecret string) *Server {
	s := &Server{
		responder:       responder,
		sender:          sender,
		verifyToken:     strings.TrimSpace(verifyToken),
		appSecret:       strings.TrimSpace(appSecret),
		bearerKey:       strings.TrimSpace(cfg.BearerKey),
		limiter:         ratelimit.New(cfg.RateLimitMax, cfg.RateLimitWindow),
		dedup:           dedup.New(dedup.WithTTL(cfg.DedupTTL)),
		dispatchTimeout: cfg.DispatchTimeout,
		addr:            cfg.Addr,
	}
	s.dispatch = s.dispatchBackground
	return s
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api", s.handleHealth)
	mux.HandleFunc("GET /api/whatsapp", s.handleVerification)
	mux.HandleFunc("POST /api/whatsapp", s.handleWebhook)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	return mux
}

// ListenAndServe blocks serving the API.
func (s *Server) ListenAndServe() error {
	log.Info().Str("addr", s.addr).Msg("http server listening")
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return httpServer.ListenAndServe()
}

// Wait blocks until in-flight background dispatches finish. Used by tests
// and shutdown.
func (s *Server) Wait() { s.background.Wait() }

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "crmagent"})
}

// dispatchBackground hands the slow path (agent decision plus outbound
// delivery) to its own goroutine so the webhook handler can acknowledge
// immediately.
func (s *Server) dispatchBackground(sender, text string) {
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		s.processMessage(sender, text)
	}()
}

func (s *Server) processMessage(sender, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.dispatchTimeout)
	defer cancel()

	reply, err := s.responder.Respond(ctx, sender, text)
	if err != nil {
		log.Error().Err(err).Str("sender", phonex.Mask(sender)).Msg("agent failed to produce a reply")
		reply = "Sorry, something went wrong on our side while handling your message. Please try again in a few minutes."
	}
	if reply == "" {
		return
	}
	if err := s.sender.SendText(ctx, sender, reply); err != nil {
		log.Error().Err(err).Str("sender", phonex.Mask(sender)).Msg("outbound delivery failed")
	}
}

// clientKey is the rate-limit key for direct API callers.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = jsonEncode(w, body)
}

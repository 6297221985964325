// Package server receives signed interaction webhooks and hands them to the
// dispatcher.
package server

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/small-frappuccino/quickvids/pkg/discord/commands/core"
	"github.com/small-frappuccino/quickvids/pkg/log"
	"golang.org/x/time/rate"
)

const (
	defaultMaxBodyBytes    = 64 * 1024
	defaultResponseTimeout = 2500 * time.Millisecond
	defaultHandlerTimeout  = 15 * time.Minute
)

// Dispatcher routes one interaction. *core.Client implements it.
type Dispatcher interface {
	Dispatch(req core.Request)
}

// Options configures a Server.
type Options struct {
	Addr        string
	PublicKey   ed25519.PublicKey
	Session     *discordgo.Session
	Dispatcher  Dispatcher
	RedirectURL string

	// ResponseTimeout bounds how long the webhook waits for the initial response.
	ResponseTimeout time.Duration
	// HandlerTimeout bounds the detached handler, follow-ups included.
	HandlerTimeout time.Duration

	// Per-client-IP limit on the interactions route; zero disables it.
	RateLimit rate.Limit
	RateBurst int
	// X-Forwarded-For is only honoured for peers inside these prefixes.
	TrustedProxies []netip.Prefix
}

// Server is the interactions HTTP endpoint.
type Server struct {
	opts       Options
	httpServer *http.Server
	listener   net.Listener
	limiters   *expirable.LRU[string, *rate.Limiter]
}

// New builds the server and its routes. Call Start to listen.
func New(opts Options) *Server {
	if opts.ResponseTimeout <= 0 {
		opts.ResponseTimeout = defaultResponseTimeout
	}
	if opts.HandlerTimeout <= 0 {
		opts.HandlerTimeout = defaultHandlerTimeout
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 1
	}
	s := &Server{opts: opts}
	if opts.RateLimit > 0 {
		s.limiters = expirable.NewLRU[string, *rate.Limiter](4096, nil, 10*time.Minute)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /interactions", s.handleInteraction)
	mux.HandleFunc("GET /{$}", s.handleRoot)
	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the routes, mainly for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start opens the listening socket and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("bind interactions server: %w", err)
	}
	s.listener = ln

	log.ApplicationLogger().Info("Listening for interactions", "addr", ln.Addr().String())

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.ErrorLoggerRaw().Error("Interactions server stopped unexpectedly", "err", err)
		}
	}()
	return nil
}

// Stop shuts the server down, waiting up to five seconds for in-flight requests.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.httpServer == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("shutdown interactions server: %w", err)
	}
	log.ApplicationLogger().Info("Interactions server stopped", "addr", s.opts.Addr)
	return nil
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if s.opts.RedirectURL == "" {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, s.opts.RedirectURL, http.StatusFound)
}

func (s *Server) handleInteraction(w http.ResponseWriter, r *http.Request) {
	if !s.allow(clientIP(r, s.opts.TrustedProxies)) {
		http.Error(w, "Too many requests", http.StatusTooManyRequests)
		return
	}
	if s.opts.Dispatcher == nil || len(s.opts.PublicKey) != ed25519.PublicKeySize {
		http.Error(w, "Invalid request", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, defaultMaxBodyBytes)
	defer r.Body.Close()

	if !discordgo.VerifyInteraction(r, s.opts.PublicKey) {
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	interaction, kind, err := core.ParseInteraction(body)
	if err != nil {
		log.DiscordLogger().Warn("Rejected interaction payload", "err", err)
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	requestID := uuid.NewString()
	responder := newHTTPResponder()
	done := make(chan struct{})

	// The handler outlives this HTTP turn when it defers, so it gets a
	// context that is not cancelled with the request.
	handlerCtx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.opts.HandlerTimeout)
	go func() {
		defer close(done)
		defer cancel()
		s.opts.Dispatcher.Dispatch(core.Request{
			Ctx:         handlerCtx,
			Session:     s.opts.Session,
			Interaction: interaction,
			Responder:   responder,
			RequestID:   requestID,
		})
	}()

	timer := time.NewTimer(s.opts.ResponseTimeout)
	defer timer.Stop()

	select {
	case resp := <-responder.ch:
		writeResponse(w, resp)
	case <-done:
		// The handler may have answered right before returning.
		select {
		case resp := <-responder.ch:
			writeResponse(w, resp)
		default:
			responder.close()
			w.WriteHeader(http.StatusNoContent)
		}
	case <-timer.C:
		responder.close()
		select {
		case resp := <-responder.ch:
			writeResponse(w, resp)
		default:
			log.DiscordLogger().Warn("No initial response within the response window",
				"request_id", requestID, "kind", kind.String(), "timeout", s.opts.ResponseTimeout)
			http.Error(w, "Response window closed", http.StatusServiceUnavailable)
		}
	}
}

func writeResponse(w http.ResponseWriter, resp *discordgo.InteractionResponse) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(resp); err != nil {
		log.ErrorLoggerRaw().Error("Failed to encode interaction response", "err", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) allow(ip string) bool {
	if s.limiters == nil {
		return true
	}
	lim, ok := s.limiters.Get(ip)
	if !ok {
		lim = rate.NewLimiter(s.opts.RateLimit, s.opts.RateBurst)
		// Concurrent first requests may race here; the loser's limiter is dropped.
		s.limiters.Add(ip, lim)
	}
	return lim.Allow()
}

// clientIP returns the peer address, or the first X-Forwarded-For hop when
// the peer is a trusted proxy.
func clientIP(r *http.Request, trusted []netip.Prefix) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	fwd := r.Header.Get("X-Forwarded-For")
	if fwd == "" || len(trusted) == 0 {
		return host
	}
	peer, err := netip.ParseAddr(host)
	if err != nil {
		return host
	}
	peer = peer.Unmap()
	for _, p := range trusted {
		if p.Contains(peer) {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
			break
		}
	}
	return host
}

// Package control serves the loopback admin API used to inspect the bot and
// edit per-guild settings.
package control

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/small-frappuccino/quickvids/pkg/log"
	"github.com/small-frappuccino/quickvids/pkg/storage"
)

const defaultMaxBodyBytes = 64 * 1024

// Store is what the admin API reads and edits.
type Store interface {
	Stats() (storage.Stats, error)
	Ping() (time.Duration, error)
	GuildConfig(guildID string) (storage.GuildConfig, error)
	UpdateGuildConfig(guildID string, fn func(*storage.GuildConfig) error) (storage.GuildConfig, error)
	Account(userID string) (storage.Account, error)
	SetPremium(userID string, premium bool) error
}

// Server exposes operational controls for a running bot.
type Server struct {
	addr       string
	store      Store
	version    string
	httpServer *http.Server
	listener   net.Listener
}

// NewServer returns nil if addr is empty.
func NewServer(addr string, store Store, version string) *Server {
	addr = strings.TrimSpace(addr)
	if addr == "" || store == nil {
		return nil
	}

	mux := http.NewServeMux()
	s := &Server{
		addr:    addr,
		store:   store,
		version: version,
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("GET /v1/stats", s.handleStats)
	mux.HandleFunc("GET /v1/guilds/{guildID}/config", s.handleGetGuildConfig)
	mux.HandleFunc("PATCH /v1/guilds/{guildID}/config", s.handlePatchGuildConfig)
	mux.HandleFunc("GET /v1/accounts/{userID}", s.handleGetAccount)
	mux.HandleFunc("PUT /v1/accounts/{userID}/premium", s.handlePutPremium)

	return s
}

// Handler returns the routing handler.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start opens the control server listening socket.
func (s *Server) Start() error {
	if s == nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("bind control server: %w", err)
	}
	s.listener = ln

	log.ApplicationLogger().Info("Control server listening", "addr", ln.Addr().String())

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.ApplicationLogger().Error("Control server stopped unexpectedly", "err", err)
		}
	}()

	return nil
}

// Stop shuts down the control server.
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
		return fmt.Errorf("shutdown control server: %w", err)
	}

	log.ApplicationLogger().Info("Control server stopped", "addr", s.addr)
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.ApplicationLogger().Error("Failed to encode control response", "err", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	latency, err := s.store.Ping()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":  "degraded",
			"version": s.version,
			"error":   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"version":    s.version,
		"db_ping_ms": latency.Milliseconds(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	st, err := s.store.Stats()
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to read stats: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{
		"total_embedded":    st.TotalEmbedded,
		"embedded_past_day": st.EmbeddedPastDay,
		"embedded_today":    st.EmbeddedToday,
		"total_users":       st.TotalUsers,
		"server_count":      st.ServerCount,
	})
}

func (s *Server) handleGetGuildConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.store.GuildConfig(r.PathValue("guildID"))
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to read guild config: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handlePatchGuildConfig(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, defaultMaxBodyBytes)
	defer r.Body.Close()

	var patch map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}
	if len(patch) == 0 {
		http.Error(w, "payload must contain at least one field", http.StatusBadRequest)
		return
	}

	guildID := r.PathValue("guildID")
	updated, err := s.store.UpdateGuildConfig(guildID, func(cfg *storage.GuildConfig) error {
		for field, raw := range patch {
			setter, ok := guildConfigFieldSetters[field]
			if !ok {
				return badRequest(fmt.Errorf("unknown field %q", field))
			}
			if err := setter(cfg, raw); err != nil {
				return badRequest(fmt.Errorf("field %s: %w", field, err))
			}
		}
		return nil
	})
	if err != nil {
		status := http.StatusInternalServerError
		var httpErr *httpError
		if errors.As(err, &httpErr) {
			status = httpErr.code
		}
		http.Error(w, fmt.Sprintf("failed to update guild config: %v", err), status)
		return
	}

	log.ApplicationLogger().Info("Guild config updated", "guild_id", guildID, "fields", len(patch))
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"guild_config": updated,
	})
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := s.store.Account(r.PathValue("userID"))
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to read account: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

// handlePutPremium grants or revokes the stored premium flag. Discord
// entitlements are checked separately at interaction time.
func (s *Server) handlePutPremium(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, defaultMaxBodyBytes)
	defer r.Body.Close()

	var body struct {
		Premium *bool `json:"premium"`
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}
	if body.Premium == nil {
		http.Error(w, "payload must contain premium", http.StatusBadRequest)
		return
	}

	userID := r.PathValue("userID")
	if err := s.store.SetPremium(userID, *body.Premium); err != nil {
		http.Error(w, fmt.Sprintf("failed to update account: %v", err), http.StatusInternalServerError)
		return
	}
	acc, err := s.store.Account(userID)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to read account: %v", err), http.StatusInternalServerError)
		return
	}
	log.ApplicationLogger().Info("Premium flag updated", "user_id", userID, "premium", acc.HasPremium)
	writeJSON(w, http.StatusOK, acc)
}

type setterFunc func(*storage.GuildConfig, json.RawMessage) error

var guildConfigFieldSetters = map[string]setterFunc{
	"show_buttons":          boolSetter(func(c *storage.GuildConfig, v bool) { c.ShowButtons = v }),
	"markdown_links":        boolSetter(func(c *storage.GuildConfig, v bool) { c.MarkdownLinks = v }),
	"mention_magic_channel": stringSetter(func(c *storage.GuildConfig, v string) { c.MentionMagicChannel = v }),
}

func stringSetter(assign func(*storage.GuildConfig, string)) setterFunc {
	return func(c *storage.GuildConfig, raw json.RawMessage) error {
		v, err := decodeString(raw)
		if err != nil {
			return err
		}
		assign(c, v)
		return nil
	}
}

// boolSetter rejects null; only string fields can be cleared.
func boolSetter(assign func(*storage.GuildConfig, bool)) setterFunc {
	return func(c *storage.GuildConfig, raw json.RawMessage) error {
		if bytes.Equal(raw, []byte("null")) {
			return fmt.Errorf("null is not a bool")
		}
		var v bool
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		assign(c, v)
		return nil
	}
}

func badRequest(err error) error {
	return &httpError{
		code: http.StatusBadRequest,
		err:  err,
	}
}

type httpError struct {
	code int
	err  error
}

func (e *httpError) Error() string { return e.err.Error() }
func (e *httpError) Unwrap() error { return e.err }

func decodeString(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("empty string value")
	}
	if bytes.Equal(raw, []byte("null")) {
		return "", nil
	}

	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	return strings.TrimSpace(v), nil
}

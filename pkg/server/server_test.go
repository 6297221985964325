package server

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/quickvids/pkg/discord/commands/core"
	"golang.org/x/time/rate"
)

type testServer struct {
	srv  *Server
	priv ed25519.PrivateKey
}

func newTestServer(t *testing.T, d Dispatcher, mutate func(*Options)) *testServer {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	opts := Options{
		PublicKey:       pub,
		Dispatcher:      d,
		RedirectURL:     "https://quickvids.win",
		ResponseTimeout: 200 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&opts)
	}
	return &testServer{srv: New(opts), priv: priv}
}

func (ts *testServer) post(t *testing.T, body string, sign bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/interactions", strings.NewReader(body))
	ts.sign(req, body, sign)
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) sign(req *http.Request, body string, valid bool) {
	timestamp := "1700000000"
	req.Header.Set("X-Signature-Timestamp", timestamp)
	sig := ed25519.Sign(ts.priv, []byte(timestamp+body))
	if !valid {
		sig[0] ^= 0xff
	}
	req.Header.Set("X-Signature-Ed25519", hex.EncodeToString(sig))
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) discordgo.InteractionResponse {
	t.Helper()
	var resp discordgo.InteractionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return resp
}

const pingBody = `{"id":"1","application_id":"app","type":1,"token":"tok","version":1}`

func commandBody(name string) string {
	return `{"id":"2","application_id":"app","type":2,"token":"tok","version":1,"channel_id":"c","guild_id":"g",` +
		`"member":{"user":{"id":"u1","username":"alice"},"permissions":"0"},` +
		`"data":{"id":"cmd","name":"` + name + `","type":1}}`
}

var slowDone = make(chan error, 1)

func newClient(t *testing.T) *core.Client {
	t.Helper()
	ext := core.NewExtension("test")
	ext.SlashCommand(core.CommandMeta{Name: "ping"}, func(ctx *core.SlashCommandContext) error {
		return ctx.Reply(core.Text("pong"))
	})
	ext.SlashCommand(core.CommandMeta{Name: "slow"}, func(ctx *core.SlashCommandContext) error {
		time.Sleep(400 * time.Millisecond)
		slowDone <- ctx.Reply(core.Text("late"))
		return nil
	})
	reg, err := core.BuildRegistry(ext)
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return core.NewClient(reg)
}

func TestPingIsAnsweredWithPong(t *testing.T) {
	ts := newTestServer(t, newClient(t), nil)
	rec := ts.post(t, pingBody, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if resp := decodeResponse(t, rec); resp.Type != discordgo.InteractionResponsePong {
		t.Fatalf("expected pong, got %d", resp.Type)
	}
}

func TestInvalidSignatureRejected(t *testing.T) {
	ts := newTestServer(t, newClient(t), nil)
	rec := ts.post(t, pingBody, false)
	if rec.Code != http.StatusUnauthorized || !strings.Contains(rec.Body.String(), "Invalid signature") {
		t.Fatalf("expected 401 Invalid signature, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestMissingDispatcherRejected(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	rec := ts.post(t, pingBody, true)
	if rec.Code != http.StatusUnauthorized || !strings.Contains(rec.Body.String(), "Invalid request") {
		t.Fatalf("expected 401 Invalid request, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestCommandReplyReturnedInBody(t *testing.T) {
	ts := newTestServer(t, newClient(t), nil)
	rec := ts.post(t, commandBody("ping"), true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Type != discordgo.InteractionResponseChannelMessageWithSource || resp.Data == nil || resp.Data.Content != "pong" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestUnknownCommandGetsNoContent(t *testing.T) {
	ts := newTestServer(t, newClient(t), nil)
	rec := ts.post(t, commandBody("missing"), true)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for a routing miss, got %d", rec.Code)
	}
}

func TestResponseWindowCloses(t *testing.T) {
	ts := newTestServer(t, newClient(t), nil)
	start := time.Now()
	rec := ts.post(t, commandBody("slow"), true)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 after the response window, got %d", rec.Code)
	}
	if time.Since(start) > 350*time.Millisecond {
		t.Fatalf("webhook must not wait for the handler")
	}
	select {
	case err := <-slowDone:
		if !errors.Is(err, core.ErrResponseWindowClosed) {
			t.Fatalf("expected ErrResponseWindowClosed for the late reply, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("handler never finished")
	}
}

func TestMalformedPayloadRejected(t *testing.T) {
	ts := newTestServer(t, newClient(t), nil)
	rec := ts.post(t, `{"type":99,"id":"1","token":"t"}`, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestRateLimitPerIP(t *testing.T) {
	ts := newTestServer(t, newClient(t), func(o *Options) {
		o.RateLimit = rate.Every(time.Second)
		o.RateBurst = 2
	})
	for i := 0; i < 2; i++ {
		if rec := ts.post(t, pingBody, true); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}
	if rec := ts.post(t, pingBody, true); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 once the burst is spent, got %d", rec.Code)
	}
}

func TestRootRedirects(t *testing.T) {
	ts := newTestServer(t, newClient(t), nil)
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "https://quickvids.win" {
		t.Fatalf("unexpected redirect %d %q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestClientIP(t *testing.T) {
	proxies := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}
	tests := []struct {
		name    string
		remote  string
		fwd     string
		trusted []netip.Prefix
		want    string
	}{
		{name: "peer", remote: "10.0.0.1:1234", want: "10.0.0.1"},
		{name: "forwarded without trusted proxies", remote: "198.51.100.4:1234", fwd: "203.0.113.7", want: "198.51.100.4"},
		{name: "forwarded from untrusted peer", remote: "198.51.100.4:1234", fwd: "203.0.113.7", trusted: proxies, want: "198.51.100.4"},
		{name: "forwarded from trusted proxy", remote: "10.0.0.1:1234", fwd: "203.0.113.7, 10.0.0.1", trusted: proxies, want: "203.0.113.7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/interactions", bytes.NewReader(nil))
			req.RemoteAddr = tt.remote
			if tt.fwd != "" {
				req.Header.Set("X-Forwarded-For", tt.fwd)
			}
			if got := clientIP(req, tt.trusted); got != tt.want {
				t.Fatalf("clientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSpoofedForwardedForSharesLimiter(t *testing.T) {
	ts := newTestServer(t, newClient(t), func(o *Options) {
		o.RateLimit = rate.Every(time.Second)
		o.RateBurst = 1
	})
	for i, fwd := range []string{"203.0.113.1", "203.0.113.2"} {
		req := httptest.NewRequest(http.MethodPost, "/interactions", strings.NewReader(pingBody))
		req.RemoteAddr = "198.51.100.4:1234"
		req.Header.Set("X-Forwarded-For", fwd)
		ts.sign(req, pingBody, true)
		rec := httptest.NewRecorder()
		ts.srv.Handler().ServeHTTP(rec, req)
		want := http.StatusOK
		if i == 1 {
			want = http.StatusTooManyRequests
		}
		if rec.Code != want {
			t.Fatalf("request %d: expected %d, got %d", i, want, rec.Code)
		}
	}
}

package server

import (
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/quickvids/pkg/discord/commands/core"
)

// httpResponder hands the initial response back to the waiting webhook
// request. It accepts one response, and none once the window has closed.
type httpResponder struct {
	mu     sync.Mutex
	ch     chan *discordgo.InteractionResponse
	sent   bool
	closed bool
}

func newHTTPResponder() *httpResponder {
	return &httpResponder{ch: make(chan *discordgo.InteractionResponse, 1)}
}

func (h *httpResponder) Respond(resp *discordgo.InteractionResponse) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return core.ErrResponseWindowClosed
	}
	if h.sent {
		return core.ErrAlreadyResponded
	}
	h.sent = true
	h.ch <- resp
	return nil
}

func (h *httpResponder) close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
}

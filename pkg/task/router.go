// Package task runs background jobs on per-group workers with retries.
package task

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/small-frappuccino/quickvids/pkg/log"
)

// Handler processes one payload. Returning an error wrapped with Permanent
// stops further attempts.
type Handler func(ctx context.Context, payload any) error

// Options configures a single task. Zero values fall back to the Config.
type Options struct {
	// GroupKey serializes tasks sharing a key. Empty uses one global group.
	GroupKey string
	// DedupeKey drops repeats enqueued within DedupeTTL.
	DedupeKey   string
	MaxAttempts int
}

// Task is one unit of work.
type Task struct {
	Type    string
	Payload any
	Options Options
}

// Config tunes a Router.
type Config struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	DedupeTTL      time.Duration
	// AttemptTimeout bounds the context handed to each handler call.
	AttemptTimeout time.Duration
	GroupBuffer    int
	GroupIdleTTL   time.Duration
	CleanupEvery   time.Duration
}

// Defaults returns the production settings.
func Defaults() Config {
	return Config{
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		DedupeTTL:      time.Minute,
		AttemptTimeout: 10 * time.Second,
		GroupBuffer:    128,
		GroupIdleTTL:   2 * time.Minute,
		CleanupEvery:   2 * time.Minute,
	}
}

var (
	ErrClosed      = errors.New("task router is closed")
	ErrUnknownType = errors.New("unknown task type")
	ErrDuplicate   = errors.New("duplicate task")
	ErrQueueFull   = errors.New("task queue is full")
)

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

const globalGroup = "_global"

// Router is an in-memory queue. Dispatch never blocks: a full group buffer
// rejects the task with ErrQueueFull.
type Router struct {
	mu       sync.Mutex
	cfg      Config
	handlers map[string]Handler
	groups   map[string]*group
	seen     map[string]time.Time
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type group struct {
	key        string
	ch         chan *queued
	lastActive time.Time
}

type queued struct {
	task    Task
	attempt int
}

func NewRouter(cfg Config) *Router {
	def := Defaults()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.DedupeTTL <= 0 {
		cfg.DedupeTTL = def.DedupeTTL
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = def.AttemptTimeout
	}
	if cfg.GroupBuffer <= 0 {
		cfg.GroupBuffer = def.GroupBuffer
	}
	if cfg.GroupIdleTTL <= 0 {
		cfg.GroupIdleTTL = def.GroupIdleTTL
	}
	if cfg.CleanupEvery <= 0 {
		cfg.CleanupEvery = def.CleanupEvery
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Router{
		cfg:      cfg,
		handlers: make(map[string]Handler),
		groups:   make(map[string]*group),
		seen:     make(map[string]time.Time),
		ctx:      ctx,
		cancel:   cancel,
	}
	r.wg.Add(1)
	go r.janitor()
	return r
}

// Handle registers h for taskType, replacing any previous handler.
func (r *Router) Handle(taskType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[taskType] = h
}

// Dispatch enqueues t.
func (r *Router) Dispatch(t Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if r.handlers[t.Type] == nil {
		return ErrUnknownType
	}
	if key := t.Options.DedupeKey; key != "" {
		if until, ok := r.seen[key]; ok && time.Now().Before(until) {
			return ErrDuplicate
		}
		r.seen[key] = time.Now().Add(r.cfg.DedupeTTL)
	}

	g := r.groupLocked(t.Options.GroupKey)
	select {
	case g.ch <- &queued{task: t, attempt: 1}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops the workers. Queued tasks and pending retries are dropped and
// running handlers see their context cancelled.
func (r *Router) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	for key, g := range r.groups {
		close(g.ch)
		delete(r.groups, key)
	}
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
}

func (r *Router) groupLocked(key string) *group {
	if key == "" {
		key = globalGroup
	}
	if g, ok := r.groups[key]; ok {
		return g
	}
	g := &group{key: key, ch: make(chan *queued, r.cfg.GroupBuffer), lastActive: time.Now()}
	r.groups[key] = g
	r.wg.Add(1)
	go r.work(g)
	return g
}

func (r *Router) work(g *group) {
	defer r.wg.Done()

	for q := range g.ch {
		if r.ctx.Err() != nil {
			return
		}
		r.mu.Lock()
		g.lastActive = time.Now()
		h := r.handlers[q.task.Type]
		r.mu.Unlock()

		ctx, cancel := context.WithTimeout(r.ctx, r.cfg.AttemptTimeout)
		err := h(ctx, q.task.Payload)
		cancel()
		if err == nil {
			continue
		}
		if r.ctx.Err() != nil {
			return
		}

		maxAttempts := q.task.Options.MaxAttempts
		if maxAttempts <= 0 {
			maxAttempts = r.cfg.MaxAttempts
		}
		if IsPermanent(err) || q.attempt >= maxAttempts {
			log.ErrorLoggerRaw().Error("Task failed; giving up",
				"type", q.task.Type,
				"group", g.key,
				"attempts", q.attempt,
				"err", err,
			)
			continue
		}

		delay := r.backoff(q.attempt)
		log.ApplicationLogger().Warn("Task failed, scheduling retry",
			"type", q.task.Type,
			"group", g.key,
			"attempt", q.attempt+1,
			"max_attempts", maxAttempts,
			"backoff", delay.String(),
			"err", err,
		)
		r.retryAfter(g.key, &queued{task: q.task, attempt: q.attempt + 1}, delay)
	}
}

func (r *Router) retryAfter(key string, q *queued, d time.Duration) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-r.ctx.Done():
			return
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed {
			return
		}
		select {
		case r.groupLocked(key).ch <- q:
		default:
			log.ErrorLoggerRaw().Error("Task retry dropped; queue full", "type", q.task.Type, "group", key)
		}
	}()
}

// backoff doubles per attempt with 10% jitter, clamped to the configured range.
func (r *Router) backoff(attempt int) time.Duration {
	d := r.cfg.InitialBackoff
	for i := 1; i < attempt && d < r.cfg.MaxBackoff; i++ {
		d *= 2
	}
	if delta := int64(d) / 10; delta > 0 {
		d += time.Duration(rand.Int64N(2*delta+1) - delta)
	}
	return max(min(d, r.cfg.MaxBackoff), r.cfg.InitialBackoff)
}

func (r *Router) janitor() {
	defer r.wg.Done()
	t := time.NewTicker(r.cfg.CleanupEvery)
	defer t.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-t.C:
			r.cleanup(time.Now())
		}
	}
}

// cleanup forgets expired dedupe keys and stops idle groups.
func (r *Router) cleanup(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, until := range r.seen {
		if now.After(until) {
			delete(r.seen, k)
		}
	}
	for key, g := range r.groups {
		if now.Sub(g.lastActive) >= r.cfg.GroupIdleTTL && len(g.ch) == 0 {
			close(g.ch)
			delete(r.groups, key)
		}
	}
}

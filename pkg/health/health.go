// Package health serves liveness and readiness probes.
//
// Every check runs on its own ticker. A check turns unhealthy only after
// FailureThreshold consecutive failures and healthy again after
// SuccessThreshold consecutive passes, so a single slow ping does not flap
// the probe.
package health

import (
	"cmp"
	"context"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Check reports whether a dependency is usable.
type Check func(ctx context.Context) error

// Config tunes check scheduling.
type Config struct {
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold int
	SuccessThreshold int
}

func (c *Config) setDefaults() {
	if c.Interval <= 0 {
		c.Interval = 10 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Second
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 1
	}
}

type probe struct {
	name  string
	check Check

	healthy atomic.Bool
	lastErr atomic.Pointer[string]

	// Owned by the goroutine calling observe.
	fails  int
	passes int
}

// observe runs the check once and returns true when the probe changed state.
func (p *probe) observe(ctx context.Context, cfg Config) bool {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	err := p.check(ctx)
	if err != nil {
		msg := err.Error()
		p.lastErr.Store(&msg)
		p.passes = 0
		p.fails++
		return p.fails >= cfg.FailureThreshold && p.healthy.CompareAndSwap(true, false)
	}
	p.lastErr.Store(nil)
	p.fails = 0
	p.passes++
	return p.passes >= cfg.SuccessThreshold && p.healthy.CompareAndSwap(false, true)
}

func (p *probe) reason() string {
	if msg := p.lastErr.Load(); msg != nil {
		return *msg
	}
	return "check is failing"
}

// Health tracks the probes of one process.
type Health struct {
	cfg   Config
	ready atomic.Bool

	mu        sync.RWMutex
	liveness  []*probe
	readiness []*probe
	cancel    context.CancelFunc
	done      sync.WaitGroup
}

// New returns a Health that is not ready until SetReady(true).
func New(cfg Config) *Health {
	cfg.setDefaults()
	return &Health{cfg: cfg}
}

func (h *Health) add(list *[]*probe, name string, check Check) {
	p := &probe{name: name, check: check}
	p.healthy.Store(true)

	h.mu.Lock()
	*list = append(*list, p)
	h.mu.Unlock()
}

// Liveness registers a check that gates /livez.
func (h *Health) Liveness(name string, check Check) { h.add(&h.liveness, name, check) }

// Readiness registers a check that gates /readyz.
func (h *Health) Readiness(name string, check Check) { h.add(&h.readiness, name, check) }

// Start runs every registered check until Stop or ctx cancellation. State
// changes are logged with the logger from ctx.
func (h *Health) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	if h.cancel != nil {
		h.mu.Unlock()
		cancel()
		return
	}
	h.cancel = cancel
	probes := slices.Concat(h.liveness, h.readiness)
	h.mu.Unlock()

	for _, p := range probes {
		h.done.Add(1)
		go func() {
			defer h.done.Done()
			h.watch(ctx, p)
		}()
	}
}

func (h *Health) watch(ctx context.Context, p *probe) {
	lg := zctx.From(ctx).With(zap.String("check", p.name))
	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()

	for {
		if p.observe(ctx, h.cfg) {
			if p.healthy.Load() {
				lg.Info("Health check recovered")
			} else {
				lg.Warn("Health check failing", zap.String("error", p.reason()))
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop cancels the checks and waits for them to return. It is idempotent.
func (h *Health) Stop() {
	h.mu.Lock()
	cancel := h.cancel
	h.cancel = nil
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	h.done.Wait()
}

// SetReady flips the manual readiness gate, e.g. false at shutdown.
func (h *Health) SetReady(ready bool) { h.ready.Store(ready) }

// IsReady reports whether the gate is open and every readiness check passes.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, p := range h.readiness {
		if !p.healthy.Load() {
			return false
		}
	}
	return true
}

// LiveHandler serves /livez.
func (h *Health) LiveHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		h.mu.RLock()
		probes := slices.Clone(h.liveness)
		h.mu.RUnlock()
		respond(w, true, probes)
	})
}

// ReadyHandler serves /readyz.
func (h *Health) ReadyHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		h.mu.RLock()
		probes := slices.Clone(h.readiness)
		h.mu.RUnlock()
		respond(w, h.ready.Load(), probes)
	})
}

// respond writes {"status":"ok"} or, on failure, 503 with the failing checks:
//
//	{"status":"unavailable","checks":{"postgres":"dial tcp: refused"}}
func respond(w http.ResponseWriter, gate bool, probes []*probe) {
	failing := make([]*probe, 0, len(probes))
	for _, p := range probes {
		if !p.healthy.Load() {
			failing = append(failing, p)
		}
	}
	slices.SortFunc(failing, func(a, b *probe) int { return cmp.Compare(a.name, b.name) })

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	code := http.StatusOK
	e.ObjStart()
	if gate && len(failing) == 0 {
		e.FieldStart("status")
		e.Str("ok")
	} else {
		code = http.StatusServiceUnavailable
		e.FieldStart("status")
		e.Str("unavailable")
		e.FieldStart("checks")
		e.ObjStart()
		if !gate {
			e.FieldStart("_gate")
			e.Str("service is not ready")
		}
		for _, p := range failing {
			e.FieldStart(p.name)
			e.Str(p.reason())
		}
		e.ObjEnd()
	}
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}

// Package signal routes strategy output to subscribers: dedupe within a
// cooldown window, optional narrative enrichment, persistence, fan-out.
package signal

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zeromicro/go-zero/core/logx"

	"tradepulse/pkg/strategy"
)

const (
	defaultCooldown   = 5 * time.Minute
	defaultHistoryCap = 200
)

// Subscriber receives every broadcast signal. Implementations must not
// assume exclusive ownership of the signal.
type Subscriber func(ctx context.Context, sig *strategy.Signal)

// Archive persists signals. Failures are logged, never fatal.
type Archive interface {
	Save(ctx context.Context, sig *strategy.Signal) error
}

// Manager implements strategy.Emitter: it stamps IDs, drops repeats inside
// the cooldown window, enriches, persists, and fans out.
type Manager struct {
	cooldown time.Duration
	narrator *Narrator
	archive  Archive

	mu          sync.Mutex
	lastEmit    map[string]time.Time
	history     []*strategy.Signal
	historyCap  int
	subscribers []Subscriber

	emitted int64
	deduped int64
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithCooldown sets the per-(symbol, strategy) dedupe window.
func WithCooldown(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.cooldown = d
		}
	}
}

// WithNarrator enables narrative enrichment.
func WithNarrator(n *Narrator) ManagerOption {
	return func(m *Manager) { m.narrator = n }
}

// WithArchive enables persistence of emitted signals.
func WithArchive(a Archive) ManagerOption {
	return func(m *Manager) { m.archive = a }
}

// WithHistoryCap bounds the in-memory signal history.
func WithHistoryCap(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.historyCap = n
		}
	}
}

func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		cooldown:   defaultCooldown,
		lastEmit:   make(map[string]time.Time),
		historyCap: defaultHistoryCap,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Subscribe registers a callback for every future broadcast.
func (m *Manager) Subscribe(sub Subscriber) {
	m.mu.Lock()
	m.subscribers = append(m.subscribers, sub)
	m.mu.Unlock()
}

// Emit processes one signal. A repeat of the same (symbol, strategy) inside
// the cooldown window is dropped silently.
func (m *Manager) Emit(ctx context.Context, sig *strategy.Signal) {
	if sig == nil {
		return
	}
	key := sig.Symbol + "/" + sig.Strategy
	now := time.Now().UTC()

	m.mu.Lock()
	if last, ok := m.lastEmit[key]; ok && now.Sub(last) < m.cooldown {
		m.deduped++
		m.mu.Unlock()
		return
	}
	m.lastEmit[key] = now
	m.mu.Unlock()

	if sig.ID == "" {
		sig.ID = uuid.NewString()
	}
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = now
	}
	// Best effort: an unreachable LLM just means no narrative.
	if m.narrator != nil {
		sig.Narrative = m.narrator.Narrate(ctx, sig)
	}

	logx.Infof("signal %s: %s %s %s at %.4f (%.2f) %s",
		sig.ID, sig.Strategy, sig.Direction, sig.Symbol, sig.Price, sig.Confidence, sig.Reason)

	if m.archive != nil {
		if err := m.archive.Save(ctx, sig); err != nil {
			logx.WithContext(ctx).Errorf("signal archive %s: %v", sig.ID, err)
		}
	}

	m.mu.Lock()
	m.history = append(m.history, sig)
	if len(m.history) > m.historyCap {
		m.history = m.history[len(m.history)-m.historyCap:]
	}
	subs := append([]Subscriber(nil), m.subscribers...)
	m.emitted++
	m.mu.Unlock()

	for _, sub := range subs {
		sub(ctx, sig)
	}
}

// Warm seeds the cooldown window, typically from persisted signals after a
// restart so a redeploy does not re-broadcast fresh setups.
func (m *Manager) Warm(symbol, strategyName string, at time.Time) {
	m.mu.Lock()
	m.lastEmit[symbol+"/"+strategyName] = at.UTC()
	m.mu.Unlock()
}

// History returns the newest signals, most recent last, up to limit.
func (m *Manager) History(limit int) []*strategy.Signal {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.history
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return append([]*strategy.Signal(nil), out...)
}

// ManagerStats are process-local signal counters.
type ManagerStats struct {
	Emitted int64 `json:"emitted"`
	Deduped int64 `json:"deduped"`
}

func (m *Manager) Stats() ManagerStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ManagerStats{Emitted: m.emitted, Deduped: m.deduped}
}

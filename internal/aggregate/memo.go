package aggregate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"peerpulse-backend/internal/telemetry"
)

// Insights is the gateway-produced part of a result
type Insights struct {
	Themes    []string `json:"themes"`
	Advice    string   `json:"advice,omitempty"`
	Strengths string   `json:"strengths,omitempty"`
	Growth    string   `json:"growth,omitempty"`
	// InputKey fingerprints the data the insights were produced from
	InputKey string `json:"input_key"`
}

func fingerprint(v any) string {
	data, _ := json.Marshal(v)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

type slot[T any] struct {
	version  uint64
	numbers  T
	inputKey string
	insights Insights
	// settled is set once insights belong to inputKey
	settled bool
	ready   chan struct{}
}

// memo holds the last result per key. Numeric fields are recomputed whenever
// the store version moves; insights are recomputed in the background only
// when their input changed, and the previous ones are served meanwhile.
type memo[T any] struct {
	mu     sync.Mutex
	slots  map[string]*slot[T]
	cache  Cache
	logger echo.Logger
	// insightTimeout bounds one background gateway run
	insightTimeout time.Duration
	// onReady, when set, hears about every finished background run
	onReady func(key string, insights Insights)
}

func newMemo[T any](cache Cache, logger echo.Logger) *memo[T] {
	return &memo[T]{
		slots:          make(map[string]*slot[T]),
		cache:          cache,
		logger:         logger,
		insightTimeout: 2 * time.Minute,
	}
}

type job[T any] struct {
	key     string
	version uint64
	force   bool
	// numbers computes the numeric result and the input of insights
	numbers func() (T, any)
	// insights runs in the background
	insights func(ctx context.Context) Insights
}

type resolved[T any] struct {
	numbers  T
	insights Insights
	pending  bool
	// empty is set when there are no insights at all to show yet
	empty bool
	ready <-chan struct{}
}

func (m *memo[T]) snapshot(s *slot[T]) resolved[T] {
	return resolved[T]{
		numbers:  s.numbers,
		insights: s.insights,
		pending:  !s.settled,
		empty:    s.insights.InputKey == "",
		ready:    s.ready,
	}
}

// current returns the latest result for key
func (m *memo[T]) current(key string) (resolved[T], bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[key]
	if !ok {
		return resolved[T]{}, false
	}
	return m.snapshot(s), true
}

func (m *memo[T]) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.slots))
	for k := range m.slots {
		keys = append(keys, k)
	}
	return keys
}

func (m *memo[T]) restore(ctx context.Context, key string) (Insights, bool) {
	if m.cache == nil {
		return Insights{}, false
	}
	var cached Insights
	ok, err := m.cache.Get(ctx, key, &cached)
	if err != nil {
		m.logger.Warnf("Failed to read cached insights for %s: %v", key, err)
		return Insights{}, false
	}
	return cached, ok && cached.InputKey != ""
}

func (m *memo[T]) resolve(ctx context.Context, j job[T]) resolved[T] {
	m.mu.Lock()
	prev := m.slots[j.key]
	if prev != nil && prev.version == j.version && !j.force {
		r := m.snapshot(prev)
		m.mu.Unlock()
		telemetry.AggregateRecomputes.WithLabelValues("hit").Inc()
		return r
	}
	m.mu.Unlock()

	var restored Insights
	hasRestored := false
	if prev == nil {
		restored, hasRestored = m.restore(ctx, j.key)
	}

	numbers, input := j.numbers()
	inputKey := fingerprint(input)
	next := &slot[T]{version: j.version, numbers: numbers, inputKey: inputKey, ready: make(chan struct{})}

	m.mu.Lock()
	// Another caller may have resolved the same version meanwhile
	if cur := m.slots[j.key]; cur != nil && cur != prev && cur.version == j.version && !j.force {
		r := m.snapshot(cur)
		m.mu.Unlock()
		telemetry.AggregateRecomputes.WithLabelValues("hit").Inc()
		return r
	}
	prev = m.slots[j.key]
	m.slots[j.key] = next
	telemetry.AggregateRecomputes.WithLabelValues("miss").Inc()

	switch {
	case prev != nil && prev.settled && prev.inputKey == inputKey && !j.force:
		next.insights, next.settled = prev.insights, true
		close(next.ready)
	case prev != nil && !prev.settled && prev.inputKey == inputKey && !j.force:
		// Same input is already being worked on
		next.insights = prev.insights
		go m.follow(prev, next)
	case prev == nil && hasRestored && restored.InputKey == inputKey && !j.force:
		next.insights, next.settled = restored, true
		close(next.ready)
	default:
		if prev != nil {
			next.insights = prev.insights
		} else if hasRestored {
			next.insights = restored
		}
		go m.run(j, next)
	}
	r := m.snapshot(next)
	m.mu.Unlock()
	return r
}

func (m *memo[T]) follow(prev, next *slot[T]) {
	<-prev.ready
	m.mu.Lock()
	next.insights, next.settled = prev.insights, true
	m.mu.Unlock()
	close(next.ready)
}

func (m *memo[T]) run(j job[T], s *slot[T]) {
	ctx, cancel := context.WithTimeout(context.Background(), m.insightTimeout)
	defer cancel()

	insights := j.insights(ctx)
	insights.InputKey = s.inputKey

	m.mu.Lock()
	s.insights, s.settled = insights, true
	onReady := m.onReady
	m.mu.Unlock()
	close(s.ready)

	if onReady != nil {
		onReady(j.key, insights)
	}

	if m.cache != nil {
		if err := m.cache.Set(ctx, j.key, insights); err != nil {
			m.logger.Warnf("Failed to cache insights for %s: %v", j.key, err)
		}
	}
}

// wait blocks until r's insights are settled or ctx is done, then returns
// the latest result for key
func (m *memo[T]) wait(ctx context.Context, key string, r resolved[T]) resolved[T] {
	if !r.pending {
		return r
	}
	select {
	case <-r.ready:
	case <-ctx.Done():
		return r
	}
	if cur, ok := m.current(key); ok {
		return cur
	}
	return r
}

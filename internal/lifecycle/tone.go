package lifecycle

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"peerpulse-backend/internal/insight"
)

// ToneDebounce is the quiet period after the last keystroke before a tone check runs
const ToneDebounce = 1500 * time.Millisecond

// ErrSuperseded is returned by Check when newer input arrived for the same field
var ErrSuperseded = errors.New("tone check superseded by newer input")

// Rephraser suggests a kinder wording, or "" when none is needed
type Rephraser interface {
	RephraseTone(ctx context.Context, text string) string
}

type toneCheck struct {
	generation uint64
	timer      *time.Timer
	done       chan struct{}
	suggestion string
	err        error
}

type toneField struct {
	key        string
	owner      string
	input      string
	generation uint64
	pending    *toneCheck
	// suggestion belongs to input only when hasResult is set
	suggestion string
	hasResult  bool
	lastUsed   uint64
}

// MaxToneFields bounds the fields tracked per owner. The least recently used
// field is forgotten first, idle ones before pending ones.
const MaxToneFields = 16

// ToneChecker debounces tone checks per field. Each new input for a field
// cancels the check that has not fired yet. A suggestion is only applied while
// its input is still the field's current input.
type ToneChecker struct {
	rephraser   Rephraser
	delay       time.Duration
	callTimeout time.Duration

	mu       sync.Mutex
	fields   map[string]*toneField
	byOwner  map[string]map[string]*toneField
	clock    uint64
	onResult func(key, suggestion string)
}

func NewToneChecker(rephraser Rephraser, delay time.Duration) *ToneChecker {
	return &ToneChecker{
		rephraser:   rephraser,
		delay:       delay,
		callTimeout: 30 * time.Second,
		fields:      make(map[string]*toneField),
		byOwner:     make(map[string]map[string]*toneField),
	}
}

// OnResult registers fn to receive every suggestion applied to a field
func (t *ToneChecker) OnResult(fn func(key, suggestion string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onResult = fn
}

// toneOwner is the part of key before the first colon
func toneOwner(key string) string {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[:i]
	}
	return key
}

// field returns the field for key, making room under its owner's cap.
// Callers hold t.mu.
func (t *ToneChecker) field(key string) *toneField {
	t.clock++
	if f, ok := t.fields[key]; ok {
		f.lastUsed = t.clock
		return f
	}

	owner := toneOwner(key)
	owned := t.byOwner[owner]
	if owned == nil {
		owned = make(map[string]*toneField)
		t.byOwner[owner] = owned
	}
	if len(owned) >= MaxToneFields {
		t.evict(owned)
	}

	f := &toneField{key: key, owner: owner, lastUsed: t.clock}
	t.fields[key] = f
	owned[key] = f
	return f
}

func (t *ToneChecker) evict(owned map[string]*toneField) {
	var victim *toneField
	for _, f := range owned {
		switch {
		case victim == nil:
			victim = f
		case (f.pending == nil) != (victim.pending == nil):
			if f.pending == nil {
				victim = f
			}
		case f.lastUsed < victim.lastUsed:
			victim = f
		}
	}
	if victim == nil {
		return
	}

	// A forgotten field answers its waiting check as superseded
	victim.generation++
	if p := victim.pending; p != nil && p.timer.Stop() {
		p.err = ErrSuperseded
		close(p.done)
	}
	victim.pending = nil
	delete(owned, victim.key)
	delete(t.fields, victim.key)
}

func tooShort(text string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(text)) < insight.MinToneLength
}

// Check records text as the current input of field key and waits for its
// debounced tone check. Keys look like "owner:field". Short input resolves to
// "" at once. When newer input arrives first, Check returns ErrSuperseded.
func (t *ToneChecker) Check(ctx context.Context, key, text string) (string, error) {
	t.mu.Lock()
	f := t.field(key)

	if p := f.pending; p != nil && p.timer.Stop() {
		p.err = ErrSuperseded
		close(p.done)
	}
	f.pending = nil
	f.generation++
	f.input = text
	f.suggestion, f.hasResult = "", false

	if tooShort(text) {
		f.hasResult = true
		t.mu.Unlock()
		return "", nil
	}

	p := &toneCheck{generation: f.generation, done: make(chan struct{})}
	f.pending = p
	p.timer = time.AfterFunc(t.delay, func() { t.fire(f, p, text) })
	t.mu.Unlock()

	select {
	case <-p.done:
		return p.suggestion, p.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (t *ToneChecker) fire(f *toneField, p *toneCheck, text string) {
	t.mu.Lock()
	if f.generation != p.generation {
		t.mu.Unlock()
		p.err = ErrSuperseded
		close(p.done)
		return
	}
	f.pending = nil
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), t.callTimeout)
	suggestion := t.rephraser.RephraseTone(ctx, text)
	cancel()

	t.mu.Lock()
	var onResult func(key, suggestion string)
	if f.generation == p.generation && f.input == text {
		f.suggestion, f.hasResult = suggestion, true
		p.suggestion = suggestion
		onResult = t.onResult
	} else {
		p.err = ErrSuperseded
	}
	t.mu.Unlock()
	close(p.done)

	if onResult != nil {
		onResult(f.key, suggestion)
	}
}

// Latest returns the suggestion for the field's current input, if its check
// has completed
func (t *ToneChecker) Latest(key string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, ok := t.fields[key]
	if !ok || !f.hasResult {
		return "", false
	}
	return f.suggestion, true
}

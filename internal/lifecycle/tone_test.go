package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRephraser struct {
	mu    sync.Mutex
	calls []string
	// gate, when set, holds every call until it is closed
	gate chan struct{}
}

func (f *fakeRephraser) RephraseTone(ctx context.Context, text string) string {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return "softer: " + text
}

func (f *fakeRephraser) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (t *ToneChecker) hasPending(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.fields[key]
	return ok && f.pending != nil
}

func TestToneCheckShortInputIsImmediate(t *testing.T) {
	fake := &fakeRephraser{}
	checker := NewToneChecker(fake, time.Hour)

	start := time.Now()
	suggestion, err := checker.Check(context.Background(), "1:strengths", "ten chars!")
	require.NoError(t, err)
	assert.Equal(t, "", suggestion)
	assert.Less(t, time.Since(start), time.Second)
	assert.Empty(t, fake.seen())

	latest, ok := checker.Latest("1:strengths")
	assert.True(t, ok)
	assert.Equal(t, "", latest)
}

func TestToneCheckOnlyLatestInputIsChecked(t *testing.T) {
	fake := &fakeRephraser{}
	checker := NewToneChecker(fake, 50*time.Millisecond)
	ctx := context.Background()
	key := "1:growth"

	firstErr := make(chan error, 1)
	go func() {
		_, err := checker.Check(ctx, key, "Your demo was confusing")
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return checker.hasPending(key) }, time.Second, time.Millisecond)

	suggestion, err := checker.Check(ctx, key, "Your demo was really confusing")
	require.NoError(t, err)
	assert.Equal(t, "softer: Your demo was really confusing", suggestion)

	assert.ErrorIs(t, <-firstErr, ErrSuperseded)
	assert.Equal(t, []string{"Your demo was really confusing"}, fake.seen())

	latest, ok := checker.Latest(key)
	assert.True(t, ok)
	assert.Equal(t, suggestion, latest)
}

func TestToneCheckStaleResponseIsIgnored(t *testing.T) {
	fake := &fakeRephraser{gate: make(chan struct{})}
	checker := NewToneChecker(fake, 10*time.Millisecond)
	ctx := context.Background()
	key := "1:strengths"

	firstErr := make(chan error, 1)
	go func() {
		_, err := checker.Check(ctx, key, "The launch plan was sloppy")
		firstErr <- err
	}()
	// The first check is in flight once the fake has seen it
	require.Eventually(t, func() bool { return len(fake.seen()) == 1 }, time.Second, time.Millisecond)

	// Newer short input replaces it while the call is outstanding
	_, err := checker.Check(ctx, key, "Nice launch")
	require.NoError(t, err)

	close(fake.gate)
	assert.ErrorIs(t, <-firstErr, ErrSuperseded)

	latest, ok := checker.Latest(key)
	assert.True(t, ok)
	assert.Equal(t, "", latest)
}

func TestToneCheckFieldsAreIndependent(t *testing.T) {
	fake := &fakeRephraser{}
	checker := NewToneChecker(fake, 20*time.Millisecond)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]string, 2)
	for i, key := range []string{"1:strengths", "1:growth"} {
		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()
			results[i], _ = checker.Check(ctx, key, "Field number "+key+" text")
		}(i, key)
	}
	wg.Wait()

	assert.Equal(t, "softer: Field number 1:strengths text", results[0])
	assert.Equal(t, "softer: Field number 1:growth text", results[1])
	assert.Len(t, fake.seen(), 2)
}

func TestToneCheckContextCancel(t *testing.T) {
	checker := NewToneChecker(&fakeRephraser{}, time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := checker.Check(ctx, "1:strengths", "This will never be checked")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, ok := checker.Latest("1:strengths")
	assert.False(t, ok)
}

func TestToneCheckReportsAppliedResults(t *testing.T) {
	fake := &fakeRephraser{}
	checker := NewToneChecker(fake, 50*time.Millisecond)
	ctx := context.Background()
	key := "7:growth"

	var mu sync.Mutex
	reported := map[string]string{}
	checker.OnResult(func(key, suggestion string) {
		mu.Lock()
		defer mu.Unlock()
		reported[key] = suggestion
	})

	firstErr := make(chan error, 1)
	go func() {
		_, err := checker.Check(ctx, key, "The rollout notes were thin")
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return checker.hasPending(key) }, time.Second, time.Millisecond)

	_, err := checker.Check(ctx, key, "The rollout notes were very thin")
	require.NoError(t, err)
	assert.ErrorIs(t, <-firstErr, ErrSuperseded)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]string{key: "softer: The rollout notes were very thin"}, reported)
}

func TestToneFieldsAreCappedPerOwner(t *testing.T) {
	checker := NewToneChecker(&fakeRephraser{}, time.Hour)
	ctx := context.Background()

	for i := 0; i < MaxToneFields+4; i++ {
		_, err := checker.Check(ctx, fmt.Sprintf("1:field-%d", i), "short")
		require.NoError(t, err)
	}
	_, err := checker.Check(ctx, "2:strengths", "short")
	require.NoError(t, err)

	checker.mu.Lock()
	assert.Len(t, checker.byOwner["1"], MaxToneFields)
	assert.Len(t, checker.fields, MaxToneFields+1)
	checker.mu.Unlock()

	_, ok := checker.Latest("1:field-0")
	assert.False(t, ok, "oldest field is forgotten")
	_, ok = checker.Latest(fmt.Sprintf("1:field-%d", MaxToneFields+3))
	assert.True(t, ok)
	_, ok = checker.Latest("2:strengths")
	assert.True(t, ok, "other owners keep their fields")
}

func TestToneCapForgetsIdleFieldsFirst(t *testing.T) {
	checker := NewToneChecker(&fakeRephraser{}, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	pendingErr := make(chan error, 1)
	go func() {
		_, err := checker.Check(ctx, "3:pending", "Still typing this long sentence")
		pendingErr <- err
	}()
	require.Eventually(t, func() bool { return checker.hasPending("3:pending") }, time.Second, time.Millisecond)

	for i := 0; i < MaxToneFields; i++ {
		_, err := checker.Check(ctx, fmt.Sprintf("3:idle-%d", i), "short")
		require.NoError(t, err)
	}
	assert.True(t, checker.hasPending("3:pending"))

	// Once every field is pending, the oldest pending check is superseded
	waiting := make([]chan error, 0, MaxToneFields)
	for i := 0; i < MaxToneFields-1; i++ {
		key := fmt.Sprintf("3:idle-%d", i)
		errs := make(chan error, 1)
		waiting = append(waiting, errs)
		go func() {
			_, err := checker.Check(ctx, key, "Now a long enough input here")
			errs <- err
		}()
		require.Eventually(t, func() bool { return checker.hasPending(key) }, time.Second, time.Millisecond)
	}

	_, err := checker.Check(ctx, "3:newest", "short")
	require.NoError(t, err)
	assert.ErrorIs(t, <-pendingErr, ErrSuperseded)
	assert.False(t, checker.hasPending("3:pending"))

	cancel()
	for _, errs := range waiting {
		assert.ErrorIs(t, <-errs, context.Canceled)
	}
}

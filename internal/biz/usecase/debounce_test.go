package usecase

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Raphahf6/raio-x-360-back/internal/biz/domain"
)

type flushRecorder struct {
	mu    sync.Mutex
	turns []domain.CombinedTurn
}

func (r *flushRecorder) flush(turn domain.CombinedTurn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns = append(r.turns, turn)
}

func (r *flushRecorder) all() []domain.CombinedTurn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.CombinedTurn(nil), r.turns...)
}

func fragment(key domain.CustomerKey, text string) domain.InboundText {
	return domain.InboundText{Key: key, Address: "5511@s.whatsapp.net", Text: text, ReceivedAt: time.Now()}
}

var keyA = domain.CustomerKey{TenantID: "t1", CustomerHash: "aaa"}
var keyB = domain.CustomerKey{TenantID: "t1", CustomerHash: "bbb"}

func TestDebouncer_BurstBecomesOneTurn(t *testing.T) {
	rec := &flushRecorder{}
	d := NewDebouncer(50*time.Millisecond, rec.flush)

	d.Add(fragment(keyA, "hi"))
	d.Add(fragment(keyA, "I want two bottles"))
	d.Add(fragment(keyA, "of wine"))

	require.Eventually(t, func() bool { return len(rec.all()) == 1 }, time.Second, 5*time.Millisecond)
	turn := rec.all()[0]
	assert.Equal(t, "hi\nI want two bottles\nof wine", turn.Text)
	assert.Equal(t, []string{"hi", "I want two bottles", "of wine"}, turn.Fragments)
	assert.Equal(t, "5511@s.whatsapp.net", turn.Address)

	time.Sleep(80 * time.Millisecond)
	assert.Len(t, rec.all(), 1, "buffer must flush exactly once")
	assert.Equal(t, 0, d.Pending())
}

func TestDebouncer_FragmentAfterWindowStartsNewTurn(t *testing.T) {
	rec := &flushRecorder{}
	d := NewDebouncer(30*time.Millisecond, rec.flush)

	d.Add(fragment(keyA, "first"))
	require.Eventually(t, func() bool { return len(rec.all()) == 1 }, time.Second, 5*time.Millisecond)

	d.Add(fragment(keyA, "second"))
	require.Eventually(t, func() bool { return len(rec.all()) == 2 }, time.Second, 5*time.Millisecond)

	turns := rec.all()
	assert.Equal(t, "first", turns[0].Text)
	assert.Equal(t, "second", turns[1].Text)
}

func TestDebouncer_EachFragmentRestartsTimer(t *testing.T) {
	rec := &flushRecorder{}
	d := NewDebouncer(100*time.Millisecond, rec.flush)

	d.Add(fragment(keyA, "a"))
	time.Sleep(60 * time.Millisecond)
	d.Add(fragment(keyA, "b"))
	time.Sleep(60 * time.Millisecond)

	assert.Empty(t, rec.all(), "timer must restart on each fragment")
	assert.Equal(t, 1, d.Pending())

	require.Eventually(t, func() bool { return len(rec.all()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "a\nb", rec.all()[0].Text)
}

func TestDebouncer_KeysAreIndependent(t *testing.T) {
	rec := &flushRecorder{}
	d := NewDebouncer(30*time.Millisecond, rec.flush)

	d.Add(fragment(keyA, "from a"))
	d.Add(fragment(keyB, "from b"))
	assert.Equal(t, 2, d.Pending())

	require.Eventually(t, func() bool { return len(rec.all()) == 2 }, time.Second, 5*time.Millisecond)
	texts := map[string]string{}
	for _, turn := range rec.all() {
		texts[turn.Key.CustomerHash] = turn.Text
	}
	assert.Equal(t, "from a", texts["aaa"])
	assert.Equal(t, "from b", texts["bbb"])
}

func TestDebouncer_ArrivalDuringFlushStartsNewBuffer(t *testing.T) {
	started := make(chan domain.CombinedTurn, 2)
	release := make(chan struct{})
	var calls int
	var mu sync.Mutex

	d := NewDebouncer(20*time.Millisecond, func(turn domain.CombinedTurn) {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()
		started <- turn
		if first {
			<-release
		}
	})

	d.Add(fragment(keyA, "a"))
	first := <-started
	assert.Equal(t, "a", first.Text)

	d.Add(fragment(keyA, "b"))
	assert.Equal(t, 1, d.Pending())
	close(release)

	select {
	case second := <-started:
		assert.Equal(t, "b", second.Text, "mid-flush arrival must not rejoin the in-flight turn")
	case <-time.After(time.Second):
		t.Fatal("Expected second flush")
	}
}

func TestDebouncer_FlushAndClose(t *testing.T) {
	rec := &flushRecorder{}
	d := NewDebouncer(time.Hour, rec.flush)

	d.Add(fragment(keyA, "x"))
	assert.True(t, d.Flush(keyA))
	assert.False(t, d.Flush(keyA))
	require.Len(t, rec.all(), 1)

	d.Add(fragment(keyA, "y"))
	d.Add(fragment(keyB, "z"))
	d.Close()
	assert.Len(t, rec.all(), 3)
	assert.Equal(t, 0, d.Pending())

	d.Add(fragment(keyA, "ignored"))
	assert.Equal(t, 0, d.Pending())
}

func TestDebouncer_CloseWaitsForTimerFlush(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	d := NewDebouncer(10*time.Millisecond, func(turn domain.CombinedTurn) {
		close(started)
		<-release
		finished.Store(true)
	})

	d.Add(fragment(keyA, "oi"))
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("Expected the timer to flush")
	}
	require.Equal(t, 0, d.Pending(), "buffer is already out of the map")

	closed := make(chan struct{})
	go func() {
		d.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a flush was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close did not return after the flush finished")
	}
	assert.True(t, finished.Load())
}

package usecase

import (
	"strings"
	"sync"
	"time"

	"github.com/Raphahf6/raio-x-360-back/internal/biz/domain"
)

// DefaultDebounceWindow is the quiet window before a burst is flushed
const DefaultDebounceWindow = 5 * time.Second

// FlushFunc receives a combined turn. It runs on the timer goroutine.
type FlushFunc func(turn domain.CombinedTurn)

// pendingBuffer collects fragments for one customer
type pendingBuffer struct {
	address   string
	fragments []string
	firstAt   time.Time
	timer     *time.Timer
	gen       uint64
}

// Debouncer merges rapid fragments from the same customer into one turn.
// Each key has at most one buffer; every new fragment cancels the pending
// timer and arms a new one. Fragments arriving after a buffer was taken
// for flushing start a new buffer.
type Debouncer struct {
	window  time.Duration
	onFlush FlushFunc

	mu      sync.Mutex
	buffers map[domain.CustomerKey]*pendingBuffer
	gen     uint64
	closed  bool
	now     func() time.Time

	// Deliveries taken out of the map but not yet returned from onFlush
	inflight sync.WaitGroup
}

// NewDebouncer creates a debouncer with the given quiet window
func NewDebouncer(window time.Duration, onFlush FlushFunc) *Debouncer {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &Debouncer{
		window:  window,
		onFlush: onFlush,
		buffers: make(map[domain.CustomerKey]*pendingBuffer),
		now:     time.Now,
	}
}

// Add appends a fragment and restarts the key's countdown
func (d *Debouncer) Add(text domain.InboundText) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}

	b, ok := d.buffers[text.Key]
	if !ok {
		b = &pendingBuffer{firstAt: text.ReceivedAt}
		if b.firstAt.IsZero() {
			b.firstAt = d.now()
		}
		d.buffers[text.Key] = b
	} else if b.timer != nil {
		b.timer.Stop()
	}

	b.address = text.Address
	b.fragments = append(b.fragments, text.Text)

	d.gen++
	gen := d.gen
	b.gen = gen
	key := text.Key
	b.timer = time.AfterFunc(d.window, func() {
		d.fire(key, gen)
	})
}

// fire flushes the buffer if the timer that fired is still the current one
func (d *Debouncer) fire(key domain.CustomerKey, gen uint64) {
	d.mu.Lock()
	b, ok := d.buffers[key]
	if !ok || b.gen != gen {
		d.mu.Unlock()
		return
	}
	delete(d.buffers, key)
	d.inflight.Add(1)
	d.mu.Unlock()

	defer d.inflight.Done()
	d.deliver(key, b)
}

func (d *Debouncer) deliver(key domain.CustomerKey, b *pendingBuffer) {
	if d.onFlush == nil {
		return
	}
	d.onFlush(domain.CombinedTurn{
		Key:       key,
		Address:   b.address,
		Text:      strings.Join(b.fragments, "\n"),
		Fragments: b.fragments,
		FirstAt:   b.firstAt,
		FlushedAt: d.now(),
	})
}

// Flush forces the key's buffer out immediately
func (d *Debouncer) Flush(key domain.CustomerKey) bool {
	d.mu.Lock()
	b, ok := d.buffers[key]
	if ok {
		b.timer.Stop()
		delete(d.buffers, key)
		d.inflight.Add(1)
	}
	d.mu.Unlock()

	if ok {
		defer d.inflight.Done()
		d.deliver(key, b)
	}
	return ok
}

// Pending returns the number of open buffers
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buffers)
}

// Close stops accepting fragments, flushes every open buffer synchronously
// and waits for flushes already started by a timer to return.
func (d *Debouncer) Close() {
	d.mu.Lock()
	d.closed = true
	pending := d.buffers
	d.buffers = make(map[domain.CustomerKey]*pendingBuffer)
	for _, b := range pending {
		b.timer.Stop()
	}
	d.mu.Unlock()

	for key, b := range pending {
		d.deliver(key, b)
	}
	d.inflight.Wait()
}

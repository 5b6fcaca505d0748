/*
editbuffer.go - Write-ahead buffer for debounced edit persistence

PURPOSE:
  Reviewers fix rows in quick bursts: payer, then physician, then patient,
  all within a second. Persisting and recomputing on every keystroke is
  wasteful, so edits land in this buffer first and are applied optimistically
  to the in-memory copy the UI shows.

FLUSH TRIGGERS:
  1. Debounce: a row quiet for the debounce window (default 500ms) flushes
  2. Timer: a periodic full flush (default 10s) catches long edit sessions
  3. Flush(): explicit flush for session end / unload hooks

  Multiple field edits to one row inside the window coalesce into ONE
  persistence call (EventEdit.Merge), and upserts are idempotent, so
  repeated flushes are safe.

FAILURE HANDLING:
  A transient persistence failure (IsRetryable) never discards the pending
  edit. The entry is kept, marked retrying, and reattempted with exponential
  backoff. The per-row state (saved / saving / retrying) is queryable so the
  UI can surface "save failed, retrying" instead of failing silently.
  Rejections (event deleted, batch finalized) cannot succeed on retry; those
  edits are dropped and logged at error level.

SEE ALSO:
  - recompute.go: ApplyEdit, the idempotent flush target
*/
package liquidation

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// =============================================================================
// SAVE STATE
// =============================================================================

type SaveState string

const (
	SaveStateSaved    SaveState = "saved"    // no pending edit
	SaveStatePending  SaveState = "pending"  // buffered, not yet flushed
	SaveStateRetrying SaveState = "retrying" // flush failed, will retry
)

// =============================================================================
// EDIT BUFFER
// =============================================================================

type EditBuffer struct {
	Coordinator *Coordinator
	Log         zerolog.Logger

	// Debounce is the per-row quiet window before a flush (default 500ms).
	Debounce time.Duration

	// FlushInterval forces a full flush regardless of debounce (default 10s).
	FlushInterval time.Duration

	// MaxBackoff caps the retry delay (default 30s).
	MaxBackoff time.Duration

	mu      sync.Mutex
	pending map[EventID]*pendingEdit
	stop    chan struct{}
	wg      sync.WaitGroup
	started bool
}

type pendingEdit struct {
	edit        EventEdit
	lastTouched time.Time
	attempts    int
	nextAttempt time.Time
	retrying    bool
}

func NewEditBuffer(coord *Coordinator, log zerolog.Logger) *EditBuffer {
	return &EditBuffer{
		Coordinator:   coord,
		Log:           log,
		Debounce:      500 * time.Millisecond,
		FlushInterval: 10 * time.Second,
		MaxBackoff:    30 * time.Second,
		pending:       make(map[EventID]*pendingEdit),
		stop:          make(chan struct{}),
	}
}

// Enqueue buffers an edit for a row, coalescing with any pending edit.
func (b *EditBuffer) Enqueue(eventID EventID, edit EventEdit) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.pending[eventID]
	if !ok {
		p = &pendingEdit{}
		b.pending[eventID] = p
	}
	p.edit = p.edit.Merge(edit)
	p.lastTouched = time.Now()
}

// State reports the persistence state of a row for UI display.
func (b *EditBuffer) State(eventID EventID) SaveState {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.pending[eventID]
	switch {
	case !ok:
		return SaveStateSaved
	case p.retrying:
		return SaveStateRetrying
	default:
		return SaveStatePending
	}
}

// PendingCount returns the number of rows with unflushed edits.
func (b *EditBuffer) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Start launches the background flusher. Start after Stop is allowed.
func (b *EditBuffer) Start() {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return
	}
	b.started = true
	b.stop = make(chan struct{})
	stop := b.stop
	b.mu.Unlock()

	b.wg.Add(1)
	go b.run(stop)
}

// Stop halts the flusher after one final full flush, so no edit is lost
// when the session ends before a debounce timer fires. Safe to call
// repeatedly and without a prior Start.
func (b *EditBuffer) Stop(ctx context.Context) {
	b.mu.Lock()
	if b.started {
		b.started = false
		close(b.stop)
	}
	b.mu.Unlock()

	b.wg.Wait()
	b.Flush(ctx)
}

func (b *EditBuffer) run(stop <-chan struct{}) {
	defer b.wg.Done()

	// The tick drives both debounce expiry and the periodic full flush.
	tick := time.NewTicker(b.Debounce / 2)
	defer tick.Stop()
	full := time.NewTicker(b.FlushInterval)
	defer full.Stop()

	for {
		select {
		case <-tick.C:
			b.flushDue(context.Background(), false)
		case <-full.C:
			b.flushDue(context.Background(), true)
		case <-stop:
			return
		}
	}
}

// Flush persists every pending edit immediately, ignoring debounce and
// backoff. Used for session end and explicit save actions.
func (b *EditBuffer) Flush(ctx context.Context) {
	b.flushAll(ctx)
}

// flushDue flushes rows whose debounce window has elapsed and whose retry
// backoff has passed. force ignores the debounce window (periodic flush).
func (b *EditBuffer) flushDue(ctx context.Context, force bool) {
	now := time.Now()

	b.mu.Lock()
	due := make(map[EventID]EventEdit)
	for id, p := range b.pending {
		if now.Before(p.nextAttempt) {
			continue
		}
		if !force && now.Sub(p.lastTouched) < b.Debounce {
			continue
		}
		due[id] = p.edit
		delete(b.pending, id)
	}
	b.mu.Unlock()

	for id, edit := range due {
		b.apply(ctx, id, edit)
	}
}

func (b *EditBuffer) flushAll(ctx context.Context) {
	b.mu.Lock()
	due := make(map[EventID]EventEdit, len(b.pending))
	for id, p := range b.pending {
		due[id] = p.edit
	}
	b.pending = make(map[EventID]*pendingEdit)
	b.mu.Unlock()

	for id, edit := range due {
		b.apply(ctx, id, edit)
	}
}

// apply performs one coalesced persistence call. A retryable failure puts
// the edit back into the buffer with backoff; a rejection (the event is
// gone, the batch left its editable window) is dropped, since retrying it
// can never succeed.
func (b *EditBuffer) apply(ctx context.Context, id EventID, edit EventEdit) {
	_, err := b.Coordinator.ApplyEdit(ctx, id, edit)
	if err == nil {
		return
	}
	if !IsRetryable(err) {
		b.Log.Error().
			Str("event", string(id)).
			Err(err).
			Msg("save rejected, edit dropped")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.pending[id]
	if !ok {
		p = &pendingEdit{lastTouched: time.Now()}
		b.pending[id] = p
	}
	// A newer edit may have arrived while the flush was in flight; the
	// failed edit merges UNDER it so the newer fields still win.
	p.edit = edit.Merge(p.edit)
	p.attempts++
	p.retrying = true
	p.nextAttempt = time.Now().Add(b.backoff(p.attempts))

	b.Log.Warn().
		Str("event", string(id)).
		Int("attempts", p.attempts).
		Time("next_attempt", p.nextAttempt).
		Err(err).
		Msg("save failed, retrying")
}

// backoff doubles per attempt: 1s, 2s, 4s ... capped at MaxBackoff.
func (b *EditBuffer) backoff(attempts int) time.Duration {
	d := time.Second
	for i := 1; i < attempts && d < b.MaxBackoff; i++ {
		d *= 2
	}
	if d > b.MaxBackoff {
		d = b.MaxBackoff
	}
	return d
}

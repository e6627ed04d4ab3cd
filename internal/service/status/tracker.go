package status

import (
	"sync"
	"time"

	"github.com/zhouzirui/z-tavern/relay/internal/model/relay"
)

// Tracker owns the "model is generating" flag shared by the relay client,
// the HTTP status endpoints and the console.
type Tracker struct {
	mu          sync.Mutex
	speaking    bool
	lastSpokeAt int64
	now         func() time.Time
	subscribers map[chan relay.SpeakingStatus]struct{}
}

// NewTracker returns an idle tracker. A nil now uses time.Now.
func NewTracker(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		now:         now,
		subscribers: make(map[chan relay.SpeakingStatus]struct{}),
	}
}

// BeginCall marks a relay call as in flight. There is no queuing; overlapping
// callers set the same flag.
func (t *Tracker) BeginCall() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.speaking = true
	t.publishLocked()
}

// EndCall clears the flag and stamps the end time. It must run on both the
// success and the failure path of a call.
func (t *Tracker) EndCall() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.speaking = false
	t.lastSpokeAt = t.now().Unix()
	t.publishLocked()
}

// Snapshot returns the current status.
func (t *Tracker) Snapshot() relay.SpeakingStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Subscribe returns a channel that receives the status after every
// transition. Slow readers only see the latest value. The returned func
// unsubscribes and closes the channel.
func (t *Tracker) Subscribe() (<-chan relay.SpeakingStatus, func()) {
	ch := make(chan relay.SpeakingStatus, 1)

	t.mu.Lock()
	t.subscribers[ch] = struct{}{}
	t.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subscribers, ch)
			t.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (t *Tracker) snapshotLocked() relay.SpeakingStatus {
	return relay.SpeakingStatus{Speaking: t.speaking, LastSpokeAt: t.lastSpokeAt}
}

func (t *Tracker) publishLocked() {
	current := t.snapshotLocked()
	for ch := range t.subscribers {
		// Drop a stale value so the newest one always fits.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- current:
		default:
		}
	}
}

// Package timer provides room-scoped, named, cancelable timers whose callbacks
// run under the owning room's lock.
package timer

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Well-known timer names. Per-player and per-bot timers are built with Grace and Bot.
const (
	Inactivity = "inactivity"
	Session    = "session"
	Submission = "submission"
	Advance    = "advance"
	Cleanup    = "cleanup"
)

// Grace names the reconnect-grace timer of a player.
func Grace(playerID string) string {
	return "grace:" + playerID
}

// BotPrefix starts the name of every bot think-time timer.
const BotPrefix = "bot:"

// Bot names the think-time timer of a bot seat for one action.
func Bot(playerID, action string) string {
	return BotPrefix + playerID + ":" + action
}

type entry struct {
	timer clockwork.Timer
}

// Registry tracks every pending timer of one room by name.
//
// Callbacks acquire the room lock passed to NewRegistry, then run only if the
// entry that scheduled them is still the current one for its name. A timer that
// was cancelled or replaced after its clock fired but before it obtained the lock
// is dropped.
type Registry struct {
	clock clockwork.Clock
	lock  sync.Locker

	mu     sync.Mutex
	timers map[string]*entry
	closed bool
}

// NewRegistry creates an empty Registry.
//
// Precondition: clock and lock must be non-nil. lock is the room lock.
func NewRegistry(clock clockwork.Clock, lock sync.Locker) *Registry {
	return &Registry{
		clock:  clock,
		lock:   lock,
		timers: make(map[string]*entry),
	}
}

// Schedule arms fn to run after d under name, replacing any pending timer with
// the same name.
//
// Postcondition: Exactly one timer named name is pending unless the registry is closed.
func (r *Registry) Schedule(name string, d time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.stopLocked(name)
	r.armLocked(name, d, fn)
}

// ScheduleOnce arms fn like Schedule but leaves an already pending timer with the
// same name untouched.
//
// Postcondition: Returns true if a new timer was armed.
func (r *Registry) ScheduleOnce(name string, d time.Duration, fn func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	if _, ok := r.timers[name]; ok {
		return false
	}
	r.armLocked(name, d, fn)
	return true
}

// armLocked creates the clock timer. Caller must hold r.mu.
func (r *Registry) armLocked(name string, d time.Duration, fn func()) {
	e := &entry{}
	e.timer = r.clock.AfterFunc(d, func() { r.fire(name, e, fn) })
	r.timers[name] = e
}

// stopLocked stops and forgets the named timer. Caller must hold r.mu.
func (r *Registry) stopLocked(name string) bool {
	e, ok := r.timers[name]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(r.timers, name)
	return true
}

func (r *Registry) fire(name string, e *entry, fn func()) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.mu.Lock()
	if cur, ok := r.timers[name]; !ok || cur != e {
		r.mu.Unlock()
		return
	}
	delete(r.timers, name)
	r.mu.Unlock()

	fn()
}

// Cancel stops the named timer.
//
// Postcondition: Returns true if a pending timer was cancelled.
func (r *Registry) Cancel(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopLocked(name)
}

// CancelPrefix stops every pending timer whose name starts with prefix.
//
// Postcondition: Returns how many timers were cancelled.
func (r *Registry) CancelPrefix(prefix string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for name := range r.timers {
		if strings.HasPrefix(name, prefix) && r.stopLocked(name) {
			n++
		}
	}
	return n
}

// CancelAll stops every pending timer.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name := range r.timers {
		r.stopLocked(name)
	}
}

// Close cancels every pending timer and refuses any later Schedule.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name := range r.timers {
		r.stopLocked(name)
	}
	r.closed = true
}

// Active reports whether a timer named name is pending.
func (r *Registry) Active(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.timers[name]
	return ok
}

// Names returns the pending timer names in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.timers))
	for name := range r.timers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clock returns the clock timers are scheduled on.
func (r *Registry) Clock() clockwork.Clock {
	return r.clock
}

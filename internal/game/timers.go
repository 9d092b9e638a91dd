package game

import (
	"sync"
	"time"
)

type Timer interface {
	Stop() bool
}

// AfterFunc schedules f to run after d, like time.AfterFunc.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type timerKind int

const (
	timerWindow timerKind = iota
	timerHostGrace
	timerRemoval
)

// roomRuntime is the per-room state the manager keeps next to the session: its outbox and
// pending timers.
type roomRuntime struct {
	outbox outbox

	mu     sync.Mutex
	timers map[timerKind]Timer
}

func (m *Manager) runtime(code string) *roomRuntime {
	m.mu.Lock()
	defer m.mu.Unlock()

	rt, ok := m.rooms[code]
	if !ok {
		rt = &roomRuntime{timers: make(map[timerKind]Timer)}
		m.rooms[code] = rt
	}
	return rt
}

func (m *Manager) dropRuntime(code string) {
	m.mu.Lock()
	rt, ok := m.rooms[code]
	delete(m.rooms, code)
	m.mu.Unlock()

	if ok {
		rt.stopAll()
	}
}

// schedule replaces the timer of the given kind.
func (rt *roomRuntime) schedule(kind timerKind, after AfterFunc, d time.Duration, f func()) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if t, ok := rt.timers[kind]; ok {
		t.Stop()
	}
	rt.timers[kind] = after(d, f)
}

func (rt *roomRuntime) cancel(kind timerKind) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if t, ok := rt.timers[kind]; ok {
		t.Stop()
		delete(rt.timers, kind)
	}
}

func (rt *roomRuntime) stopAll() {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	for k, t := range rt.timers {
		t.Stop()
		delete(rt.timers, k)
	}
}

package conversation

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/PabloGalante/blue-shark/internal/domain"
)

// TurnState is the lifecycle of one in-flight turn. Settled is terminal.
type TurnState int

const (
	StateIdle TurnState = iota
	StateSending
	StateStreaming
	StateAwaitingDual
	StateErroring
	StateSettled
)

func (s TurnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateAwaitingDual:
		return "awaiting_dual"
	case StateErroring:
		return "erroring"
	case StateSettled:
		return "settled"
	default:
		return "unknown"
	}
}

type turn struct {
	state TurnState
	log   zerolog.Logger
}

func (t *turn) to(next TurnState) {
	t.log.Debug().Str("from", t.state.String()).Str("to", next.String()).Msg("turn state")
	t.state = next
}

// turnGuards allows one in-flight turn per session.
type turnGuards struct {
	mu    sync.Mutex
	locks map[domain.SessionID]*sync.Mutex
}

func (g *turnGuards) tryAcquire(id domain.SessionID) bool {
	g.mu.Lock()
	if g.locks == nil {
		g.locks = make(map[domain.SessionID]*sync.Mutex)
	}
	l, ok := g.locks[id]
	if !ok {
		l = &sync.Mutex{}
		g.locks[id] = l
	}
	g.mu.Unlock()

	return l.TryLock()
}

func (g *turnGuards) release(id domain.SessionID) {
	g.mu.Lock()
	l := g.locks[id]
	g.mu.Unlock()

	if l != nil {
		l.Unlock()
	}
}

// discard releases the guard and drops its entry, for turns that never
// wrote to their session.
func (g *turnGuards) discard(id domain.SessionID) {
	g.mu.Lock()
	l := g.locks[id]
	delete(g.locks, id)
	g.mu.Unlock()

	if l != nil {
		l.Unlock()
	}
}

// forget drops every guard, used after the store is cleared.
func (g *turnGuards) forget() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for id, l := range g.locks {
		if l.TryLock() {
			delete(g.locks, id)
		}
	}
}

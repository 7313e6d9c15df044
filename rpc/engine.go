package rpc

import (
	"sort"
	"sync"
)

// Engine is the pending-state map from spec.md §3: every entry is a
// RequestState still awaiting a server reply, keyed by its assigned
// msg-id. It is safe for concurrent use because, unlike the
// single-threaded cooperative model spec.md §5 describes, Go's send
// and receive loops are real goroutines.
type Engine struct {
	opts Options

	mu      sync.Mutex
	pending map[int64]*RequestState
}

// New creates a pending-state engine.
func New(opts Options) *Engine {
	opts.setDefaults()
	return &Engine{opts: opts, pending: make(map[int64]*RequestState)}
}

// Insert adds state to the pending-state map, keyed by its MsgID. Only
// called for states whose Request.ClassType() == ClassRequest
// (spec.md §4.6 step 5).
func (e *Engine) Insert(state *RequestState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending[state.MsgID] = state
}

// Pop removes and returns the state keyed by msgID, if present.
func (e *Engine) Pop(msgID int64) (*RequestState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, ok := e.pending[msgID]
	if ok {
		delete(e.pending, msgID)
	}
	return state, ok
}

// Peek returns the state keyed by msgID without removing it.
func (e *Engine) Peek(msgID int64) (*RequestState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, ok := e.pending[msgID]
	return state, ok
}

// PopByContainer removes and returns every state whose ContainerID
// equals containerID, used by _popStates step 2 (spec.md §4.9).
func (e *Engine) PopByContainer(containerID int64) []*RequestState {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*RequestState
	for id, state := range e.pending {
		if state.ContainerID == containerID {
			out = append(out, state)
			delete(e.pending, id)
		}
	}
	return out
}

// Drain removes and returns every pending state, ordered by MsgID (and
// therefore by original submission order, since msg-ids are strictly
// increasing), and clears the map. Used on reconnect (spec.md §4.10
// step 6) to move outstanding requests back into the send queue in the
// order spec.md §8 scenario S6 requires.
func (e *Engine) Drain() []*RequestState {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*RequestState, 0, len(e.pending))
	for _, state := range e.pending {
		out = append(out, state)
	}
	e.pending = make(map[int64]*RequestState)
	sort.Slice(out, func(i, j int) bool { return out[i].MsgID < out[j].MsgID })
	return out
}

// Len reports the number of outstanding requests.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Package sessions tracks the set of currently open client connections so
// the acceptor can report a live count. It is adapted from the teacher's
// hub.Hub, which kept a guarded map of broadcast clients for fan-out and
// bulk close; a raffle server has nothing to fan out to, and a graceful
// shutdown must not force-close an in-flight session (spec.md requires
// existing sessions to keep running until their client disconnects), so
// only the registry half of that shape is exercised by the acceptor here.
package sessions

import (
	"net"
	"sync"

	"github.com/fedepagnotta/lottery-server/internal/logging"
	"github.com/fedepagnotta/lottery-server/internal/metrics"
)

// Registry is a guarded set of live connections.
type Registry struct {
	mu    sync.RWMutex
	conns map[net.Conn]struct{}
}

// New creates an empty Registry.
func New() *Registry { return &Registry{conns: make(map[net.Conn]struct{})} }

// Add registers conn as open.
func (r *Registry) Add(conn net.Conn) {
	r.mu.Lock()
	prev := len(r.conns)
	r.conns[conn] = struct{}{}
	cur := len(r.conns)
	r.mu.Unlock()
	metrics.SetActiveSessions(cur)
	if prev == 0 && cur == 1 {
		logging.L().Info("sessions_first_connected")
	}
}

// Remove unregisters conn; safe to call more than once for the same conn.
func (r *Registry) Remove(conn net.Conn) {
	r.mu.Lock()
	_, existed := r.conns[conn]
	delete(r.conns, conn)
	cur := len(r.conns)
	r.mu.Unlock()
	if existed {
		metrics.SetActiveSessions(cur)
		if cur == 0 {
			logging.L().Info("sessions_last_disconnected")
		}
	}
}

// Count returns the number of currently registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CloseAll closes every registered connection and empties the registry.
// Each Session's own Run loop observes the resulting read error and
// returns on its own; CloseAll does not wait for that.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := make([]net.Conn, 0, len(r.conns))
	for c := range r.conns {
		conns = append(conns, c)
	}
	r.conns = make(map[net.Conn]struct{})
	r.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
	metrics.SetActiveSessions(0)
}

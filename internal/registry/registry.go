// Package registry maps live server connections to the entity each one controls.
package registry

import (
	"errors"
	"fmt"
	"sort"

	"realmsync.ai/internal/protocol"
)

var (
	ErrConnBound   = errors.New("registry: connection already bound")
	ErrEntityBound = errors.New("registry: entity already bound")
)

// Registry is owned by the server simulation goroutine and is not locked.
type Registry struct {
	byConn   map[protocol.ConnID]protocol.EntityID
	byEntity map[protocol.EntityID]protocol.ConnID
}

func New() *Registry {
	return &Registry{
		byConn:   map[protocol.ConnID]protocol.EntityID{},
		byEntity: map[protocol.EntityID]protocol.ConnID{},
	}
}

// Bind records conn <-> eid. A connection controls at most one entity and an
// entity has at most one connection.
func (r *Registry) Bind(conn protocol.ConnID, eid protocol.EntityID) error {
	if cur, ok := r.byConn[conn]; ok {
		if cur == eid {
			return nil
		}
		return fmt.Errorf("%w: conn=%d entity=%d", ErrConnBound, conn, cur)
	}
	if cur, ok := r.byEntity[eid]; ok {
		return fmt.Errorf("%w: entity=%d conn=%d", ErrEntityBound, eid, cur)
	}
	r.byConn[conn] = eid
	r.byEntity[eid] = conn
	return nil
}

// Unbind removes both directions for conn.
func (r *Registry) Unbind(conn protocol.ConnID) (protocol.EntityID, bool) {
	eid, ok := r.byConn[conn]
	if !ok {
		return protocol.NoEntity, false
	}
	delete(r.byConn, conn)
	delete(r.byEntity, eid)
	return eid, true
}

// UnbindEntity removes both directions for eid.
func (r *Registry) UnbindEntity(eid protocol.EntityID) (protocol.ConnID, bool) {
	conn, ok := r.byEntity[eid]
	if !ok {
		return 0, false
	}
	delete(r.byEntity, eid)
	delete(r.byConn, conn)
	return conn, true
}

func (r *Registry) Entity(conn protocol.ConnID) (protocol.EntityID, bool) {
	eid, ok := r.byConn[conn]
	return eid, ok
}

func (r *Registry) Conn(eid protocol.EntityID) (protocol.ConnID, bool) {
	conn, ok := r.byEntity[eid]
	return conn, ok
}

func (r *Registry) Len() int { return len(r.byConn) }

// Conns returns the bound connections in ascending order.
func (r *Registry) Conns() []protocol.ConnID {
	out := make([]protocol.ConnID, 0, len(r.byConn))
	for c := range r.byConn {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

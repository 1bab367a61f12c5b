// Package ws carries protocol envelopes over websocket connections.
package ws

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"realmsync.ai/internal/protocol"
)

var (
	ErrUnknownConn = errors.New("ws: unknown connection")
	ErrQueueFull   = errors.New("ws: outbound queue full")
)

const (
	writeWait = 5 * time.Second
	readWait  = 60 * time.Second
	pingEvery = 25 * time.Second

	DefaultQueueSize = 256
)

// Listener receives connection events on the connection's own goroutine.
// Implementations hand the work to the simulation goroutine.
type Listener interface {
	OnConnect(conn protocol.ConnID)
	OnMessage(conn protocol.ConnID, env protocol.Envelope)
	OnDisconnect(conn protocol.ConnID)
}

// FrameRecorder is implemented by listeners that want every inbound frame
// as received, before decoding and including frames that fail to decode.
type FrameRecorder interface {
	OnFrame(conn protocol.ConnID, frame []byte)
}

type peer struct {
	id      protocol.ConnID
	session uuid.UUID
	out     chan []byte

	ctx    context.Context
	cancel context.CancelFunc
}

// enqueue never blocks. A full queue drops unreliable frames and closes the
// connection for reliable ones, since a reliable stream with a gap is useless.
func (p *peer) enqueue(b []byte, reliable bool) error {
	select {
	case <-p.ctx.Done():
		return ErrUnknownConn
	default:
	}
	select {
	case p.out <- b:
		return nil
	default:
	}
	if reliable {
		p.cancel()
	}
	return ErrQueueFull
}

// Hub is the server side: it upgrades HTTP requests and assigns ConnIDs.
type Hub struct {
	log       *log.Logger
	listener  Listener
	frames    FrameRecorder
	queueSize int

	upgrader websocket.Upgrader

	mu    sync.Mutex
	next  protocol.ConnID
	conns map[protocol.ConnID]*peer

	sent    atomic.Uint64
	dropped atomic.Uint64
}

type HubStats struct {
	Conns   int    `json:"conns"`
	Sent    uint64 `json:"sent"`
	Dropped uint64 `json:"dropped"`
}

func NewHub(l Listener, logger *log.Logger, queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	frames, _ := l.(FrameRecorder)
	return &Hub{
		log:       logger,
		listener:  l,
		frames:    frames,
		queueSize: queueSize,
		conns:     map[protocol.ConnID]*peer{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (h *Hub) logf(format string, args ...any) {
	if h.log != nil {
		h.log.Printf(format, args...)
	}
}

func (h *Hub) register() *peer {
	ctx, cancel := context.WithCancel(context.Background())
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	p := &peer{
		id:      h.next,
		session: uuid.New(),
		out:     make(chan []byte, h.queueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
	h.conns[p.id] = p
	return p
}

func (h *Hub) unregister(p *peer) {
	p.cancel()
	h.mu.Lock()
	delete(h.conns, p.id)
	h.mu.Unlock()
}

func (h *Hub) peer(id protocol.ConnID) *peer {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conns[id]
}

func (h *Hub) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		p := h.register()
		h.logf("conn open id=%d session=%s remote=%s", p.id, p.session, r.RemoteAddr)

		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			h.writeLoop(conn, p)
		}()

		h.listener.OnConnect(p.id)
		h.readLoop(conn, p)

		h.unregister(p)
		<-writerDone
		h.listener.OnDisconnect(p.id)
		h.logf("conn close id=%d session=%s", p.id, p.session)
	}
}

func (h *Hub) readLoop(conn *websocket.Conn, p *peer) {
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})
	for {
		if p.ctx.Err() != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if h.frames != nil {
			h.frames.OnFrame(p.id, msg)
		}
		env, err := protocol.Decode(msg)
		if err != nil {
			h.logf("conn id=%d bad frame code=%s err=%v", p.id, protocol.CodeOf(err), err)
			continue
		}
		h.listener.OnMessage(p.id, env)
	}
}

func (h *Hub) writeLoop(conn *websocket.Conn, p *peer) {
	ping := time.NewTicker(pingEvery)
	defer ping.Stop()
	for {
		select {
		case <-p.ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				p.cancel()
			}
		case b := <-p.out:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				p.cancel()
			}
		}
	}
}

// Send queues env for one connection.
func (h *Hub) Send(conn protocol.ConnID, env protocol.Envelope) error {
	p := h.peer(conn)
	if p == nil {
		return ErrUnknownConn
	}
	b, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	return h.deliver(p, b, env.Reliable)
}

func (h *Hub) deliver(p *peer, b []byte, reliable bool) error {
	err := p.enqueue(b, reliable)
	switch {
	case err == nil:
		h.sent.Add(1)
	case errors.Is(err, ErrQueueFull):
		h.dropped.Add(1)
		if reliable {
			h.logf("conn id=%d reliable queue overflow, closing", p.id)
		}
	}
	return err
}

// Broadcast queues env for every open connection.
func (h *Hub) Broadcast(env protocol.Envelope) {
	b, err := protocol.Encode(env)
	if err != nil {
		h.logf("broadcast %s: %v", env.Kind(), err)
		return
	}
	h.mu.Lock()
	peers := make([]*peer, 0, len(h.conns))
	for _, p := range h.conns {
		peers = append(peers, p)
	}
	h.mu.Unlock()
	for _, p := range peers {
		_ = h.deliver(p, b, env.Reliable)
	}
}

// Close drops one connection from the server side.
func (h *Hub) Close(conn protocol.ConnID) {
	if p := h.peer(conn); p != nil {
		p.cancel()
	}
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Conns lists open connections in id order.
func (h *Hub) Conns() []protocol.ConnID {
	h.mu.Lock()
	out := make([]protocol.ConnID, 0, len(h.conns))
	for id := range h.conns {
		out = append(out, id)
	}
	h.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (h *Hub) Stats() HubStats {
	return HubStats{Conns: h.Len(), Sent: h.sent.Load(), Dropped: h.dropped.Load()}
}

package ws

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"realmsync.ai/internal/protocol"
)

// ClientListener receives server envelopes on the read goroutine.
type ClientListener interface {
	OnMessage(env protocol.Envelope)
	OnDisconnect()
}

// Conn is the client side of one websocket connection.
type Conn struct {
	log *log.Logger
	p   *peer

	wg   sync.WaitGroup
	once sync.Once
}

// Dial connects to url and starts the read and write goroutines.
func Dial(ctx context.Context, url string, l ClientListener, logger *log.Logger) (*Conn, error) {
	d := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	wc, _, err := d.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	pctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		log: logger,
		p: &peer{
			out:    make(chan []byte, DefaultQueueSize),
			ctx:    pctx,
			cancel: cancel,
		},
	}

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.writeLoop(wc)
	}()
	go func() {
		defer c.wg.Done()
		defer l.OnDisconnect()
		defer cancel()
		for {
			_, msg, err := wc.ReadMessage()
			if err != nil {
				return
			}
			env, err := protocol.Decode(msg)
			if err != nil {
				if c.log != nil {
					c.log.Printf("bad frame code=%s err=%v", protocol.CodeOf(err), err)
				}
				continue
			}
			l.OnMessage(env)
		}
	}()
	return c, nil
}

func (c *Conn) writeLoop(wc *websocket.Conn) {
	for {
		select {
		case <-c.p.ctx.Done():
			_ = wc.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = wc.Close()
			return
		case b := <-c.p.out:
			_ = wc.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wc.WriteMessage(websocket.TextMessage, b); err != nil {
				c.p.cancel()
			}
		}
	}
}

// Send queues env with the same overflow policy as the server.
func (c *Conn) Send(env protocol.Envelope) error {
	b, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	return c.p.enqueue(b, env.Reliable)
}

// Done is closed once the connection is gone.
func (c *Conn) Done() <-chan struct{} { return c.p.ctx.Done() }

// Close shuts the connection and waits for both goroutines.
func (c *Conn) Close() error {
	c.once.Do(func() {
		c.p.cancel()
		c.wg.Wait()
	})
	return nil
}

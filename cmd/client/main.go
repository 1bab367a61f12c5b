package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"realmsync.ai/internal/client"
	"realmsync.ai/internal/sim/tuning"
	"realmsync.ai/internal/sim/world"
	"realmsync.ai/internal/transport/ws"
)

func main() {
	var (
		url        = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name       = flag.String("name", "", "player name (empty for a guest)")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
		duration   = flag.Duration("duration", 0, "stop after this long (0 runs until interrupted)")
		seed       = flag.Int64("seed", 0, "wander seed (0 uses the clock)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[client] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		logger.Printf("tuning %s: %v; using defaults", *tuningPath, err)
		tune = tuning.Defaults()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if *duration > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, *duration)
		defer cancelTimeout()
	}

	cl := client.New(client.Config{Tuning: tune, Name: *name, Logger: logger})
	conn, err := ws.Dial(ctx, *url, cl, logger)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	cl.Attach(conn)

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	b := &wanderer{c: cl, rng: rand.New(rand.NewSource(*seed)), conn: conn}
	if err := cl.Run(ctx, b.tick); err != nil {
		logger.Printf("client stopped: %v", err)
	}
	logger.Printf("bye won=%v", cl.Won())
}

// wanderer plays the local player: it walks to random nearby points, chats
// now and then and swings at whatever is in front of it.
type wanderer struct {
	c    *client.Client
	rng  *rand.Rand
	conn *ws.Conn

	started      bool
	last         time.Time
	target       mgl64.Vec3
	nextRetarget time.Time
	nextChat     time.Time
	nextPing     time.Time
}

func (b *wanderer) tick(now time.Time) {
	if !b.started {
		b.started = true
		b.last = now
		b.nextChat = now.Add(15 * time.Second)
		b.nextPing = now.Add(time.Minute)
		b.c.Join()
		b.c.StartPing()
	}
	select {
	case <-b.conn.Done():
		return
	default:
	}

	dt := now.Sub(b.last).Seconds()
	b.last = now
	me, ok := b.c.LocalEntity()
	if !b.c.Ready() || !ok {
		return
	}

	if now.After(b.nextRetarget) {
		b.target = me.Pos.Add(mgl64.Vec3{float64(b.rng.Intn(15) - 7), 0, float64(b.rng.Intn(15) - 7)})
		b.nextRetarget = now.Add(time.Duration(2+b.rng.Intn(4)) * time.Second)
	}
	to := b.target.Sub(me.Pos)
	if dist := to.Len(); dist > 0.1 {
		step := b.c.PlayerSpeed() * dt
		if step > dist {
			step = dist
		}
		dir := to.Normalize()
		b.c.MoveTo(me.Pos.Add(dir.Mul(step)), dir, world.StateWalk)
	} else if me.State != world.StateIdle {
		b.c.MoveTo(me.Pos, me.Dir, world.StateIdle)
	}

	if b.rng.Intn(100) == 0 {
		b.c.Attack()
	}
	if now.After(b.nextChat) {
		b.nextChat = now.Add(15 * time.Second)
		b.c.Say(fmt.Sprintf("pos=%.1f,%.1f,%.1f offset=%s", me.Pos.X(), me.Pos.Y(), me.Pos.Z(), b.c.Offset()))
	}
	if now.After(b.nextPing) {
		b.nextPing = now.Add(time.Minute)
		b.c.StartPing()
	}
}

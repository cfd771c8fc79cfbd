package transport

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"marketlink/protocol"
)

// State is the connection lifecycle state. Exactly one value at any time,
// owned by the connection's run goroutine.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed_permanently"
)

// ErrNotConnected is returned by Send while the connection is not up.
// Callers are expected to enqueue instead.
var ErrNotConnected = errors.New("transport: not connected")

// Config holds connection tuning. Zero values take the defaults below.
type Config struct {
	Dialer          Dialer
	BackoffBase     time.Duration // default 3s
	BackoffMax      time.Duration // default 60s
	MaxAttempts     int           // consecutive dial failures before giving up, default 5
	HeartbeatPeriod time.Duration // default 30s
	QueueTTL        time.Duration // 0 = queued envelopes never expire
	FrameBuffer     int           // inbound channel depth, default 256
}

const (
	defaultBackoffBase     = 3 * time.Second
	defaultBackoffMax      = 60 * time.Second
	defaultMaxAttempts     = 5
	defaultHeartbeatPeriod = 30 * time.Second
	defaultFrameBuffer     = 256
)

// Conn owns one socket: connect, disconnect, reconnect with backoff,
// heartbeat, and a single serialized write path. Inbound frames are exposed
// on Frames(); control frames (ping/pong) are consumed internally.
type Conn struct {
	cfg    Config
	queue  *Queue
	frames chan *protocol.Frame

	mu       sync.Mutex
	state    State
	sock     Socket
	stopCh   chan struct{}
	running  bool
	lastSeen time.Time

	writeMu sync.Mutex

	replayFn func() []*protocol.Frame
	stateFn  func(State)

	wg sync.WaitGroup
}

// New creates a connection around the dialer in cfg. The connection starts
// Disconnected; call Connect to bring it up.
func New(cfg Config) *Conn {
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaultBackoffBase
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = defaultBackoffMax
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.HeartbeatPeriod <= 0 {
		cfg.HeartbeatPeriod = defaultHeartbeatPeriod
	}
	if cfg.FrameBuffer <= 0 {
		cfg.FrameBuffer = defaultFrameBuffer
	}
	return &Conn{
		cfg:    cfg,
		queue:  NewQueue(cfg.QueueTTL),
		frames: make(chan *protocol.Frame, cfg.FrameBuffer),
		state:  StateDisconnected,
	}
}

// SetReplayProvider registers the function that yields subscribe frames, in
// original subscription order, replayed ahead of the queue on reconnect.
func (c *Conn) SetReplayProvider(fn func() []*protocol.Frame) {
	c.mu.Lock()
	c.replayFn = fn
	c.mu.Unlock()
}

// SetStateListener registers a callback invoked on every state transition.
func (c *Conn) SetStateListener(fn func(State)) {
	c.mu.Lock()
	c.stateFn = fn
	c.mu.Unlock()
}

// Frames returns the inbound application frame stream.
func (c *Conn) Frames() <-chan *protocol.Frame { return c.frames }

// State returns the current connection state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Queue returns the outbound envelope queue.
func (c *Conn) Queue() *Queue { return c.queue }

// Enqueue encodes a frame into the replay queue for delivery after the next
// successful connect.
func (c *Conn) Enqueue(f *protocol.Frame) (string, error) {
	data, err := f.Encode()
	if err != nil {
		return "", err
	}
	return c.queue.Enqueue(f.Topic, data), nil
}

// Connect starts the connection loop. It is a no-op if the loop is already
// running. A connection that reached FailedPermanently is restarted.
func (c *Conn) Connect() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.stopCh = make(chan struct{})
	stop := c.stopCh
	c.mu.Unlock()

	c.setState(StateConnecting)
	c.wg.Add(1)
	go c.run(stop)
}

// Disconnect halts the connection loop, cancels any scheduled retry, closes
// the socket, and releases all timers. Safe to call in any state.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.stopCh)
	if c.sock != nil {
		c.sock.Close()
	}
	c.mu.Unlock()

	c.wg.Wait()
}

// Send writes a frame to the socket. Fails fast with ErrNotConnected while
// the connection is down; it never blocks waiting for a reconnect.
func (c *Conn) Send(f *protocol.Frame) error {
	c.mu.Lock()
	sock := c.sock
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected || sock == nil {
		return ErrNotConnected
	}
	data, err := f.Encode()
	if err != nil {
		return err
	}
	return c.writeFrame(sock, data)
}

// writeFrame is the single serialized write path. Pings, replay, and sends
// all pass through here so frames are never interleaved mid-write.
func (c *Conn) writeFrame(sock Socket, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return sock.WriteMessage(data)
}

func (c *Conn) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	fn := c.stateFn
	c.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (c *Conn) run(stop <-chan struct{}) {
	defer c.wg.Done()

	attempts := 0
	for {
		sock, err := c.dial(stop)
		select {
		case <-stop:
			if sock != nil {
				sock.Close()
			}
			c.setState(StateDisconnected)
			return
		default:
		}

		if err != nil {
			attempts++
			if attempts >= c.cfg.MaxAttempts {
				log.Printf("transport: giving up after %d failed attempts: %v", attempts, err)
				c.mu.Lock()
				c.running = false
				c.mu.Unlock()
				c.setState(StateFailed)
				return
			}
			log.Printf("transport: connect attempt %d failed: %v", attempts, err)
			if !c.waitBackoff(attempts-1, stop) {
				return
			}
			continue
		}

		c.mu.Lock()
		c.sock = sock
		c.lastSeen = time.Now()
		c.mu.Unlock()
		attempts = 0
		c.setState(StateConnected)

		c.replay(sock)

		hbStop := make(chan struct{})
		hbDone := make(chan struct{})
		go c.heartbeat(sock, hbStop, hbDone)

		c.readLoop(sock, stop)

		close(hbStop)
		<-hbDone

		c.mu.Lock()
		c.sock = nil
		c.mu.Unlock()
		sock.Close()

		select {
		case <-stop:
			c.setState(StateDisconnected)
			return
		default:
		}

		log.Printf("transport: connection lost, reconnecting")
		if !c.waitBackoff(0, stop) {
			return
		}
	}
}

// waitBackoff sleeps for the backoff interval in Reconnecting state. Returns
// false if the connection was stopped during the wait.
func (c *Conn) waitBackoff(attempt int, stop <-chan struct{}) bool {
	c.setState(StateReconnecting)
	t := time.NewTimer(nextBackoff(attempt, c.cfg.BackoffBase, c.cfg.BackoffMax))
	defer t.Stop()
	select {
	case <-t.C:
		c.setState(StateConnecting)
		return true
	case <-stop:
		c.setState(StateDisconnected)
		return false
	}
}

func (c *Conn) dial(stop <-chan struct{}) (Socket, error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()
	return c.cfg.Dialer(ctx)
}

// replay re-subscribes active topics first, then flushes the envelope queue
// in enqueue order. Subscribers must not observe pushes for topics they have
// not yet re-subscribed to, so this ordering is load-bearing.
func (c *Conn) replay(sock Socket) {
	c.mu.Lock()
	fn := c.replayFn
	c.mu.Unlock()

	if fn != nil {
		for _, f := range fn() {
			data, err := f.Encode()
			if err != nil {
				log.Printf("transport: encode resubscribe %s: %v", f.Topic, err)
				continue
			}
			if err := c.writeFrame(sock, data); err != nil {
				log.Printf("transport: resubscribe %s: %v", f.Topic, err)
				return
			}
		}
	}

	envs := c.queue.Drain()
	for i, env := range envs {
		if err := c.writeFrame(sock, env.Data); err != nil {
			log.Printf("transport: queue flush at %s: %v", env.Topic, err)
			c.queue.Requeue(envs[i:])
			return
		}
	}
	if len(envs) > 0 {
		log.Printf("transport: replayed %d queued envelopes", len(envs))
	}
}

func (c *Conn) readLoop(sock Socket, stop <-chan struct{}) {
	for {
		data, err := sock.ReadMessage()
		if err != nil {
			return
		}
		c.noteActivity()

		f, err := protocol.DecodeFrame(data)
		if err != nil {
			log.Printf("transport: dropping malformed frame: %v", err)
			continue
		}

		switch f.Type {
		case protocol.FramePong:
			continue
		case protocol.FramePing:
			pong, _ := protocol.NewPongFrame().Encode()
			if err := c.writeFrame(sock, pong); err != nil {
				log.Printf("transport: pong reply: %v", err)
			}
			continue
		}

		select {
		case c.frames <- f:
		case <-stop:
			return
		}
	}
}

func (c *Conn) noteActivity() {
	c.mu.Lock()
	c.lastSeen = time.Now()
	c.mu.Unlock()
}

func (c *Conn) sinceActivity() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.lastSeen)
}

// heartbeat pings on a fixed period. No inbound traffic for two periods
// forces a close, which kicks the read loop into the reconnect path.
func (c *Conn) heartbeat(sock Socket, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.cfg.HeartbeatPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if c.sinceActivity() > 2*c.cfg.HeartbeatPeriod {
				log.Printf("transport: heartbeat timeout, forcing close")
				sock.Close()
				return
			}
			ping, _ := protocol.NewPingFrame().Encode()
			if err := c.writeFrame(sock, ping); err != nil {
				log.Printf("transport: ping: %v", err)
			}
		}
	}
}

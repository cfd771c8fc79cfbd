// Package client assembles the realtime stack: socket transport, topic
// router, order coordinator, and verification gate, wired against the hub's
// websocket and REST endpoints.
package client

import (
	"time"

	"marketlink/orders"
	"marketlink/rest"
	"marketlink/router"
	"marketlink/transport"
	"marketlink/verify"
)

// Config holds client endpoints and tuning. Zero durations take the
// transport defaults.
type Config struct {
	SocketURL string
	RestURL   string

	RestTimeout     time.Duration // default 10s
	BackoffBase     time.Duration
	MaxAttempts     int
	HeartbeatPeriod time.Duration
	QueueTTL        time.Duration

	VerifyMaxAttempts int
	VerifyTimeout     time.Duration

	Emitter orders.EventEmitter // nil = no-op
}

// Client is the top-level handle an application holds.
type Client struct {
	conn   *transport.Conn
	router *router.Router
	coord  *orders.Coordinator
	gate   *verify.Gate
	rest   *rest.Client

	orderSub   router.Subscription
	bookingSub router.Subscription
}

// New builds a client. Nothing connects until Start.
func New(cfg Config) *Client {
	restTimeout := cfg.RestTimeout
	if restTimeout <= 0 {
		restTimeout = 10 * time.Second
	}
	rc := rest.NewClient(cfg.RestURL, restTimeout)

	var gateOpts []verify.Option
	if cfg.VerifyMaxAttempts > 0 {
		gateOpts = append(gateOpts, verify.WithMaxAttempts(cfg.VerifyMaxAttempts))
	}
	if cfg.VerifyTimeout > 0 {
		gateOpts = append(gateOpts, verify.WithTimeout(cfg.VerifyTimeout))
	}
	gate := verify.NewGate(rc, gateOpts...)

	conn := transport.New(transport.Config{
		Dialer:          transport.WebsocketDialer(cfg.SocketURL),
		BackoffBase:     cfg.BackoffBase,
		MaxAttempts:     cfg.MaxAttempts,
		HeartbeatPeriod: cfg.HeartbeatPeriod,
		QueueTTL:        cfg.QueueTTL,
	})
	r := router.Attach(conn)
	coord := orders.NewCoordinator(gate, rc, cfg.Emitter)

	c := &Client{
		conn:   conn,
		router: r,
		coord:  coord,
		gate:   gate,
		rest:   rc,
	}
	c.orderSub = r.OnOrderPush(coord.HandlePush)
	c.bookingSub = r.OnBookingPush(coord.HandleBookingPush)
	return c
}

// Start brings up the router, the coordinator's resync worker, and the
// socket connection.
func (c *Client) Start() {
	c.router.Start()
	c.coord.Start()
	c.conn.Connect()
}

// Stop tears the stack down in reverse order.
func (c *Client) Stop() {
	c.conn.Disconnect()
	c.coord.Stop()
	c.router.Stop()
	c.gate.Close()
}

// Conn exposes the transport connection, e.g. for state listeners.
func (c *Client) Conn() *transport.Conn { return c.conn }

// Router exposes the topic router for subscriptions and publishes.
func (c *Client) Router() *router.Router { return c.router }

// Orders exposes the order lifecycle coordinator.
func (c *Client) Orders() *orders.Coordinator { return c.coord }

// Gate exposes the verification gate.
func (c *Client) Gate() *verify.Gate { return c.gate }

// Rest exposes the hub REST client.
func (c *Client) Rest() *rest.Client { return c.rest }

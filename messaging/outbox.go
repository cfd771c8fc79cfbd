package messaging

import (
	"log"
	"sync"
	"time"

	"marketlink/store"
)

// Publisher is the broker half the drainer needs.
type Publisher interface {
	IsConnected() bool
	Publish(topic string, payload []byte) error
}

// OutboxDrainer periodically flushes pending outbox rows to the broker.
// Pushes are enqueued durably at write time, so a broker outage delays
// cross-node delivery instead of dropping it.
type OutboxDrainer struct {
	db       *store.DB
	pub      Publisher
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewOutboxDrainer creates a drainer flushing every interval.
func NewOutboxDrainer(db *store.DB, pub Publisher, interval time.Duration) *OutboxDrainer {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &OutboxDrainer{
		db:       db,
		pub:      pub,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the drain loop.
func (d *OutboxDrainer) Start() {
	d.wg.Add(1)
	go d.drainLoop()
}

// Stop halts the drain loop.
func (d *OutboxDrainer) Stop() {
	select {
	case <-d.stopCh:
	default:
		close(d.stopCh)
	}
	d.wg.Wait()
}

func (d *OutboxDrainer) drainLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			d.Drain()
		}
	}
}

// Drain flushes one batch of pending messages. Exported so callers can force
// a flush outside the ticker.
func (d *OutboxDrainer) Drain() {
	if !d.pub.IsConnected() {
		return
	}

	msgs, err := d.db.ListPendingOutbox(50)
	if err != nil {
		log.Printf("messaging: list pending outbox: %v", err)
		return
	}

	for _, msg := range msgs {
		if err := d.pub.Publish(msg.Topic, msg.Payload); err != nil {
			log.Printf("messaging: publish outbox msg %d: %v", msg.ID, err)
			d.db.IncrementOutboxRetries(msg.ID)
			continue
		}
		if err := d.db.AckOutbox(msg.ID); err != nil {
			log.Printf("messaging: ack outbox msg %d: %v", msg.ID, err)
		}
	}
}

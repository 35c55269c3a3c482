// Package eventqueue implements the Event Queue Coordinator (C10): the
// single writer over a list's POI event log (C3). Per the design note on
// static-class singletons (§9), this generalises the teacher's
// static-member coordinator classes into an explicit object with an
// Init(listKey) lifecycle step that must precede draining, and that
// rejects a second Init.
package eventqueue

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/poi-list/provider/entities"
	"github.com/poi-list/provider/poilog"
	"github.com/poi-list/provider/signer"
)

// recentEventCacheSize bounds the in-memory replay buffer of recently
// signed events that Recent serves from. The next starting index is not
// taken from this buffer; appendOne always reads it from the log store.
const recentEventCacheSize = 256

type queuedEvent struct {
	eventType entities.POIEventType
	network   string
	shield    *entities.POIEventShield
	transact  *entities.POIEventTransact
}

// Coordinator serialises every append to one list's POI event log. It must
// be constructed once per listKey for the lifetime of the process (§3
// "Ownership"); a second Init is a programming error.
type Coordinator struct {
	listKey string
	log     *poilog.Store
	signer  *signer.Signer
	logger  *logrus.Entry

	mu    sync.Mutex
	queue []queuedEvent

	recent *lru.Cache[uint64, *entities.SignedPOIEvent]

	initMu   sync.Mutex
	initDone bool
}

// New constructs a Coordinator bound to one list's log and signer. Init
// must be called before QueueUnsigned*/Drain are used.
func New(log *poilog.Store, s *signer.Signer, logger *logrus.Entry) *Coordinator {
	cache, err := lru.New[uint64, *entities.SignedPOIEvent](recentEventCacheSize)
	if err != nil {
		// lru.New only fails for a non-positive size, which is a
		// compile-time constant here; this can never happen in practice.
		panic(fmt.Sprintf("eventqueue: build recent-event cache: %v", err))
	}
	return &Coordinator{log: log, signer: s, logger: logger, recent: cache}
}

// Init binds the coordinator to a listKey and must precede any draining.
// Double-init is rejected (§9 "static-class singletons").
func (c *Coordinator) Init(listKey string) error {
	c.initMu.Lock()
	defer c.initMu.Unlock()
	if c.initDone {
		return fmt.Errorf("eventqueue: coordinator already initialised for listKey %s, cannot re-init for %s", c.listKey, listKey)
	}
	c.listKey = listKey
	c.initDone = true
	return nil
}

func (c *Coordinator) requireInit() {
	c.initMu.Lock()
	done := c.initDone
	c.initMu.Unlock()
	if !done {
		panic("eventqueue: coordinator used before Init")
	}
}

// QueueUnsignedPOIShieldEvent buffers a shield event for the coordinator's
// next drain (§4.5).
func (c *Coordinator) QueueUnsignedPOIShieldEvent(network string, shield entities.POIEventShield) {
	c.requireInit()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = append(c.queue, queuedEvent{eventType: entities.POIEventTypeShield, network: network, shield: &shield})
}

// QueueUnsignedPOITransactEvent buffers a transact event for the
// coordinator's next drain (§4.5).
func (c *Coordinator) QueueUnsignedPOITransactEvent(network string, transact entities.POIEventTransact) {
	c.requireInit()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = append(c.queue, queuedEvent{eventType: entities.POIEventTypeTransact, network: network, transact: &transact})
}

// QueueDepth reports how many events are buffered, for the ambient /status
// surface.
func (c *Coordinator) QueueDepth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

func (c *Coordinator) popHead() (queuedEvent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return queuedEvent{}, false
	}
	e := c.queue[0]
	c.queue = c.queue[1:]
	return e, true
}

// pushHead returns an event to the front of the queue, per §7's handling
// of a signature-generation failure: "returned to the head of the
// coordinator queue".
func (c *Coordinator) pushHead(e queuedEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = append([]queuedEvent{e}, c.queue...)
}

// Drain appends every currently-queued event to the log, in FIFO order,
// stopping (without consuming further events) on the first signature
// failure so later passes can retry it (§7). A log invariant violation is
// fatal and halts the process rather than returning an error, per §7 - the
// alternative is silently corrupting every downstream consumer's proof.
func (c *Coordinator) Drain(ctx context.Context) error {
	c.requireInit()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		event, ok := c.popHead()
		if !ok {
			return nil
		}

		if err := c.appendOne(event); err != nil {
			c.logger.WithError(err).WithField("network", event.network).Error("eventqueue: signature generation failed, returning event to head of queue")
			c.pushHead(event)
			return err
		}
	}
}

func (c *Coordinator) appendOne(event queuedEvent) error {
	n, err := c.log.Len()
	if err != nil {
		return fmt.Errorf("eventqueue: read log length: %w", err)
	}

	var startingIndex uint64
	if n > 0 {
		last, ok, err := c.log.Last()
		if err != nil {
			return fmt.Errorf("eventqueue: read last event: %w", err)
		}
		if ok {
			startingIndex = last.BlindedCommitmentStartingIndex + uint64(len(last.BlindedCommitments))
		}
	}

	var (
		blindedCommitments []string
		proof              *entities.SnarkProof
	)
	switch event.eventType {
	case entities.POIEventTypeShield:
		blindedCommitments = []string{event.shield.BlindedCommitment}
	case entities.POIEventTypeTransact:
		blindedCommitments = event.transact.BlindedCommitments
		proof = event.transact.Proof
	default:
		return fmt.Errorf("eventqueue: unknown event type %v", event.eventType)
	}

	sig, err := c.signer.SignPOIEvent(event.eventType, n, startingIndex, blindedCommitments, proof)
	if err != nil {
		return fmt.Errorf("eventqueue: sign event at index %d: %w", n, err)
	}

	signed := &entities.SignedPOIEvent{
		Index:                          n,
		BlindedCommitmentStartingIndex: startingIndex,
		BlindedCommitments:             blindedCommitments,
		Proof:                          proof,
		Signature:                      sig,
	}

	if err := c.log.Append(signed); err != nil {
		return fmt.Errorf("eventqueue: append event at index %d: %w", n, err)
	}

	c.recent.Add(signed.Index, signed)
	c.logger.WithField("network", event.network).WithField("index", signed.Index).Info("eventqueue: appended signed POI event")
	return nil
}

// Recent returns up to n of the most recently appended events, newest
// last. It is best-effort: entries
// evicted from the in-memory cache (older than recentEventCacheSize
// appends back) are simply omitted rather than re-read from the store.
func (c *Coordinator) Recent(n int) []*entities.SignedPOIEvent {
	keys := c.recent.Keys()
	if len(keys) > n {
		keys = keys[len(keys)-n:]
	}
	out := make([]*entities.SignedPOIEvent, 0, len(keys))
	for _, k := range keys {
		if e, ok := c.recent.Peek(k); ok {
			out = append(out, e)
		}
	}
	return out
}

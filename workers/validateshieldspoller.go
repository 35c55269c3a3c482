package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/poi-list/provider/blockedstore"
	"github.com/poi-list/provider/chainobserver"
	"github.com/poi-list/provider/entities"
	"github.com/poi-list/provider/eventqueue"
	"github.com/poi-list/provider/policygate"
	"github.com/poi-list/provider/shieldqueue"
	"github.com/poi-list/provider/signer"
	"github.com/poi-list/provider/utils"
)

// validateBatchLimit is the per-network, per-pass cap on how many pending
// shields are drained at once (§4.4 step 2).
const validateBatchLimit = 100

// NetworkValidateStore bundles the per-network C1 handle a
// ValidateShieldsPoller needs for one network.
type NetworkValidateStore struct {
	Network     string
	ShieldStore *shieldqueue.Store
}

// Waker is the narrow capability C9 needs on C10: request an out-of-cadence
// drain after queueing an event, rather than waiting for the coordinator's
// own cadence (§4.5 "on its own poller cadence, or in response to a wake
// signal").
type Waker interface {
	Wake()
}

// ValidateShieldsPoller drains eligible rows from C1, invokes C6 for the
// receipt, consults C7, transitions C1 status, and emits to C3 (via C10)
// or C4 (C9).
type ValidateShieldsPoller struct {
	WorkerAbs

	observer      chainobserver.Observer
	networks      []NetworkValidateStore
	blocked       *blockedstore.Store
	signer        *signer.Signer
	gate          policygate.Gate
	coordinator   *eventqueue.Coordinator
	waker         Waker
	pendingPeriod time.Duration
	alerter       *utils.Alerter
}

// NewValidateShieldsPoller builds C9. waker is woken immediately after every
// successful queue of a POI event, so the coordinator need not wait for its
// own fixed cadence to drain it.
func NewValidateShieldsPoller(
	observer chainobserver.Observer,
	networks []NetworkValidateStore,
	blocked *blockedstore.Store,
	s *signer.Signer,
	gate policygate.Gate,
	coordinator *eventqueue.Coordinator,
	waker Waker,
	pendingPeriod time.Duration,
	delay time.Duration,
	alerter *utils.Alerter,
	logger *logrus.Entry,
) *ValidateShieldsPoller {
	return &ValidateShieldsPoller{
		WorkerAbs:     WorkerAbs{Name: "validate-shields poller", Delay: delay, Quit: make(chan bool), Logger: logger},
		observer:      observer,
		networks:      networks,
		blocked:       blocked,
		signer:        s,
		gate:          gate,
		coordinator:   coordinator,
		waker:         waker,
		pendingPeriod: pendingPeriod,
		alerter:       alerter,
	}
}

func (p *ValidateShieldsPoller) Execute() {
	for _, n := range p.networks {
		if err := p.pollNetwork(context.Background(), n); err != nil {
			p.Logger.WithField("network", n.Network).WithError(err).Error("validate-shields poller: iteration failed")
			if p.alerter != nil {
				_ = p.alerter.Notify("validate-shields poller: "+n.Network+": "+err.Error(), utils.AlertNotification)
			}
		}
	}
}

func (p *ValidateShieldsPoller) pollNetwork(ctx context.Context, n NetworkValidateStore) error {
	endTimestamp := time.Now().Add(-p.pendingPeriod).UnixMilli()

	rows, err := n.ShieldStore.GetPendingShields(endTimestamp, validateBatchLimit)
	if err != nil {
		return fmt.Errorf("get pending shields: %w", err)
	}

	// Unbounded fan-out within the batch is explicitly conformant given the
	// 100-row cap (§4.4 step 3, §5 "Intra-batch parallelism").
	var wg sync.WaitGroup
	for _, row := range rows {
		row := row
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.validateOne(ctx, n, row, endTimestamp); err != nil {
				// Per-row failures are isolated: logged, the row stays
				// Pending for a future pass (§4.4 step 4, §7).
				p.Logger.WithField("network", n.Network).WithField("txid", row.TxID).WithError(err).Warn("validate-shields poller: row left pending")
			}
		}()
	}
	wg.Wait()
	return nil
}

func (p *ValidateShieldsPoller) validateOne(ctx context.Context, n NetworkValidateStore, row *entities.ShieldQueueItem, endTimestamp int64) error {
	receipt, err := p.observer.GetReceipt(ctx, n.Network, row.TxID)
	if err != nil {
		return fmt.Errorf("get receipt: %w", err)
	}

	// Re-derive timestamp from the receipt's block; an optimistic observer
	// timestamp must not let a too-recent shield slip through (§4.4 step b).
	if receipt.Timestamp > endTimestamp {
		return nil
	}

	fromLower := utils.NormalizeAddress(receipt.From)
	decision, err := p.gate.Evaluate(ctx, n.Network, row.TxID, fromLower, receipt.Timestamp)
	if err != nil {
		return fmt.Errorf("policy gate: %w", err)
	}

	now := time.Now().UnixMilli()
	if decision.ShouldAllow {
		p.coordinator.QueueUnsignedPOIShieldEvent(n.Network, entities.POIEventShield{
			Network:           n.Network,
			CommitmentHash:    row.Hash,
			BlindedCommitment: row.BlindedCommitment,
		})
		if p.waker != nil {
			p.waker.Wake()
		}
		return n.ShieldStore.UpdateShieldStatus(row, entities.ShieldStatusAllowed, now)
	}

	sig, err := p.signer.SignBlockedShield(row.Hash, row.BlindedCommitment, decision.BlockReason)
	if err != nil {
		return fmt.Errorf("sign blocked shield: %w", err)
	}
	record := &entities.SignedBlockedShield{
		CommitmentHash:    row.Hash,
		BlindedCommitment: row.BlindedCommitment,
		BlockReason:       decision.BlockReason,
		Signature:         sig,
	}
	if err := p.blocked.Append(record); err != nil {
		return fmt.Errorf("append blocked shield: %w", err)
	}
	return n.ShieldStore.UpdateShieldStatus(row, entities.ShieldStatusBlocked, now)
}

package workers

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/poi-list/provider/chainobserver"
	"github.com/poi-list/provider/entities"
	"github.com/poi-list/provider/shieldqueue"
	"github.com/poi-list/provider/statusstore"
	"github.com/poi-list/provider/utils"
)

// NetworkShieldStores bundles the per-network C1/C2 handles and
// deployment-block floor a QueueShieldsPoller needs for one network.
type NetworkShieldStores struct {
	Network         string
	ShieldStore     *shieldqueue.Store
	StatusStore     *statusstore.Store
	DeploymentBlock uint64
}

// QueueShieldsPoller drives C6 -> C1 ingest per network (C8). Networks are
// drained serially within one Execute pass to avoid a thundering herd on
// the chain RPC (§4.3).
type QueueShieldsPoller struct {
	WorkerAbs

	observer chainobserver.Observer
	networks []NetworkShieldStores
	alerter  *utils.Alerter
}

// NewQueueShieldsPoller builds C8. delay is the resolved cadence from
// config.Config.QueueShieldsDelay.
func NewQueueShieldsPoller(observer chainobserver.Observer, networks []NetworkShieldStores, delay time.Duration, alerter *utils.Alerter, logger *logrus.Entry) *QueueShieldsPoller {
	return &QueueShieldsPoller{
		WorkerAbs: WorkerAbs{Name: "queue-shields poller", Delay: delay, Quit: make(chan bool), Logger: logger},
		observer:  observer,
		networks:  networks,
		alerter:   alerter,
	}
}

func (p *QueueShieldsPoller) Execute() {
	for _, n := range p.networks {
		if err := p.pollNetwork(context.Background(), n); err != nil {
			p.Logger.WithField("network", n.Network).WithError(err).Error("queue-shields poller: iteration failed")
			if p.alerter != nil {
				_ = p.alerter.Notify("queue-shields poller: "+n.Network+": "+err.Error(), utils.AlertNotification)
			}
		}
	}
}

func (p *QueueShieldsPoller) pollNetwork(ctx context.Context, n NetworkShieldStores) error {
	fromBlock := n.DeploymentBlock
	if status, ok, err := n.StatusStore.GetStatus(); err != nil {
		return err
	} else if ok {
		fromBlock = status.LatestBlockScanned
	}

	shields, err := p.observer.GetNewShields(ctx, n.Network, fromBlock)
	if err != nil {
		return err
	}

	var lastBlock uint64
	var sawAny bool
	for _, sh := range shields {
		item := &entities.ShieldQueueItem{
			Network:           n.Network,
			TxID:              sh.TxID,
			Hash:              sh.Hash,
			BlindedCommitment: sh.BlindedCommitment,
			Timestamp:         sh.Timestamp,
			BlockNumber:       sh.BlockNumber,
		}
		// Per-shield insert errors are logged and swallowed (§4.3 step 3):
		// the remaining shields in this batch must still be attempted.
		if err := n.ShieldStore.InsertPending(item); err != nil {
			p.Logger.WithField("network", n.Network).WithField("txid", sh.TxID).WithError(err).Error("queue-shields poller: insert failed")
			continue
		}
		sawAny = true
		lastBlock = sh.BlockNumber
	}

	if sawAny {
		if err := n.StatusStore.SaveStatus(n.Network, lastBlock); err != nil {
			return err
		}
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/poi-list/provider/blockedstore"
	"github.com/poi-list/provider/chainobserver"
	"github.com/poi-list/provider/config"
	"github.com/poi-list/provider/eventqueue"
	"github.com/poi-list/provider/healthapi"
	"github.com/poi-list/provider/policygate"
	"github.com/poi-list/provider/poilog"
	"github.com/poi-list/provider/shieldqueue"
	"github.com/poi-list/provider/signer"
	"github.com/poi-list/provider/statusstore"
	"github.com/poi-list/provider/utils"
	"github.com/poi-list/provider/workers"
)

// Server owns every long-lived component of the list-provider process: the
// per-network stores, the signer-backed event-queue coordinator, the two
// self-rescheduling pollers, and the ambient health surface. It mirrors the
// teacher's Server/NewServer/Run shape, generalised from a fixed worker-ID
// list to the dynamic per-network fan-out this design needs.
type Server struct {
	quit    chan os.Signal
	finish  chan bool
	workers []workers.Worker

	coordinatorWorker *workers.EventQueueCoordinatorWorker
	health            *healthapi.Server

	shieldStores map[string]*shieldqueue.Store
	statusStores map[string]*statusstore.Store
	poiLog       *poilog.Store
	blocked      *blockedstore.Store
}

// NewServer wires every component named in SPEC_FULL.md into a runnable
// Server, opening one goleveldb handle per network (C1, C2) plus one each
// for the list-wide event log (C3) and blocklist (C4).
func NewServer(cfg *config.Config, s *signer.Signer, observer chainobserver.Observer, gate policygate.Gate) (*Server, error) {
	logger := logrus.NewEntry(logrus.StandardLogger()).WithField("listKey", s.ListKey())

	alerter := utils.NewAlerter(cfg.AlertWebhookURL, cfg.InfoWebhookURL)

	shieldStores := map[string]*shieldqueue.Store{}
	statusStores := map[string]*statusstore.Store{}
	for _, name := range cfg.NetworkNames() {
		ss, err := shieldqueue.Open(filepath.Join(cfg.DataDir, "shields", name))
		if err != nil {
			return nil, fmt.Errorf("open shield queue for %s: %w", name, err)
		}
		shieldStores[name] = ss

		st, err := statusstore.Open(filepath.Join(cfg.DataDir, "status", name))
		if err != nil {
			return nil, fmt.Errorf("open status store for %s: %w", name, err)
		}
		statusStores[name] = st
	}

	poiLog, err := poilog.Open(filepath.Join(cfg.DataDir, "poilog"))
	if err != nil {
		return nil, fmt.Errorf("open poi log: %w", err)
	}
	blocked, err := blockedstore.Open(filepath.Join(cfg.DataDir, "blocked"))
	if err != nil {
		return nil, fmt.Errorf("open blocked-shield store: %w", err)
	}

	coordinator := eventqueue.New(poiLog, s, logger.WithField("component", "eventqueue"))
	if err := coordinator.Init(s.ListKey()); err != nil {
		return nil, err
	}
	coordinatorWorker := workers.NewEventQueueCoordinatorWorker(coordinator, logger.WithField("component", "eventqueue"))

	queueNetworks := make([]workers.NetworkShieldStores, 0, len(cfg.Networks))
	for _, nc := range cfg.Networks {
		queueNetworks = append(queueNetworks, workers.NetworkShieldStores{
			Network:         nc.Name,
			ShieldStore:     shieldStores[nc.Name],
			StatusStore:     statusStores[nc.Name],
			DeploymentBlock: nc.DeploymentBlock,
		})
	}
	queuePoller := workers.NewQueueShieldsPoller(observer, queueNetworks, cfg.QueueShieldsDelay(), alerter, logger.WithField("component", "queue-shields"))

	validateNetworks := make([]workers.NetworkValidateStore, 0, len(cfg.Networks))
	for _, name := range cfg.NetworkNames() {
		validateNetworks = append(validateNetworks, workers.NetworkValidateStore{Network: name, ShieldStore: shieldStores[name]})
	}
	validatePoller := workers.NewValidateShieldsPoller(
		observer, validateNetworks, blocked, s, gate, coordinator, coordinatorWorker,
		cfg.PendingPeriod(), cfg.ValidateShieldsDelay(), alerter,
		logger.WithField("component", "validate-shields"),
	)

	statusSources := make([]healthapi.NetworkStatusSource, 0, len(cfg.Networks))
	for _, name := range cfg.NetworkNames() {
		statusSources = append(statusSources, healthapi.NetworkStatusSource{Network: name, Store: statusStores[name]})
	}
	health := healthapi.New(cfg.HealthAddr, s.ListKey(), statusSources, coordinator, logger.WithField("component", "healthapi"))

	listWorkers := []workers.Worker{queuePoller, validatePoller}

	quitChan := make(chan os.Signal, 1)
	return &Server{
		quit:              quitChan,
		finish:            make(chan bool, len(listWorkers)+1),
		workers:           listWorkers,
		coordinatorWorker: coordinatorWorker,
		health:            health,
		shieldStores:      shieldStores,
		statusStores:      statusStores,
		poiLog:            poiLog,
		blocked:           blocked,
	}, nil
}

// Run starts the ambient HTTP surface and every poller, matching the
// teacher's Run/NotifyQuitSignal/executeWorker shape generalised to this
// design's three poller kinds.
func (s *Server) Run() {
	signal.Notify(s.quit, syscall.SIGINT, syscall.SIGTERM)
	s.health.Start()

	go s.notifyQuitSignal()
	go s.coordinatorWorker.Run(s.finish)
	for _, w := range s.workers {
		go workers.Run(s.finish, w)
	}
}

func (s *Server) notifyQuitSignal() {
	sig := <-s.quit
	fmt.Printf("caught sig: %+v\n", sig)
	s.coordinatorWorker.GetQuitChan() <- true
	for _, w := range s.workers {
		w.GetQuitChan() <- true
	}
}

// NumWorkers is how many finish signals main must wait for: every poller
// plus the event-queue coordinator.
func (s *Server) NumWorkers() int {
	return len(s.workers) + 1
}

func (s *Server) Finish() chan bool {
	return s.finish
}

// Shutdown closes every store handle. Must only be called after every
// worker has reported finished on s.finish.
func (s *Server) Shutdown(ctx context.Context) {
	if err := s.health.Stop(ctx); err != nil {
		fmt.Printf("healthapi shutdown: %v\n", err)
	}
	for _, st := range s.shieldStores {
		_ = st.Close()
	}
	for _, st := range s.statusStores {
		_ = st.Close()
	}
	_ = s.poiLog.Close()
	_ = s.blocked.Close()
}

// Package healthapi exposes the minimal operational surface named in
// SPEC_FULL.md's ambient stack: a process liveness check, the last scanned
// block per network and the event-queue depth, NOT the downstream
// event-serving query API (explicitly out of
// core scope). It follows the sibling DAG-node reference's shape of a
// small gorilla/mux router wired into a net/http.Server with
// goroutine-based graceful shutdown.
package healthapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/poi-list/provider/eventqueue"
	"github.com/poi-list/provider/statusstore"
)

// NetworkStatusSource is the per-network status store the /status handler
// reads from to report the last scanned block.
type NetworkStatusSource struct {
	Network string
	Store   *statusstore.Store
}

// Server hosts the ambient health/status HTTP surface.
type Server struct {
	http        *http.Server
	listKey     string
	networks    []NetworkStatusSource
	coordinator *eventqueue.Coordinator
	logger      *logrus.Entry
}

// New builds the ambient HTTP surface bound to addr.
func New(addr, listKey string, networks []NetworkStatusSource, coordinator *eventqueue.Coordinator, logger *logrus.Entry) *Server {
	s := &Server{listKey: listKey, networks: networks, coordinator: coordinator, logger: logger}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins serving in a background goroutine, matching the source's
// "listen, log errors, let Stop own the shutdown" shape.
func (s *Server) Start() {
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("healthapi: server stopped")
		}
	}()
	s.logger.WithField("addr", s.http.Addr).Info("healthapi: listening")
}

// Stop gracefully shuts the server down, matching the sibling DAG-node
// reference's srv.Close() on SIGINT/SIGTERM.
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type networkStatusView struct {
	Network            string `json:"network"`
	LatestBlockScanned uint64 `json:"latestBlockScanned"`
}

type statusView struct {
	ListKey       string              `json:"listKey"`
	Networks      []networkStatusView `json:"networks"`
	EventQueueLag int                 `json:"eventQueueLag"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	view := statusView{ListKey: s.listKey}
	for _, n := range s.networks {
		status, ok, err := n.Store.GetStatus()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		entry := networkStatusView{Network: n.Network}
		if ok {
			entry.LatestBlockScanned = status.LatestBlockScanned
		}
		view.Networks = append(view.Networks, entry)
	}
	if s.coordinator != nil {
		view.EventQueueLag = s.coordinator.QueueDepth()
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(view)
}

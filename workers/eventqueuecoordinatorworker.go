package workers

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/poi-list/provider/eventqueue"
)

// defaultCoordinatorDrainDelay is the coordinator's own poll cadence when
// it isn't woken early by a queued event (§4.5 "On its own poller cadence,
// or in response to a wake signal").
const defaultCoordinatorDrainDelay = 2 * time.Second

// EventQueueCoordinatorWorker runs C10's drain loop as a Worker, the same
// cooperative-scheduling shape as C8 and C9. It additionally exposes a
// Wake channel so QueueUnsigned* callers get a near-immediate drain rather
// than waiting a full cadence.
type EventQueueCoordinatorWorker struct {
	WorkerAbs

	coordinator *eventqueue.Coordinator
	wake        chan struct{}
}

// NewEventQueueCoordinatorWorker builds C10's poller wrapper around an
// already-Init'd Coordinator.
func NewEventQueueCoordinatorWorker(coordinator *eventqueue.Coordinator, logger *logrus.Entry) *EventQueueCoordinatorWorker {
	return &EventQueueCoordinatorWorker{
		WorkerAbs:   WorkerAbs{Name: "event-queue coordinator", Delay: defaultCoordinatorDrainDelay, Quit: make(chan bool), Logger: logger},
		coordinator: coordinator,
		wake:        make(chan struct{}, 1),
	}
}

// Wake requests an out-of-cadence drain. Non-blocking: a drain already
// pending absorbs the signal.
func (w *EventQueueCoordinatorWorker) Wake() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *EventQueueCoordinatorWorker) Execute() {
	if err := w.coordinator.Drain(context.Background()); err != nil {
		w.Logger.WithError(err).Error("event-queue coordinator: drain failed")
	}
}

// Run overrides the generic Run loop (see worker.go) so the coordinator can
// also drain immediately on a Wake signal between ticks, not just every
// Delay.
func (w *EventQueueCoordinatorWorker) Run(finish chan bool) {
	w.Execute()
	for {
		select {
		case <-w.Quit:
			w.Logger.Info("event-queue coordinator: quit signal received, finishing current cycle")
			finish <- true
			return
		case <-w.wake:
			w.Execute()
		case <-time.After(w.Delay):
			w.Execute()
		}
	}
}

// Package workers hosts the self-rescheduling pollers (C8, C9) and the
// event-queue coordinator's poller wrapper (C10), plus the shared base type
// and execution loop every one of them runs under. Per the design note on
// floating pollers (§9), the recursion-via-unawaited-call idiom from the
// source becomes an explicit cooperative loop owned by a goroutine that can
// be joined at shutdown.
package workers

import (
	"time"

	"github.com/sirupsen/logrus"
)

// WorkerAbs is the shared base every poller embeds. It generalises the
// teacher's fixed-integer-seconds Frequency to a time.Duration so C9's
// 30-second default cadence and any millisecond-precision override (§6)
// are representable without loss.
type WorkerAbs struct {
	Name   string
	Delay  time.Duration
	Quit   chan bool
	Logger *logrus.Entry
}

// Worker is the capability server.go's execution loop depends on. Every
// poller (C8, C9, C10) implements it.
type Worker interface {
	Execute()
	GetName() string
	GetDelay() time.Duration
	GetQuitChan() chan bool
	GetLogger() *logrus.Entry
}

func (a *WorkerAbs) GetName() string         { return a.Name }
func (a *WorkerAbs) GetDelay() time.Duration { return a.Delay }
func (a *WorkerAbs) GetQuitChan() chan bool  { return a.Quit }
func (a *WorkerAbs) GetLogger() *logrus.Entry { return a.Logger }

// Run drives one Worker's cooperative loop: execute immediately, then sleep
// Delay and re-execute, until told to quit. It does not run overlapping
// iterations (§5 "Pollers do NOT run overlapping iterations") because the
// next Execute is only scheduled after the previous one returns.
func Run(finish chan bool, w Worker) {
	w.Execute() // run as soon as the process starts up, per the teacher's executeWorker
	for {
		select {
		case <-w.GetQuitChan():
			w.GetLogger().Infof("%s: quit signal received, finishing current cycle", w.GetName())
			finish <- true
			return
		case <-time.After(w.GetDelay()):
			w.Execute()
		}
	}
}

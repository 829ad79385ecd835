// Package schedule runs repeating tasks for the board: the outbound delta
// cadence and the local autosave.
package schedule

import (
	"sync"
	"time"
)

// Scheduler starts a task that runs fn every interval until stop is called.
// stop never blocks and is safe to call more than once, so it can be invoked
// while holding a lock that fn itself acquires.
type Scheduler interface {
	Every(interval time.Duration, fn func()) (stop func())
}

// Ticker is the wall-clock Scheduler, one goroutine per task.
type Ticker struct{}

func (Ticker) Every(interval time.Duration, fn func()) func() {
	t := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		defer t.Stop()
		for {
			select {
			case <-t.C:
				select {
				case <-done:
					return
				default:
				}
				fn()
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}

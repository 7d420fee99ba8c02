// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package imconc

import (
	"time"

	"github.com/sourcegraph/conc"
)

// Routine is a long running component that can be told to stop.
type Routine interface {
	Stop()
}

// RoutineFunc adapts a function to Routine.
type RoutineFunc func()

func (f RoutineFunc) Stop() { f() }

// ConcGroup runs goroutines and stops the registered routines in reverse order of
// registration, so that dependents stop before what they depend on.
type ConcGroup struct {
	routines []Routine
	wg       *conc.WaitGroup
}

func NewConcGroup() *ConcGroup {
	return &ConcGroup{
		wg: &conc.WaitGroup{},
	}
}

func (c *ConcGroup) Add(routine Routine) *ConcGroup {
	c.routines = append(c.routines, routine)
	return c
}

// Go runs fn on the group. A panic in fn is re-raised by Wait.
func (c *ConcGroup) Go(fn func()) {
	c.wg.Go(fn)
}

func (c *ConcGroup) Stop() {
	for i := len(c.routines) - 1; i >= 0; i-- {
		c.routines[i].Stop()
	}
}

func (c *ConcGroup) Wait() {
	c.wg.Wait()
}

// WaitTimeout waits for the goroutines of the group and reports whether they all
// returned before timeout.
func (c *ConcGroup) WaitTimeout(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

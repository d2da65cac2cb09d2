// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package geotable

import (
	"sync"
	"sync/atomic"
)

// throttle runs funcs concurrently, at most Max at a time, and
// remembers the first error.
type throttle struct {
	Max       int
	wg        sync.WaitGroup
	ch        chan struct{}
	err       atomic.Value
	setupOnce sync.Once
	errorOnce sync.Once
}

// Go waits for a free slot, then calls fn in a new goroutine. Once
// an error has been reported, Go returns without calling fn.
func (t *throttle) Go(fn func() error) {
	t.setupOnce.Do(func() {
		if t.Max < 1 {
			t.Max = 1
		}
		t.ch = make(chan struct{}, t.Max)
	})
	t.ch <- struct{}{}
	if t.Err() != nil {
		<-t.ch
		return
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer func() { <-t.ch }()
		t.Report(fn())
	}()
}

func (t *throttle) Report(err error) {
	if err != nil {
		t.errorOnce.Do(func() { t.err.Store(err) })
	}
}

func (t *throttle) Err() error {
	err, _ := t.err.Load().(error)
	return err
}

// Wait waits for all funcs to return, and returns the first error.
func (t *throttle) Wait() error {
	t.wg.Wait()
	return t.Err()
}

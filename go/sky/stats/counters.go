/*
Copyright 2026 The SkyServ Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package stats publishes process counters through expvar.
package stats

import (
	"bytes"
	"expvar"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
)

func publish(name string, v expvar.Var) {
	expvar.Publish(name, v)
}

// Counter is expvar.Int+Get+help.
type Counter struct {
	i    atomic.Int64
	help string
}

// NewCounter returns a new Counter and publishes it if name is set.
func NewCounter(name string, help string) *Counter {
	v := &Counter{help: help}
	if name != "" {
		publish(name, v)
	}
	return v
}

// Add adds the provided value to the Counter.
func (v *Counter) Add(delta int64) {
	v.i.Add(delta)
}

// Reset resets the counter value to 0.
func (v *Counter) Reset() {
	v.i.Store(0)
}

// Get returns the value.
func (v *Counter) Get() int64 {
	return v.i.Load()
}

// String is the implementation of expvar.Var.
func (v *Counter) String() string {
	return strconv.FormatInt(v.i.Load(), 10)
}

// Help returns the help string.
func (v *Counter) Help() string {
	return v.help
}

// Gauge is an unlabeled metric whose values can go up/down.
type Gauge struct {
	Counter
}

// NewGauge creates a new Gauge and publishes it if name is set.
func NewGauge(name string, help string) *Gauge {
	v := &Gauge{Counter: Counter{help: help}}
	if name != "" {
		publish(name, v)
	}
	return v
}

// Set sets the value.
func (v *Gauge) Set(value int64) {
	v.Counter.i.Store(value)
}

// Counters is similar to expvar.Map, except that it doesn't allow floats.
// It is used to export counters partitioned by a single label.
type Counters struct {
	mu     sync.RWMutex
	counts map[string]int64
	help   string
}

// NewCounters creates a Counters and publishes it if name is set.
func NewCounters(name string, help string, tags ...string) *Counters {
	c := &Counters{
		counts: make(map[string]int64),
		help:   help,
	}
	for _, tag := range tags {
		c.counts[tag] = 0
	}
	if name != "" {
		publish(name, c)
	}
	return c
}

// Add adds a value to a named counter.
func (c *Counters) Add(name string, value int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[name] += value
}

// Counts returns a copy of the Counters' map.
func (c *Counters) Counts() map[string]int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	counts := make(map[string]int64, len(c.counts))
	for k, v := range c.counts {
		counts[k] = v
	}
	return counts
}

// String implements expvar.Var.
func (c *Counters) String() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b := bytes.NewBuffer(make([]byte, 0, 4096))
	fmt.Fprintf(b, "{")
	firstValue := true
	for k, v := range c.counts {
		if firstValue {
			firstValue = false
		} else {
			fmt.Fprintf(b, ", ")
		}
		fmt.Fprintf(b, "%q: %v", k, v)
	}
	fmt.Fprintf(b, "}")
	return b.String()
}

// Help returns the help string.
func (c *Counters) Help() string {
	return c.help
}

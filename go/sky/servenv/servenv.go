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

// Package servenv owns the server lifecycle: the debug HTTP listener, the
// signal-driven shutdown sequence and the OnRun/OnTerm/OnClose hook
// points binaries register against.
package servenv

import (
	_ "expvar"
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"skyserv.io/skyserv/go/sky/log"
)

var (
	onRunHooks   hooks
	onTermHooks  hooks
	onCloseHooks hooks

	lameduckPeriod = 30 * time.Second
)

// RegisterFlags installs servenv flags on the given FlagSet.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.DurationVar(&lameduckPeriod, "lameduck-period",
		lameduckPeriod, "how long to keep serving after SIGTERM before stopping")
}

// hooks is a set of callbacks fired in parallel exactly once.
type hooks struct {
	mu    sync.Mutex
	funcs []func()
}

func (h *hooks) Add(f func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.funcs = append(h.funcs, f)
}

func (h *hooks) Fire() {
	h.mu.Lock()
	funcs := h.funcs
	h.funcs = nil
	h.mu.Unlock()

	var wg sync.WaitGroup
	for _, f := range funcs {
		wg.Add(1)
		go func(f func()) {
			defer wg.Done()
			f()
		}(f)
	}
	wg.Wait()
}

// OnRun registers f to be run right before the server starts listening.
func OnRun(f func()) {
	onRunHooks.Add(f)
}

// OnTerm registers f to be run when the process receives SIGTERM or
// SIGINT, at the start of the lameduck period.
func OnTerm(f func()) {
	onTermHooks.Add(f)
}

// OnClose registers f to be run at the end of the process lifecycle,
// after the lameduck period.
func OnClose(f func()) {
	onCloseHooks.Add(f)
}

// Run starts the debug HTTP listener (expvar and pprof are registered on
// the default mux) and blocks until the process gets a termination
// signal, then runs the shutdown sequence.
func Run(port int) {
	http.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ok")
	})
	onRunHooks.Fire()

	l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		log.Fatalf("listen on port %d: %v", port, err)
	}
	log.Infof("listening on %v", l.Addr())
	go http.Serve(l, nil)

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)
	sig := <-ch
	log.Infof("caught %v, entering lameduck mode", sig)
	go onTermHooks.Fire()
	time.Sleep(lameduckPeriod)
	l.Close()
	log.Info("shutting down")
	Close()
}

// Close runs the registered exit hooks and flushes logs.
func Close() {
	onCloseHooks.Fire()
	log.Flush()
}

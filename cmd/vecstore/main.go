// Command vecstore wires the object-storage-backed vector index pipeline
// (ingest, slice, shard, query) into a long-running process: it loads
// configuration, constructs the pipeline, and runs the periodic
// housekeeping sweep until signaled to stop. The request/response
// transport that would sit in front of this wiring is out of scope per
// the design; this binary exists so the pipeline runs as a process,
// the way AIStore's daemons (cmd/authn, and so on) are structured.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/roylkng/genai-vectors/cmn/nlog"
	"github.com/roylkng/genai-vectors/stats"
)

var configPath string

func init() {
	flag.StringVar(&configPath, "config", "", "path to the process YAML config file")
}

func main() {
	flag.Parse()

	cfg, err := loadConfig(configPath)
	if err != nil {
		nlog.Errorf("vecstore: failed to load config: %v", err)
		os.Exit(1)
	}

	adapter := cfg.newAdapter()
	svc := newService(cfg, adapter)

	ctx, cancel := context.WithCancel(context.Background())
	installSignalHandler(cancel)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", stats.Handler())
		if err := http.ListenAndServe(cfg.HealthAddr, mux); err != nil {
			nlog.Warningf("vecstore: metrics server stopped: %v", err)
		}
	}()

	go func() {
		ticker := time.NewTicker(cfg.sweepInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				svc.buffer.FlushAgedOut(ctx)
			}
		}
	}()

	nlog.Infof("vecstore: starting housekeeping sweep every %s", cfg.sweepInterval())
	svc.coordinator.Run(ctx, cfg.sweepInterval())
	nlog.Infof("vecstore: shutting down")
}

func installSignalHandler(cancel context.CancelFunc) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-c
		fmt.Fprintf(os.Stderr, "vecstore: received %s, shutting down\n", sig)
		cancel()
	}()
}

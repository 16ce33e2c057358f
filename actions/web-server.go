package actions

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/relloyd/stagesync/logger"
	"github.com/relloyd/stagesync/stats"
)

const (
	urlContextTrigger = "/runs/trigger"
	shutdownTimeout   = 15 * time.Second
)

type WebServerConfig struct {
	Log          logger.Logger
	Addr         string
	Port         int
	Interval     time.Duration // zero disables scheduled runs
	Entities     []string      // empty means every enabled entity
	Synchronizer *Synchronizer
	Metrics      *stats.Metrics
}

// RunWebServer serves the status endpoints and runs the sync every Interval until ctx is done,
// the process is interrupted or a stop is requested.
func RunWebServer(ctx context.Context, web *WebServerConfig) error {
	if web == nil || web.Log == nil || web.Synchronizer == nil {
		return errors.New("web server needs a logger and a synchronizer")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg sync.WaitGroup
	srv := &http.Server{
		Addr:         fmt.Sprintf("%v:%v", web.Addr, web.Port),
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
		Handler:      NewRouter(ctx, web.Log, web.Synchronizer, web.Metrics, &wg),
	}
	chanErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			chanErr <- err
		}
	}()
	web.Log.Info("Listening on http://", srv.Addr)
	if web.Interval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runEvery(ctx, web.Log, web.Interval, func() {
				_, _ = web.Synchronizer.Run(ctx, web.Entities...) // failures are in the report and logs.
			})
		}()
	}
	return waitForServer(ctx, web.Log, srv, cancel, &wg, chanErr)
}

// NewRouter returns the routes of the status server.
// Triggered runs use ctx and are tracked by wg.
func NewRouter(ctx context.Context, log logger.Logger, s *Synchronizer, metrics *stats.Metrics, wg *sync.WaitGroup) *mux.Router {
	r := mux.NewRouter()
	r.Path("/health").HandlerFunc(GetHandlerHealth(log))
	r.Path("/status").HandlerFunc(GetHandlerStatus(log, s))
	r.Path("/runs/last").HandlerFunc(GetHandlerLastRun(log, s))
	r.Path(urlContextTrigger).Methods(http.MethodPost).HandlerFunc(GetHandlerTrigger(ctx, log, s, wg))
	if metrics != nil {
		r.Path("/metrics").Handler(promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
	}
	return r
}

// runEvery calls fn now and then every interval until ctx is done.
func runEvery(ctx context.Context, log logger.Logger, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		fn()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Debug("Scheduled run starting")
		}
	}
}

func waitForServer(ctx context.Context, log logger.Logger, srv *http.Server, cancel context.CancelFunc, wg *sync.WaitGroup, chanErr chan error) (err error) {
	// Accept graceful shutdowns on SIGINT and SIGTERM.
	chanOS := make(chan os.Signal, 1)
	signal.Notify(chanOS, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(chanOS)
	select {
	case <-ctx.Done():
	case <-chanOS:
	case err = <-chanErr:
	}
	log.Info("Shutting down web server...")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if e := srv.Shutdown(shutdownCtx); e != nil && err == nil {
		err = e
	}
	// No handler can start a run now.
	cancel()
	wg.Wait()
	return err
}

package main

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/herlein/rfsignal/pkg/memory"
	"github.com/herlein/rfsignal/pkg/metrics"
	"github.com/herlein/rfsignal/pkg/processor"
	"github.com/herlein/rfsignal/pkg/transmit"
)

// pipeline wires the sample pool, transmitter and processor for one radio
type pipeline struct {
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	mem      *memory.Manager
	tx       *transmit.Transmitter
	proc     *processor.Processor
}

// newPipeline builds the components from the loaded configuration. radio may
// be nil for offline analysis.
func newPipeline(radio transmit.Radio) (*pipeline, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	m := metrics.New(reg)

	mem, err := memory.NewManager(cfg.MemoryConfig(), log, m)
	if err != nil {
		return nil, err
	}

	pl := &pipeline{registry: reg, metrics: m, mem: mem}

	var tx processor.Transmitter
	if radio != nil {
		pl.tx, err = transmit.New(cfg.TransmitConfig(), radio, mem, log, m)
		if err != nil {
			return nil, err
		}
		tx = pl.tx
	}

	pl.proc, err = processor.New(cfg.ProcessorConfig(), mem, tx, log, m)
	if err != nil {
		return nil, err
	}
	if err := pl.proc.Init(); err != nil {
		return nil, err
	}
	return pl, nil
}

func (pl *pipeline) Close() {
	pl.proc.Cleanup()
}

// serveMetrics exposes the registry until ctx is done. An empty listen
// address disables the server.
func (pl *pipeline) serveMetrics(ctx context.Context, listen string) error {
	if listen == "" {
		<-ctx.Done()
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(pl.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.WithField("listen", listen).Info("serving metrics")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return errors.Wrap(err, "metrics server")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// Package metrics exposes the daemon's internal counters as Prometheus
// collectors: container counts by state, event queue depth, and respawn
// totals.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bowlofstew/porto/pkg/plog"
	"github.com/bowlofstew/porto/pkg/tree"
)

var log = plog.For("metrics")

// QueueDepther is satisfied by *events.Queue; kept as a narrow interface so
// this package does not import pkg/events just for one method.
type QueueDepther interface {
	Len() int
}

// StateCounter is satisfied by *tree.Tree.
type StateCounter interface {
	CountByState() map[tree.State]int
}

// Collector is a prometheus.Collector that reads container counts and
// queue depth on every scrape rather than caching them, mirroring the
// teacher's own pull-based exporter pattern: Describe/Collect never block
// on anything the daemon's own request path holds.
type Collector struct {
	tree  StateCounter
	queue QueueDepther

	containersDesc *prometheus.Desc
	queueDepthDesc *prometheus.Desc
	respawnsDesc   *prometheus.Desc

	respawns *prometheus.CounterVec
}

// NewCollector builds a Collector pulling live counts from t and q.
func NewCollector(t StateCounter, q QueueDepther) *Collector {
	return &Collector{
		tree:  t,
		queue: q,
		containersDesc: prometheus.NewDesc(
			"porto_containers", "Number of containers by state.",
			[]string{"state"}, nil),
		queueDepthDesc: prometheus.NewDesc(
			"porto_event_queue_depth", "Number of pending events in the queue.",
			nil, nil),
		respawns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "porto_respawns_total",
			Help: "Total number of container respawns, labeled by container name.",
		}, []string{"container"}),
	}
}

// RecordRespawn bumps the respawn counter for name; called from the
// daemon's event handler right after tree.Respawn succeeds.
func (c *Collector) RecordRespawn(name string) {
	c.respawns.WithLabelValues(name).Inc()
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.containersDesc
	ch <- c.queueDepthDesc
	c.respawns.Describe(ch)
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for state, n := range c.tree.CountByState() {
		ch <- prometheus.MustNewConstMetric(c.containersDesc, prometheus.GaugeValue, float64(n), state.String())
	}
	ch <- prometheus.MustNewConstMetric(c.queueDepthDesc, prometheus.GaugeValue, float64(c.queue.Len()))
	c.respawns.Collect(ch)
}

// Serve starts a /metrics HTTP server on addr and blocks until ctx is
// cancelled, at which point the server is shut down.
func Serve(ctx context.Context, addr string, c *Collector) error {
	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		log.Info("shutting down metrics server")
		return srv.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}

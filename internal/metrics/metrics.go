// Package metrics exposes launchpad activity as Prometheus metrics.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rovshanmuradov/fairlaunch/internal/events"
)

const namespace = "fairlaunch"

// Metrics holds all Prometheus metrics for the daemon.
type Metrics struct {
	registry *prometheus.Registry

	TradesTotal      *prometheus.CounterVec
	VolumeLamports   *prometheus.CounterVec
	FeesTotal        *prometheus.CounterVec
	CurvesLaunched   prometheus.Counter
	CurvesCompleted  prometheus.Counter
	ConfigVersion    prometheus.Gauge
	ActualReserves   *prometheus.GaugeVec
	SwapRejections   *prometheus.CounterVec
	EventHandleError prometheus.Counter
}

// New creates the metrics on a private registry, adding Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		TradesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "swap",
			Name:      "trades_total",
			Help:      "Executed trades by direction",
		}, []string{"direction"}),
		VolumeLamports: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "swap",
			Name:      "volume_lamports_total",
			Help:      "Lamports paid in by buys and out by sells",
		}, []string{"direction"}),
		FeesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "swap",
			Name:      "fees_total",
			Help:      "Fees collected; lamports for buys, tokens for sells",
		}, []string{"direction"}),
		SwapRejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "swap",
			Name:      "rejections_total",
			Help:      "Swaps rejected before settlement by reason",
		}, []string{"reason"}),
		CurvesLaunched: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "curve",
			Name:      "launched_total",
			Help:      "Curves launched",
		}),
		CurvesCompleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "curve",
			Name:      "completed_total",
			Help:      "Curves that reached the completion threshold",
		}),
		ActualReserves: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "curve",
			Name:      "actual_lamport_reserves",
			Help:      "Lamports actually held by each curve",
		}, []string{"mint"}),
		ConfigVersion: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "config",
			Name:      "version",
			Help:      "Version of the active global config",
		}),
		EventHandleError: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "unexpected_total",
			Help:      "Events the metrics handler could not interpret",
		}),
	}
}

// Registry returns the registry holding every metric.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// WatchBus exports the bus queue depth and delivery counters.
func (m *Metrics) WatchBus(b *events.Bus) {
	f := promauto.With(m.registry)
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "pending",
		Help:      "Events queued on the bus",
	}, func() float64 { return float64(b.Stats().Pending) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "dropped_total",
		Help:      "Events dropped because the bus queue was full",
	}, func() float64 { return float64(b.Stats().Dropped) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "handler_failures_total",
		Help:      "Handler calls that returned an error",
	}, func() float64 { return float64(b.Stats().Failed) })
}

// Attach subscribes the metrics to every launchpad event.
func (m *Metrics) Attach(b *events.Bus) events.Subscription {
	return events.SubscribeAll(b, events.AllTypes, m)
}

// Handle updates the metrics from one event.
func (m *Metrics) Handle(_ context.Context, e events.Event) error {
	switch ev := e.(type) {
	case events.ConfigUpdatedEvent:
		m.ConfigVersion.Set(float64(ev.Config.Version))
	case events.CurveLaunchedEvent:
		m.CurvesLaunched.Inc()
		m.ActualReserves.WithLabelValues(ev.Curve.Mint.String()).Set(float64(ev.Curve.ActualLamportReserves))
	case events.TradeExecutedEvent:
		t := ev.Trade
		direction, lamports := "sell", t.AmountOut
		if t.IsBuy {
			direction, lamports = "buy", t.AmountIn
		}
		m.TradesTotal.WithLabelValues(direction).Inc()
		m.VolumeLamports.WithLabelValues(direction).Add(float64(lamports))
		m.FeesTotal.WithLabelValues(direction).Add(float64(t.Fee))
		m.ActualReserves.WithLabelValues(t.Mint.String()).Set(float64(t.ActualLamportReserves))
	case events.CurveCompletedEvent:
		m.CurvesCompleted.Inc()
	default:
		m.EventHandleError.Inc()
		return fmt.Errorf("unexpected event %T", e)
	}
	return nil
}

// Rejected counts a swap rejected for reason.
func (m *Metrics) Rejected(reason string) {
	m.SwapRejections.WithLabelValues(reason).Inc()
}

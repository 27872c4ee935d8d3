// internal/metrics/collector.go
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rovshanmuradov/fairlaunch/internal/events"
	"github.com/rovshanmuradov/fairlaunch/internal/pricing"
)

const namespace = "fairlaunch"

// Collector переводит события пулов в метрики Prometheus.
type Collector struct {
	registry *prometheus.Registry

	operations   *prometheus.CounterVec
	swapVolume   *prometheus.CounterVec
	reserves     *prometheus.GaugeVec
	lpShares     *prometheus.CounterVec
	migrations   prometheus.Counter
	migratedBase prometheus.Counter
	duration     *prometheus.HistogramVec
}

// NewCollector создает коллектор с собственным реестром.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Pool operations by outcome",
			},
			[]string{"operation", "status"},
		),
		swapVolume: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "swap_input_total",
				Help:      "Swap input amount in raw units",
			},
			[]string{"direction"},
		),
		reserves: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pool_reserve",
				Help:      "Current pool reserves in raw units",
			},
			[]string{"mint", "asset"},
		),
		lpShares: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lp_shares_minted_total",
				Help:      "LP shares minted per pool",
			},
			[]string{"mint"},
		),
		migrations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migrations_total",
			Help:      "Pools migrated to the AMM",
		}),
		migratedBase: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migrated_base_total",
			Help:      "Base amount seeded into AMM pools",
		}),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Operation duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
			},
			[]string{"operation"},
		),
	}
	c.registry.MustRegister(
		c.operations,
		c.swapVolume,
		c.reserves,
		c.lpShares,
		c.migrations,
		c.migratedBase,
		c.duration,
	)
	return c
}

// Registry returns the registry the collector writes to.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Attach subscribes the collector to every pool event of the bus.
func (c *Collector) Attach(bus *events.Bus) []events.Subscription {
	types := []events.EventType{
		events.PoolInitialized,
		events.LiquidityAdded,
		events.Swapped,
		events.Migrated,
		events.OperationFailed,
	}
	subs := make([]events.Subscription, 0, len(types))
	for _, typ := range types {
		subs = append(subs, bus.Subscribe(typ, c))
	}
	return subs
}

// Handle implements events.Handler.
func (c *Collector) Handle(_ context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.PoolInitializedEvent:
		c.operations.WithLabelValues("initialize_pool", "success").Inc()
		c.setReserves(e.Mint.String(), 0, 0)
	case events.LiquidityAddedEvent:
		c.operations.WithLabelValues("add_liquidity", "success").Inc()
		c.lpShares.WithLabelValues(e.Mint.String()).Add(float64(e.Shares))
		c.setReserves(e.Mint.String(), e.ReserveToken, e.ReserveBase)
	case events.SwappedEvent:
		direction, err := pricing.ParseDirection(e.Style)
		if err != nil {
			return fmt.Errorf("swap event for %s: %w", e.Mint, err)
		}
		c.operations.WithLabelValues("swap", "success").Inc()
		c.swapVolume.WithLabelValues(direction.String()).Add(float64(e.AmountIn))
		c.setReserves(e.Mint.String(), e.ReserveToken, e.ReserveBase)
	case events.MigratedEvent:
		c.operations.WithLabelValues("migrate", "success").Inc()
		c.migrations.Inc()
		c.migratedBase.Add(float64(e.InitBaseAmount))
		c.setReserves(e.Mint.String(), 0, 0)
	case events.OperationFailedEvent:
		c.operations.WithLabelValues(e.Operation, e.Kind).Inc()
	}
	return nil
}

// ObserveDuration records how long an operation took.
func (c *Collector) ObserveDuration(operation string, d time.Duration) {
	c.duration.WithLabelValues(operation).Observe(d.Seconds())
}

func (c *Collector) setReserves(mint string, token, base uint64) {
	c.reserves.WithLabelValues(mint, "token").Set(float64(token))
	c.reserves.WithLabelValues(mint, "base").Set(float64(base))
}

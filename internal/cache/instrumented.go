package cache

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/firi193/lucid/internal/domain"
)

// Instrumented decorates a PostCache with Prometheus counters.
type Instrumented struct {
	next PostCache

	lookups       *prometheus.CounterVec
	fills         *prometheus.CounterVec
	invalidations prometheus.Counter
	failures      *prometheus.CounterVec
}

var _ PostCache = (*Instrumented)(nil)

// NewInstrumented wraps next and registers its collectors with reg. Collectors that are
// already registered are reused.
func NewInstrumented(next PostCache, reg prometheus.Registerer, backend string) *Instrumented {
	constLabels := prometheus.Labels{"backend": backend}
	c := &Instrumented{
		next: next,
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "lucid",
			Subsystem:   "cache",
			Name:        "lookups_total",
			Help:        "Post cache reads by result.",
			ConstLabels: constLabels,
		}, []string{"result"}),
		fills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "lucid",
			Subsystem:   "cache",
			Name:        "fills_total",
			Help:        "Post cache fills by outcome.",
			ConstLabels: constLabels,
		}, []string{"result"}),
		invalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "lucid",
			Subsystem:   "cache",
			Name:        "invalidations_total",
			Help:        "Post cache invalidations.",
			ConstLabels: constLabels,
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "lucid",
			Subsystem:   "cache",
			Name:        "errors_total",
			Help:        "Post cache backend errors by operation.",
			ConstLabels: constLabels,
		}, []string{"op"}),
	}
	if reg != nil {
		c.lookups = registerCounterVec(reg, c.lookups)
		c.fills = registerCounterVec(reg, c.fills)
		c.failures = registerCounterVec(reg, c.failures)
		c.invalidations = registerCounter(reg, c.invalidations)
	}
	return c
}

// Get implements PostCache.
func (c *Instrumented) Get(ctx context.Context, ownerID string) (Lookup, error) {
	lookup, err := c.next.Get(ctx, ownerID)
	switch {
	case err != nil:
		c.failures.WithLabelValues("get").Inc()
	case lookup.Hit:
		c.lookups.WithLabelValues("hit").Inc()
	default:
		c.lookups.WithLabelValues("miss").Inc()
	}
	return lookup, err
}

// Put implements PostCache.
func (c *Instrumented) Put(ctx context.Context, ownerID string, posts []domain.Post) error {
	err := c.next.Put(ctx, ownerID, posts)
	if err != nil {
		c.failures.WithLabelValues("put").Inc()
	}
	return err
}

// Fill implements PostCache.
func (c *Instrumented) Fill(ctx context.Context, ownerID string, version uint64, posts []domain.Post) (bool, error) {
	installed, err := c.next.Fill(ctx, ownerID, version, posts)
	switch {
	case err != nil:
		c.failures.WithLabelValues("fill").Inc()
	case installed:
		c.fills.WithLabelValues("installed").Inc()
	default:
		c.fills.WithLabelValues("stale").Inc()
	}
	return installed, err
}

// Invalidate implements PostCache.
func (c *Instrumented) Invalidate(ctx context.Context, ownerID string) error {
	err := c.next.Invalidate(ctx, ownerID)
	if err != nil {
		c.failures.WithLabelValues("invalidate").Inc()
		return err
	}
	c.invalidations.Inc()
	return nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec) *prometheus.CounterVec {
	if err := reg.Register(vec); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return vec
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter) prometheus.Counter {
	if err := reg.Register(counter); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing
			}
		}
	}
	return counter
}

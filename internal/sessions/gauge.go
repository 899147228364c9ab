package sessions

import (
	"fmt"

	"github.com/reviewstudio/studio/pkg/models"
)

const (
	// DefaultCapacity is the mana a new session starts with.
	DefaultCapacity = 100
	// DefaultStepCost is the mana one generation call consumes.
	DefaultStepCost = 20
)

// Gauge is the per-session resource budget. It is not safe for concurrent
// use on its own; the owning session's lock serialises access.
type Gauge struct {
	level    int
	capacity int
}

// NewGauge returns a full gauge.
func NewGauge(capacity int) *Gauge {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Gauge{level: capacity, capacity: capacity}
}

func (g *Gauge) Level() int    { return g.level }
func (g *Gauge) Capacity() int { return g.capacity }

// CanAfford reports whether cost units are available.
func (g *Gauge) CanAfford(cost int) bool { return g.level >= cost }

// Check fails with models.ErrResourceExhausted when fewer than cost units remain.
// It never changes the level.
func (g *Gauge) Check(cost int) error {
	if !g.CanAfford(cost) {
		return fmt.Errorf("%w: need %d, have %d", models.ErrResourceExhausted, cost, g.level)
	}
	return nil
}

// Consume checks and then deducts cost units.
func (g *Gauge) Consume(cost int) error {
	if err := g.Check(cost); err != nil {
		return err
	}
	g.level -= cost
	return nil
}

// Set moves the level, clamped to [0, capacity].
func (g *Gauge) Set(level int) {
	switch {
	case level < 0:
		level = 0
	case level > g.capacity:
		level = g.capacity
	}
	g.level = level
}

// Refill restores the gauge to capacity.
func (g *Gauge) Refill() { g.level = g.capacity }

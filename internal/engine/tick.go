// Package engine drives the winery simulation: the weekly clock, the cellar
// orchestrator, and the tick/event integrators that move wine features
// through risk, manifestation, and effect composition.
package engine

import (
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"
)

// TickSchedule: one tick is one simulation week.
const (
	WeeksPerSeason = 13
	WeeksPerYear   = 52
)

// Engine advances the simulation clock. Speed and the running flag are
// written from the API and signal goroutines while the run loop reads
// them, so both live behind atomics.
type Engine struct {
	Week     uint64        // Current week counter (monotonic, never resets)
	Interval time.Duration // Base tick interval (default 2 seconds)

	speed   atomic.Uint64 // float64 bits; multiplier, 1.0 = real-time, 0 = paused
	running atomic.Bool

	// Callbacks for each tick layer — populated during setup.
	OnWeek   func(week uint64) // Every tick (sim-week)
	OnSeason func(week uint64) // Every 13 weeks
	OnYear   func(week uint64) // Every 52 weeks
}

// NewEngine creates a simulation engine with default settings.
func NewEngine() *Engine {
	e := &Engine{
		Week:     0,
		Interval: 2 * time.Second,
	}
	e.SetSpeed(1.0)
	return e
}

// Speed returns the current tick-rate multiplier.
func (e *Engine) Speed() float64 {
	return math.Float64frombits(e.speed.Load())
}

// SetSpeed changes the tick-rate multiplier. Safe to call while running.
func (e *Engine) SetSpeed(v float64) {
	e.speed.Store(math.Float64bits(v))
}

// Running reports whether the run loop is active.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Run starts the simulation loop. Blocks until Stop() is called.
func (e *Engine) Run() {
	e.running.Store(true)
	slog.Info("simulation engine started", "week", e.Week, "speed", e.Speed())

	for e.running.Load() {
		speed := e.Speed()
		if speed <= 0 {
			// Paused — sleep briefly and check again.
			time.Sleep(100 * time.Millisecond)
			continue
		}

		start := time.Now()

		e.step()

		// Sleep for the remainder of the tick interval, adjusted for speed.
		elapsed := time.Since(start)
		target := time.Duration(float64(e.Interval) / speed)
		if elapsed < target {
			time.Sleep(target - elapsed)
		}
	}

	slog.Info("simulation engine stopped", "week", e.Week)
}

// Stop halts the simulation loop.
func (e *Engine) Stop() {
	e.running.Store(false)
}

// step advances the simulation by one week.
func (e *Engine) step() {
	e.Week++

	if e.OnWeek != nil {
		e.OnWeek(e.Week)
	}

	if e.Week%WeeksPerSeason == 0 && e.OnSeason != nil {
		e.OnSeason(e.Week)
	}

	if e.Week%WeeksPerYear == 0 && e.OnYear != nil {
		e.OnYear(e.Week)
	}
}

// Season constants.
const (
	SeasonSpring = 0
	SeasonSummer = 1
	SeasonAutumn = 2
	SeasonWinter = 3
)

// SeasonOf returns the season a week falls in.
func SeasonOf(week uint64) uint8 {
	return uint8((week / WeeksPerSeason) % 4)
}

// SeasonName returns a human-readable season name.
func SeasonName(season uint8) string {
	switch season {
	case SeasonSpring:
		return "Spring"
	case SeasonSummer:
		return "Summer"
	case SeasonAutumn:
		return "Autumn"
	case SeasonWinter:
		return "Winter"
	default:
		return "Unknown"
	}
}

// SimTime returns a human-readable simulation time string from a week number.
func SimTime(week uint64) string {
	year := week/WeeksPerYear + 1
	weekOfSeason := week%WeeksPerSeason + 1
	return fmt.Sprintf("%s Week %d, Year %d", SeasonName(SeasonOf(week)), weekOfSeason, year)
}

// Package autoplay advances the simulated clock on a wall-clock schedule.
package autoplay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/hochfrequenz/scenario-sim/internal/observability"
	"github.com/hochfrequenz/scenario-sim/internal/timeline"
)

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseCron parses a five or six field cron expression or a descriptor
// such as "@every 30s"
func ParseCron(expr string) (cron.Schedule, error) {
	return parser.Parse(expr)
}

// Config controls the runner
type Config struct {
	Cron        string
	DaysPerStep int
}

// Validate checks the expression and fills defaults
func (c *Config) Validate() error {
	if c.Cron == "" {
		return fmt.Errorf("autoplay cron expression is required")
	}
	if _, err := ParseCron(c.Cron); err != nil {
		return fmt.Errorf("invalid autoplay cron expression: %w", err)
	}
	if c.DaysPerStep <= 0 {
		c.DaysPerStep = 1
	}
	return nil
}

// Clock is the part of the engine the runner drives
type Clock interface {
	Tick(ctx context.Context, days int) (timeline.Advance, error)
}

// Runner ticks the clock each time its schedule fires. A paused clock turns
// each firing into a no-op.
type Runner struct {
	clock    Clock
	schedule cron.Schedule
	days     int
	log      *slog.Logger

	mu    sync.Mutex
	steps int
}

// New validates cfg and creates a Runner
func New(clock Clock, cfg Config, logger *slog.Logger) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	schedule, _ := ParseCron(cfg.Cron)
	return &Runner{
		clock:    clock,
		schedule: schedule,
		days:     cfg.DaysPerStep,
		log:      observability.For(logger, observability.ChannelSystem),
	}, nil
}

// Step performs one scheduled advance
func (r *Runner) Step(ctx context.Context) {
	adv, err := r.clock.Tick(ctx, r.days)
	if err != nil {
		r.log.Error("Autoplay tick failed", "error", err)
		return
	}
	if !adv.Applied {
		return
	}

	r.mu.Lock()
	r.steps++
	r.mu.Unlock()
	r.log.Debug("Autoplay advanced", "from", adv.From.String(), "to", adv.To.String())
}

// Steps reports how many firings advanced the clock
func (r *Runner) Steps() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.steps
}

// Run fires the schedule until ctx is cancelled, then waits for an
// in-flight step to finish.
func (r *Runner) Run(ctx context.Context) error {
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(r.schedule, cron.FuncJob(func() { r.Step(ctx) }))
	c.Start()
	r.log.Info("Autoplay started", "days_per_step", r.days)

	<-ctx.Done()
	<-c.Stop().Done()
	r.log.Info("Autoplay stopped", "steps", r.Steps())
	return nil
}

package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultReflectionInterval is how often the scheduler polls the
// reflection trigger.
const DefaultReflectionInterval = 5 * time.Minute

// SchedulerConfig overrides the scheduler's timer periods and agent scope.
// Zero values fall back to the defaults; tests shrink the intervals.
type SchedulerConfig struct {
	ReflectionInterval    time.Duration
	ConsolidationInterval time.Duration
	AgentID               string
}

// Scheduler runs the engine's background maintenance on two independent
// timers: a reflection check and a consolidation pass. Work errors are
// logged and never stop the timers.
type Scheduler struct {
	engine *Engine
	logger *slog.Logger

	reflectionInterval    time.Duration
	consolidationInterval time.Duration
	agentID               string

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewScheduler builds a scheduler around the engine. The consolidation
// period defaults to the engine's configured interval.
func NewScheduler(engine *Engine, cfg SchedulerConfig) *Scheduler {
	if cfg.ReflectionInterval <= 0 {
		cfg.ReflectionInterval = DefaultReflectionInterval
	}
	if cfg.ConsolidationInterval <= 0 {
		cfg.ConsolidationInterval = engine.cfg.ConsolidationInterval
	}
	if cfg.AgentID == "" {
		cfg.AgentID = DefaultAgentID
	}
	return &Scheduler{
		engine:                engine,
		logger:                engine.logger.With("component", "scheduler"),
		reflectionInterval:    cfg.ReflectionInterval,
		consolidationInterval: cfg.ConsolidationInterval,
		agentID:               cfg.AgentID,
	}
}

// Start launches both timers. Starting a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	s.wg.Add(2)
	go s.reflectionLoop(ctx)
	go s.consolidationLoop(ctx)

	s.logger.Info("scheduler started",
		"reflection_interval", s.reflectionInterval,
		"consolidation_interval", s.consolidationInterval,
		"agent_id", s.agentID)
}

// Stop cancels both timers and waits for in-flight work to return. Safe to
// call before Start and safe to call twice.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// Running reports whether the timers are active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) reflectionLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.reflectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkReflection(ctx)
		}
	}
}

func (s *Scheduler) checkReflection(ctx context.Context) {
	due, err := s.engine.ShouldReflect(ctx, s.agentID)
	if err != nil {
		s.logger.Error("reflection check failed", "error", err)
		return
	}
	if !due {
		return
	}
	reflections, err := s.engine.Reflect(ctx, s.agentID, false)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.logger.Error("reflection failed", "agent_id", s.agentID, "error", err)
		return
	}
	if len(reflections) > 0 {
		s.logger.Info("background reflection produced insights",
			"agent_id", s.agentID, "count", len(reflections))
	}
}

func (s *Scheduler) consolidationLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.consolidationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runConsolidation(ctx)
		}
	}
}

func (s *Scheduler) runConsolidation(ctx context.Context) {
	if _, err := s.engine.Consolidate(ctx, 0); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.logger.Error("background consolidation failed", "error", err)
	}
}

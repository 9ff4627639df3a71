package cron

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/dotsetgreg/dotmod/pkg/logger"
)

var ErrInvalidSchedule = errors.New("invalid cron expression")

// JobFunc is invoked at every tick of its schedule.
type JobFunc func(ctx context.Context, now time.Time)

type job struct {
	name string
	expr string
	fn   JobFunc
}

// Service runs housekeeping jobs (memory sweeps, audit retention) on cron
// schedules. Each job gets its own goroutine; a slow run delays only that job.
type Service struct {
	mu      sync.Mutex
	jobs    []job
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

func NewService() *Service {
	return &Service{}
}

// Validate reports whether expr is a cron expression gronx understands.
func Validate(expr string) error {
	if strings.TrimSpace(expr) == "" || !gronx.New().IsValid(expr) {
		return fmt.Errorf("%w: %q", ErrInvalidSchedule, expr)
	}
	return nil
}

// NextRun returns the first tick of expr strictly after t.
func NextRun(expr string, t time.Time) (time.Time, error) {
	if err := Validate(expr); err != nil {
		return time.Time{}, err
	}
	next, err := gronx.NextTickAfter(expr, t, false)
	if err != nil {
		return time.Time{}, fmt.Errorf("next tick for %q: %w", expr, err)
	}
	return next, nil
}

// AddJob registers fn under name. Jobs added after Start are not scheduled.
func (s *Service) AddJob(name, expr string, fn JobFunc) error {
	if err := Validate(expr); err != nil {
		return err
	}
	if fn == nil {
		return fmt.Errorf("cron job %s: nil func", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job{name: name, expr: expr, fn: fn})
	return nil
}

func (s *Service) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.name+" ("+j.expr+")")
	}
	return out
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.loop(runCtx, j)
	}
	logger.InfoCF("cron", "Cron service started", map[string]any{"jobs": len(s.jobs)})
	return nil
}

func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	logger.InfoC("cron", "Cron service stopped")
}

func (s *Service) loop(ctx context.Context, j job) {
	defer s.wg.Done()
	for {
		next, err := NextRun(j.expr, time.Now())
		if err != nil {
			logger.ErrorCF("cron", "Cannot schedule job", map[string]any{"job": j.name, "error": err.Error()})
			return
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case now := <-timer.C:
			s.run(ctx, j, now)
		}
	}
}

func (s *Service) run(ctx context.Context, j job, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("cron", "Job panicked", map[string]any{"job": j.name, "panic": fmt.Sprint(r)})
		}
	}()
	started := time.Now()
	j.fn(ctx, now)
	logger.DebugCF("cron", "Job finished", map[string]any{
		"job":         j.name,
		"duration_ms": time.Since(started).Milliseconds(),
	})
}

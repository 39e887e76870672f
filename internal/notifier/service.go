package notifier

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"skeddy/internal/reminder"
	rtsup "skeddy/internal/runtime/supervisor"
	kit "skeddy/internal/transport"
	logx "skeddy/pkg/logx"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

type job struct {
	id   string
	r    reminder.Reminder
	done func(error)
}

// pipeline is the worker pool of one Start/Stop cycle.
type pipeline struct {
	queue chan job
	sup   *rtsup.Supervisor
	// enqueuing counts Dispatch calls that passed admission but have not
	// pushed yet; the queue is closed only once it drops to zero.
	enqueuing sync.WaitGroup
}

// Service delivers due reminders from a bounded queue through a small worker
// pool, rate limited and retried. It is safe for concurrent use.
type Service struct {
	log    logx.Logger
	sender kit.Sender
	format Formatter

	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
	live    *pipeline
}

var _ reminder.Dispatcher = (*Service)(nil)

// New builds a stopped service. A nil sender makes every dispatch fail with
// ErrDisabled.
func New(cfg Config, sender kit.Sender, format Formatter, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if format == nil {
		format = PlainFormatter
	}
	s := &Service{sender: sender, format: format, log: log}
	s.Apply(cfg)
	return s
}

func withDefaults(cfg Config) Config {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 512
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 20
	}
	cfg.RetryMax = max(cfg.RetryMax, 0)
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	return cfg
}

// Apply swaps tuning at runtime. Workers and QueueSize apply from the next
// Start.
func (s *Service) Apply(cfg Config) {
	cfg = withDefaults(cfg)
	// One second worth of burst lets a tick with many due reminders go out
	// without waiting on the bucket.
	lim := rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	s.mu.Lock()
	s.cfg, s.limiter = cfg, lim
	s.mu.Unlock()
}

// Config returns the effective configuration.
func (s *Service) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// QueueLen reports jobs waiting for a worker.
func (s *Service) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live == nil {
		return 0
	}
	return len(s.live.queue)
}

// Start launches the workers. It is a no-op while already running.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live != nil {
		return
	}
	p := &pipeline{
		queue: make(chan job, s.cfg.QueueSize),
		sup:   rtsup.NewSupervisor(ctx, rtsup.WithLogger(s.log), rtsup.WithCancelOnError(false)),
	}
	s.live = p
	for i := range s.cfg.Workers {
		// A worker returns once the queue is closed or ctx ends; only a
		// panic brings it back.
		p.sup.GoRestart(fmt.Sprintf("notifier.worker.%d", i), func(c context.Context) error {
			s.work(c, p.queue)
			return nil
		}, rtsup.WithPublishFirstError(true))
	}
	s.log.Info("notifier started", logx.Int("workers", s.cfg.Workers), logx.Int("queue", s.cfg.QueueSize))
}

// Stop refuses new dispatches and lets the workers drain the queue until ctx
// is done. In-flight sends are then cancelled and jobs still queued fail with
// ErrStopped. Every accepted job has its outcome reported before Stop returns.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	p := s.live
	s.live = nil
	s.mu.Unlock()
	if p == nil {
		return
	}

	p.enqueuing.Wait()
	close(p.queue)
	if err := p.sup.Wait(ctx); err != nil && ctx.Err() != nil {
		s.log.Warn("notifier drain cut short", logx.Int("left", len(p.queue)), logx.Err(err))
		p.sup.Cancel()
		_ = p.sup.Wait(context.Background())
	}
	for j := range p.queue {
		j.done(ErrStopped)
	}
	s.log.Info("notifier stopped")
}

// Dispatch enqueues r for delivery. It never blocks on the transport; done
// receives the outcome exactly once, synchronously when the job is refused.
func (s *Service) Dispatch(ctx context.Context, r reminder.Reminder, done func(error)) {
	if done == nil {
		done = func(error) {}
	}
	if ctx != nil && ctx.Err() != nil {
		done(ctx.Err())
		return
	}
	p, err := s.admit()
	if err != nil {
		done(err)
		return
	}
	defer p.enqueuing.Done()

	j := job{id: uuid.NewString(), r: r, done: done}
	select {
	case p.queue <- j:
		s.log.Debug("reminder queued", logx.String("job", j.id), logx.String("id", r.ID))
	default:
		s.log.Warn("reminder dropped", logx.String("id", r.ID), logx.Int("queue", cap(p.queue)))
		done(ErrQueueFull)
	}
}

func (s *Service) admit() (*pipeline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.sender == nil:
		return nil, ErrDisabled
	case s.live == nil:
		return nil, ErrStopped
	}
	s.live.enqueuing.Add(1)
	return s.live, nil
}

func (s *Service) work(ctx context.Context, q <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			j.done(s.deliver(ctx, j))
		}
	}
}

// deliver sends one reminder, retrying up to RetryMax times.
func (s *Service) deliver(ctx context.Context, j job) error {
	s.mu.Lock()
	cfg, lim := s.cfg, s.limiter
	s.mu.Unlock()

	log := s.log.With(logx.String("job", j.id), logx.String("id", j.r.ID), logx.Int64("owner", j.r.Owner))
	text, opt := s.format(j.r)
	to := kit.ChatTarget{ChatID: j.r.Owner}

	for attempt := 1; ; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return err
		}
		sendCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		_, err := s.sender.SendText(sendCtx, to, text, opt)
		cancel()
		if err == nil {
			log.Debug("reminder delivered", logx.Int("attempt", attempt))
			return nil
		}
		if attempt > cfg.RetryMax {
			log.Debug("reminder send gave up", logx.Int("attempts", attempt), logx.Err(err))
			return err
		}
		wait := backoff(cfg, attempt)
		log.Debug("reminder send failed", logx.Int("attempt", attempt), logx.Duration("retry_in", wait), logx.Err(err))
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// backoff is the pause after the given failed attempt: RetryBase doubled per
// attempt, jittered by ±30% and capped at RetryMaxDelay.
func backoff(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt && d < cfg.RetryMaxDelay; i++ {
		d *= 2
	}
	d = time.Duration(float64(d) * (0.7 + 0.6*rand.Float64()))
	return min(d, cfg.RetryMaxDelay)
}

package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is one periodic task. Run receives the scheduler's base context,
// which is cancelled on Stop.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler drives the background jobs on fixed intervals. A tick that
// fires while the previous run of the same job is still going is skipped,
// so a slow scan never overlaps itself.
type Scheduler struct {
	cron   *cron.Cron
	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
}

func New(log zerolog.Logger) *Scheduler {
	s := &Scheduler{log: log.With().Str("component", "scheduler").Logger()}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.cron = cron.New(cron.WithChain(
		cron.Recover(cronLogger{s.log}),
		cron.SkipIfStillRunning(cronLogger{s.log}),
	))
	return s
}

// Register adds a job at its interval. Job errors are logged, not fatal;
// the job stays scheduled for the next tick.
func (s *Scheduler) Register(job Job) error {
	if job.Name == "" {
		return fmt.Errorf("job name is required")
	}
	if job.Interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", job.Name)
	}
	_, err := s.cron.AddFunc("@every "+job.Interval.String(), func() {
		start := time.Now()
		if err := job.Run(s.ctx); err != nil {
			s.log.Error().Err(err).Str("job", job.Name).Dur("took", time.Since(start)).Msg("job failed")
			return
		}
		s.log.Debug().Str("job", job.Name).Dur("took", time.Since(start)).Msg("job finished")
	})
	if err != nil {
		return fmt.Errorf("failed to register job %s: %w", job.Name, err)
	}
	s.log.Info().Str("job", job.Name).Dur("interval", job.Interval).Msg("job registered")
	return nil
}

// Start begins ticking. Calling Start twice is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		s.log.Warn().Msg("scheduler already started, ignoring")
		return
	}
	s.started = true
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.cron.Entries())).Msg("scheduler started")
}

// Stop cancels the job context and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	s.cancel()
	<-s.cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}

// cronLogger adapts zerolog to cron's logger interface. Cron's own chatter
// goes to debug; only recovered panics surface as errors.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(logFields(keysAndValues)).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(logFields(keysAndValues)).Msg(msg)
}

func logFields(kv []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		fields[key] = kv[i+1]
	}
	return fields
}

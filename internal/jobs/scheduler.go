package jobs

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"elearning/internal/queue"
)

// Scheduler runs maintenance on the task stream. Consumer groups keep
// acknowledged entries around, so acknowledged history is capped on a
// schedule.
type Scheduler struct {
	cron     *cron.Cron
	client   redis.Cmdable
	stream   string
	maxLen   int64
	schedule string
	log      zerolog.Logger
}

func NewScheduler(client redis.Cmdable, stream string, maxLen int64, schedule string, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		client:   client,
		stream:   stream,
		maxLen:   maxLen,
		schedule: schedule,
		log:      log,
	}
}

func (s *Scheduler) Start() error {
	if s.client == nil || s.maxLen <= 0 {
		return nil
	}
	if _, err := s.cron.AddFunc(s.schedule, s.trim); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop waits up to five seconds for a running trim to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
	}
}

func (s *Scheduler) trim() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	removed, err := s.Trim(ctx)
	if err != nil {
		s.log.Error().Err(err).Str("stream", s.stream).Msg("stream trim failed")
		return
	}
	s.log.Info().Int64("removed", removed).Str("stream", s.stream).Msg("stream trimmed")
}

func (s *Scheduler) Trim(ctx context.Context) (int64, error) {
	return queue.TrimAcked(ctx, s.client, s.stream, s.maxLen)
}

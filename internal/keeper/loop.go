package keeper

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// RunLoop runs a tick immediately and then once per interval until ctx is done.
func (k *Keeper) RunLoop(ctx context.Context, interval time.Duration) {
	k.logger.Info().
		Dur("interval", interval).
		Msg("Starting keeper loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	k.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			k.logger.Info().Msg("Keeper loop stopped due to context cancellation")
			return
		case <-ticker.C:
			k.runOnce(ctx)
		}
	}
}

// RunSchedule runs ticks on a cron schedule (with a seconds field) until ctx is done.
// A tick still running when the next one is due causes that one to be skipped.
func (k *Keeper) RunSchedule(ctx context.Context, spec string) error {
	cl := cronLogger{k.logger}
	c := cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	if _, err := c.AddFunc(spec, func() { k.runOnce(ctx) }); err != nil {
		return fmt.Errorf("invalid keeper schedule %q: %w", spec, err)
	}

	k.logger.Info().Str("schedule", spec).Msg("Starting keeper schedule")
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	k.logger.Info().Msg("Keeper schedule stopped due to context cancellation")
	return nil
}

func (k *Keeper) runOnce(ctx context.Context) {
	k.runCount++
	run := k.runCount
	k.logger.Info().Int("run", run).Msg("Initiating keeper tick")
	if _, err := k.RunTick(ctx); err != nil {
		k.logger.Error().Err(err).Int("run", run).Msg("Keeper tick finished with errors")
		return
	}
	k.logger.Info().Int("run", run).Msg("Keeper tick completed")
}

// cronLogger routes cron's own logging into zerolog.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

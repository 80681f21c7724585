package coordinator

import (
	"context"

	"github.com/pkg/errors"

	"cryptobot/internal/notification"
	"cryptobot/pkg/exchangeapi"
)

// Run executes cycles until ctx is cancelled, MaxCycles is reached or the
// exchange rejects the credentials. A cycle that has started always runs to
// completion, including its retries; cancellation is only observed between
// cycles. Only the credential failure is returned.
func (c *Coordinator) Run(ctx context.Context) error {
	c.log.Info("trading loop started",
		"simulated", c.cfg.Simulated,
		"intervals", c.cfg.Intervals,
		"signal_intervals", c.cfg.SignalIntervals,
		"poll_interval", c.cfg.PollInterval.String(),
		"strategy", c.d.Strategy.Name())

	for n := 1; ; n++ {
		if ctx.Err() != nil {
			break
		}
		_, err := c.RunCycle(context.WithoutCancel(ctx))
		delay := c.cfg.PollInterval
		if err != nil {
			if exchangeapi.IsFatal(err) {
				c.log.Error("credentials rejected, stopping", "error", err)
				c.notify(context.WithoutCancel(ctx), c.log, notification.Alert{
					Level:   notification.AlertCritical,
					Title:   "cryptobot stopped " + string(c.cfg.Market),
					Message: err.Error(),
				})
				return err
			}
			delay = c.cfg.RetryDelay
			c.log.Warn("cycle failed, retrying", "delay", delay.String(), "error", err,
				"no_price", errors.Is(err, exchangeapi.ErrNoPrice))
		}
		if c.cfg.MaxCycles > 0 && n >= c.cfg.MaxCycles {
			break
		}
		if err := c.sleep(ctx, delay); err != nil {
			break
		}
	}
	c.log.Info("trading loop stopped", "cycles", c.seq)
	return nil
}

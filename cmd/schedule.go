package cmd

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/grant-discovery/internal/discovery"
)

func newScheduleCmd(rt *runtime) *cobra.Command {
	var (
		expr  string
		scope string
	)
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run discover --ingest on a cron schedule until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if expr == "" {
				expr = rt.cfg.Schedule.Cron
			}
			if scope == "" {
				scope = rt.cfg.Schedule.Scope
			}
			a, err := rt.open(cmd.Context(), true)
			if err != nil {
				return err
			}
			logger := rt.logger.Named("schedule")
			c, err := newScheduler(cmd.Context(), expr, logger, func(ctx context.Context) {
				summary, err := a.Controller.Sync(ctx, discovery.Options{Scope: scope, AutoIngest: true})
				if err != nil {
					logger.Error("scheduled sync failed", zap.Error(err))
					return
				}
				logger.Info("scheduled sync finished",
					zap.String("run_id", summary.RunID),
					zap.Int("new", summary.New),
					zap.Int("ingested", summary.Ingested),
					zap.Int("failed", summary.Failed),
				)
			})
			if err != nil {
				return err
			}
			c.Start()
			logger.Info("scheduler started", zap.String("cron", expr), zap.String("scope", scope))
			<-cmd.Context().Done()
			<-c.Stop().Done()
			logger.Info("scheduler stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&expr, "cron", "", "cron expression (default: schedule.cron)")
	cmd.Flags().StringVar(&scope, "status", "", "status scope (default: schedule.scope)")
	return cmd
}

// newScheduler registers job under expr. Overlapping runs are skipped.
func newScheduler(ctx context.Context, expr string, logger *zap.Logger, job func(context.Context)) (*cron.Cron, error) {
	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger))
	c := cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	if _, err := c.AddFunc(expr, func() { job(ctx) }); err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return c, nil
}

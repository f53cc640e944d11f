package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/desertthunder/musiclink/internal/formatter"
	"github.com/desertthunder/musiclink/internal/models"
	"github.com/desertthunder/musiclink/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Migrate copies a playlist between providers and prints or saves the report.
//
// Progress goes to the log while the run is in flight. An interrupted run still reports the tracks it got through.
func (r *Runner) Migrate(ctx context.Context, cmd *cli.Command) error {
	user, err := requireUser(cmd)
	if err != nil {
		return err
	}
	source, err := parseProvider(cmd.String("from"))
	if err != nil {
		return err
	}
	target, err := parseProvider(cmd.String("to"))
	if err != nil {
		return err
	}
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	if err := r.prepare(ctx, cmd); err != nil {
		return err
	}

	req := tasks.MigrateRequest{
		UserID:           user,
		Source:           source,
		Target:           target,
		SourcePlaylistID: cmd.String("playlist"),
		TargetPlaylistID: cmd.String("target-playlist"),
		DryRun:           cmd.Bool("dry-run"),
		Name:             cmd.String("name"),
		Visibility:       models.Visibility(cmd.String("visibility")),
	}
	if cmd.IsSet("min-score") {
		score := cmd.Float("min-score")
		req.MinScore = &score
	}

	r.logger.Info("starting migration", "source", source, "target", target, "playlist", req.SourcePlaylistID, "dry_run", req.DryRun)

	progressCh := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progressCh {
			switch update.Phase {
			case tasks.MatchTracks, tasks.AddTracks:
				r.logger.Debug(update.Message, "phase", update.Phase, "step", update.Step, "total", update.Total)
			default:
				r.logger.Info(update.Message, "phase", update.Phase)
			}
		}
	}()

	report, runErr := r.engine.Migrate(ctx, req, progressCh)
	close(progressCh)
	<-done

	if report == nil {
		return runErr
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return runErr
	}

	if path := cmd.String("output"); path != "" {
		if err := formatter.WriteReportFile(report, path, format); err != nil {
			return err
		}
		r.writePlain("%s\n", formatter.Summary(report))
		r.writePlain("✓ Report written to %s\n", path)
	} else if format == formatter.Text {
		r.writePlain("%s\n\n", formatter.Summary(report))
		if err := formatter.WriteReport(r.output, report, format); err != nil {
			return err
		}
	} else if err := formatter.WriteReport(r.output, report, format); err != nil {
		return err
	}

	if runErr != nil {
		return fmt.Errorf("partial report after %d tracks: %w", report.Total, runErr)
	}
	return nil
}

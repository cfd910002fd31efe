package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"quill/internal/dataset"
	"quill/internal/export"
	"quill/internal/journal"
	"quill/internal/logging"
	"quill/internal/reconcile"
	"quill/internal/services"
	"quill/internal/validate"
)

func newBuildCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Reconcile artifacts and write dataset.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx := ctx.runContext(cmd)
			engine, err := ctx.engine()
			if err != nil {
				return err
			}
			result, err := engine.BuildAndPersist(runCtx)
			if err != nil {
				return err
			}

			if store := ctx.openJournal(runCtx); store != nil {
				if err := store.RecordBuild(runCtx, journal.BuildFromResult(result, ctx.correlationID)); err != nil {
					logging.WarnWithContext(ctx.log(), "build not journaled", "journal_write_failed", logging.Error(err))
				}
				_ = store.Close()
			}
			stats := result.Statistics
			if err := ctx.notifier().NotifyBuildCompleted(runCtx, stats.TotalSamples, stats.CompletedSamples, stats.CompletionPercentage, result.Duration); err != nil {
				logging.WarnWithContext(ctx.log(), "build notification failed", "notification_failed", logging.Error(err))
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd, buildOutput{
					Path:          ctx.layout().SnapshotPath(),
					Statistics:    stats,
					Removed:       result.Removed,
					ProbeFailures: result.ProbeFailures,
					Rebuilt:       result.Rebuilt,
					DurationMS:    result.Duration.Milliseconds(),
				})
			}
			printBuildResult(cmd, ctx.layout().SnapshotPath(), result)
			return nil
		},
	}
}

type buildOutput struct {
	Path          string             `json:"path"`
	Statistics    dataset.Statistics `json:"statistics"`
	Removed       int                `json:"removed"`
	ProbeFailures []int              `json:"probe_failures"`
	Rebuilt       bool               `json:"rebuilt"`
	DurationMS    int64              `json:"duration_ms"`
}

func printBuildResult(cmd *cobra.Command, path string, result *reconcile.Result) {
	p := newPrinter(cmd)
	p.line("Wrote %s", path)
	p.status("Samples", statusOK, result.String())
	if result.Rebuilt {
		p.status("Snapshot", statusWarn, "previous dataset.json was corrupt; rebuilt from artifacts")
	}
	if result.Removed > 0 {
		p.status("Removed", statusInfo, fmt.Sprintf("%d samples without a question", result.Removed))
	}
	if len(result.ProbeFailures) > 0 {
		p.status("Audio probe", statusWarn, "unreadable audio for samples "+joinInts(result.ProbeFailures))
	}
	p.status("Duration", statusInfo, result.Duration.Round(time.Millisecond).String())
}

func newValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check every sample for the artifacts a training pair needs",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := ctx.engine()
			if err != nil {
				return err
			}
			result, err := engine.Build(ctx.runContext(cmd))
			if err != nil {
				return err
			}
			report := validate.Validate(result.Samples)
			if ctx.jsonOutput() {
				if err := writeJSON(cmd, report); err != nil {
					return err
				}
				return report.Err()
			}
			printValidationReport(cmd, report)
			return report.Err()
		},
	}
}

func printValidationReport(cmd *cobra.Command, report validate.Report) {
	p := newPrinter(cmd)
	summary := report.Summary
	kind := statusOK
	if !report.Valid {
		kind = statusError
	}
	p.status("Complete", kind, fmt.Sprintf("%d/%d", summary.Complete, summary.Total))

	rows := make([][]string, 0, len(report.Samples))
	for _, sample := range report.Samples {
		if len(sample.Issues) == 0 && len(sample.Warnings) == 0 {
			continue
		}
		rows = append(rows, []string{
			strconv.Itoa(sample.SampleNumber),
			sample.ID,
			strings.Join(sample.Issues, ", "),
			strings.Join(sample.Warnings, ", "),
		})
	}
	if len(rows) == 0 {
		return
	}
	p.blank()
	p.table(rightAlign(cols("Sample", "ID", "Issues", "Warnings"), 0), rows)
}

func newSummaryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show dataset statistics and per-sample status",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := ctx.engine()
			if err != nil {
				return err
			}
			result, err := engine.Build(ctx.runContext(cmd))
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, summaryOutput{Statistics: result.Statistics, Samples: summarizeSamples(result.Samples)})
			}
			printSummary(cmd, result)
			return nil
		},
	}
}

type sampleStatus struct {
	ID           string         `json:"id"`
	SampleNumber int            `json:"sample_number"`
	Question     string         `json:"question"`
	Status       dataset.Status `json:"status"`
}

type summaryOutput struct {
	Statistics dataset.Statistics `json:"statistics"`
	Samples    []sampleStatus     `json:"samples"`
}

func summarizeSamples(samples []dataset.Sample) []sampleStatus {
	out := make([]sampleStatus, 0, len(samples))
	for _, s := range samples {
		out = append(out, sampleStatus{ID: s.ID, SampleNumber: s.SampleNumber, Question: s.Question, Status: s.Status})
	}
	return out
}

func printSummary(cmd *cobra.Command, result *reconcile.Result) {
	p := newPrinter(cmd)
	stats := result.Statistics
	p.section("Dataset")
	p.status("Samples", statusInfo, strconv.Itoa(stats.TotalSamples))
	p.status("Recorded", statusInfo, strconv.Itoa(stats.RecordedSamples))
	p.status("Transcribed", statusInfo, strconv.Itoa(stats.TranscribedSamples))
	p.status("Auto cleaned", statusInfo, strconv.Itoa(stats.AutoCleanedSamples))
	p.status("Manually cleaned", statusInfo, strconv.Itoa(stats.ManuallyCleanedSamples))
	kind := statusWarn
	if stats.TotalSamples > 0 && stats.CompletedSamples == stats.TotalSamples {
		kind = statusOK
	}
	p.status("Complete", kind, fmt.Sprintf("%d (%.2f%%)", stats.CompletedSamples, stats.CompletionPercentage))
	p.status("Audio", statusInfo, fmt.Sprintf("%.1fs", stats.TotalAudioSeconds))
	p.status("Words", statusInfo, fmt.Sprintf("%d raw, %d manual", stats.TotalRawWords, stats.TotalManualWords))

	if len(result.Samples) == 0 {
		return
	}
	rows := make([][]string, 0, len(result.Samples))
	for _, s := range result.Samples {
		rows = append(rows, []string{
			strconv.Itoa(s.SampleNumber),
			yesNo(s.Status.Recorded),
			yesNo(s.Status.Transcribed),
			yesNo(s.Status.AutoCleaned),
			yesNo(s.Status.ManuallyCleaned),
			yesNo(s.Status.IsComplete),
			truncate(s.Question, 48),
		})
	}
	p.blank()
	p.table(rightAlign(cols("Sample", "Audio", "Raw", "Auto", "Manual", "Complete", "Question"), 0), rows)
}

func newExportCommand(ctx *commandContext) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export {json|jsonl}",
		Short: "Write complete samples as a training file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := export.ParseFormat(args[0])
			if err != nil {
				return err
			}
			engine, err := ctx.engine()
			if err != nil {
				return err
			}
			result, err := engine.Build(ctx.runContext(cmd))
			if err != nil {
				return err
			}

			if output == "-" {
				_, err := export.Write(cmd.OutOrStdout(), format, result.Samples)
				return err
			}
			path := strings.TrimSpace(output)
			if path == "" {
				path = ctx.layout().ExportPath(format)
			}
			count, err := export.WriteFile(path, format, result.Samples)
			if err != nil {
				if errors.Is(err, services.ErrEmptyExport) {
					fmt.Fprintln(cmd.ErrOrStderr(), "No complete samples; finish manual cleanups first.")
				}
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, map[string]any{"path": path, "format": format, "samples": count})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d samples to %s\n", count, path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination file (\"-\" for stdout; default <root>/dataset_training.<format>)")
	return cmd
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ", ")
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}

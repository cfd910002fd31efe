package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"quill/internal/compare"
	"quill/internal/services"
)

func newCompareCommand(ctx *commandContext) *cobra.Command {
	var showDiff bool
	cmd := &cobra.Command{
		Use:   "compare [N|ID]",
		Short: "Measure how far manual cleanups diverge from the automated ones",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := ctx.registry()
			if err != nil {
				return err
			}
			engine, err := ctx.engine()
			if err != nil {
				return err
			}
			runCtx := ctx.runContext(cmd)

			if len(args) == 1 {
				q, ok := registry.Lookup(args[0])
				if !ok {
					return services.Wrap(services.ErrNotFound, "compare", "", "question "+args[0], nil)
				}
				sample, err := engine.Derive(runCtx, q)
				if err != nil {
					return err
				}
				report, err := compare.Sample(sample)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, report)
				}
				printCompareReport(cmd, report, showDiff)
				return nil
			}

			var reports []compare.Report
			for _, q := range registry.All() {
				sample, err := engine.Derive(runCtx, q)
				if err != nil {
					return err
				}
				report, err := compare.Sample(sample)
				if errors.Is(err, services.ErrValidation) {
					continue
				}
				if err != nil {
					return err
				}
				reports = append(reports, report)
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, reports)
			}
			printCompareTable(cmd, reports)
			return nil
		},
	}
	cmd.Flags().BoolVar(&showDiff, "diff", false, "Print the line diff")
	return cmd
}

func printCompareReport(cmd *cobra.Command, report compare.Report, showDiff bool) {
	p := newPrinter(cmd)
	p.section(fmt.Sprintf("Sample %d", report.SampleNumber))
	p.status("Words", statusInfo, fmt.Sprintf("%d auto, %d manual (%+d, %.1f%%)", report.Auto.Words, report.Manual.Words, report.WordDiff, report.WordPercent))
	p.status("Characters", statusInfo, fmt.Sprintf("%d auto, %d manual (%+d, %.1f%%)", report.Auto.Chars, report.Manual.Chars, report.CharDiff, report.CharPercent))
	p.status("Lines", statusInfo, fmt.Sprintf("%d added, %d removed, %d unchanged", report.Added, report.Removed, report.Unchanged))
	p.status("Similarity", statusInfo, fmt.Sprintf("%.2f", report.Similarity))
	if showDiff {
		p.blank()
		fmt.Fprint(p.w, report.String())
	}
}

func printCompareTable(cmd *cobra.Command, reports []compare.Report) {
	p := newPrinter(cmd)
	if len(reports) == 0 {
		p.line("No samples with both an automated and a manual cleanup.")
		return
	}
	rows := make([][]string, 0, len(reports))
	for _, r := range reports {
		rows = append(rows, []string{
			strconv.Itoa(r.SampleNumber),
			strconv.Itoa(r.Auto.Words),
			strconv.Itoa(r.Manual.Words),
			fmt.Sprintf("%+d", r.WordDiff),
			fmt.Sprintf("%.1f%%", r.WordPercent),
			fmt.Sprintf("+%d/-%d", r.Added, r.Removed),
			fmt.Sprintf("%.2f", r.Similarity),
		})
	}
	p.table(rightAlign(cols("Sample", "Auto words", "Manual words", "Diff", "Diff %", "Lines", "Similarity"), 0, 1, 2, 3, 4, 5, 6), rows)
}

package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"quill/internal/journal"
	"quill/internal/services"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [N]",
		Short: "Show journaled pipeline events and builds",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx := ctx.runContext(cmd)
			store, err := journal.OpenConfig(runCtx, ctx.config)
			if err != nil {
				return err
			}
			defer store.Close()

			filter := journal.EventFilter{Limit: limit}
			if len(args) == 1 {
				number, err := strconv.Atoi(args[0])
				if err != nil || number <= 0 {
					return services.Wrap(services.ErrValidation, "history", "", "sample number must be a positive integer", err)
				}
				filter.SampleNumber = number
			}
			events, err := store.Events(runCtx, filter)
			if err != nil {
				return err
			}
			var builds []journal.BuildRecord
			if filter.SampleNumber == 0 {
				if builds, err = store.Builds(runCtx, limit); err != nil {
					return err
				}
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd, map[string]any{"events": events, "builds": builds})
			}
			printHistory(cmd, events, builds)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum rows to show")
	return cmd
}

func printHistory(cmd *cobra.Command, events []journal.EventRecord, builds []journal.BuildRecord) {
	p := newPrinter(cmd)
	if len(events) == 0 && len(builds) == 0 {
		p.line("No history recorded yet.")
		return
	}

	if len(events) > 0 {
		p.section("Events")
		rows := make([][]string, 0, len(events))
		for _, e := range events {
			change := e.ToState
			if e.FromState != "" && e.FromState != e.ToState {
				change = e.FromState + " -> " + e.ToState
			}
			detail := e.Message
			if e.Error != "" {
				detail = e.Error
			}
			rows = append(rows, []string{
				e.CreatedAt.Local().Format(time.DateTime),
				strconv.Itoa(e.SampleNumber),
				e.Type,
				e.Stage,
				change,
				truncate(detail, 60),
			})
		}
		p.table(rightAlign(cols("Time", "Sample", "Event", "Stage", "State", "Detail"), 1), rows)
	}

	if len(builds) > 0 {
		if len(events) > 0 {
			p.blank()
		}
		p.section("Builds")
		rows := make([][]string, 0, len(builds))
		for _, b := range builds {
			rows = append(rows, []string{
				b.CreatedAt.Local().Format(time.DateTime),
				fmt.Sprintf("%d/%d", b.Completed, b.Samples),
				strconv.Itoa(b.Removed),
				strconv.Itoa(b.ProbeFailures),
				yesNo(b.Rebuilt),
				b.Duration.Round(time.Millisecond).String(),
			})
		}
		p.table(rightAlign(cols("Time", "Complete", "Removed", "Probe failures", "Rebuilt", "Duration"), 1, 2, 3, 5), rows)
	}
}

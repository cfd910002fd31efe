package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"quill/internal/questions"
	"quill/internal/services"
)

func newQuestionsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "questions",
		Short: "Inspect and extend questions.json",
	}
	cmd.AddCommand(newQuestionsListCommand(ctx))
	cmd.AddCommand(newQuestionsAddCommand(ctx))
	return cmd
}

func newQuestionsListCommand(ctx *commandContext) *cobra.Command {
	var pending bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List questions and whether they have been recorded",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := ctx.registry()
			if err != nil {
				return err
			}
			all := registry.All()
			if pending {
				filtered := all[:0]
				for _, q := range all {
					if !q.HasRecording {
						filtered = append(filtered, q)
					}
				}
				all = filtered
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, all)
			}
			if len(all) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No questions.")
				return nil
			}
			rows := make([][]string, 0, len(all))
			for _, q := range all {
				rows = append(rows, []string{strconv.Itoa(q.Number), yesNo(q.HasRecording), q.ID, truncate(q.Text, 60)})
			}
			p := newPrinter(cmd)
			p.table(rightAlign(cols("#", "Recorded", "ID", "Question"), 0), rows)
			return nil
		},
	}
	cmd.Flags().BoolVar(&pending, "pending", false, "Only show questions without a recording")
	return cmd
}

func newQuestionsAddCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "add <question text>",
		Short: "Append a question to questions.json",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ctx.layout().QuestionsPath()
			registry, err := questions.Load(path)
			if errors.Is(err, services.ErrNotFound) {
				registry, err = questions.New(path), nil
			}
			if err != nil {
				return err
			}
			q, err := registry.Add(strings.Join(args, " "))
			if err != nil {
				return err
			}
			if err := registry.Save(); err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, q)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added question %d (%s)\n", q.Number, q.ID)
			return nil
		},
	}
}

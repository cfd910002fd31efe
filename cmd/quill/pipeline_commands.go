package main

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"quill/internal/dataset"
	"quill/internal/logging"
	"quill/internal/pipeline"
	"quill/internal/questions"
	"quill/internal/services"
)

func newRecordCommand(ctx *commandContext) *cobra.Command {
	var number int
	var device string
	var noProcess bool

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record an answer to the next unrecorded question",
		Long: "Record an answer to a question, then transcribe and clean it up.\n" +
			"Press Enter to stop. Ctrl-C stops and saves the audio without processing.",
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx := ctx.runContext(cmd)
			env, err := ctx.newPipeline(runCtx, progressObserver(cmd, ctx))
			if err != nil {
				return err
			}
			defer env.Close()

			q, err := pickQuestion(env.registry, number)
			if err != nil {
				return err
			}
			q, err = env.pipeline.StartRecording(runCtx, q, device)
			if err != nil {
				return err
			}

			p := newPrinter(cmd)
			p.line("Question %d: %s", q.Number, q.Text)
			p.line("Recording... press Enter to stop.")

			interrupted := waitForStop(runCtx, cmd)
			rec, err := env.pipeline.StopRecording(context.WithoutCancel(runCtx))
			if err != nil {
				return err
			}
			p.line("Saved %s (%.1fs)", ctx.layout().Rel(rec.Capture.Path), rec.Capture.DurationSeconds)

			if interrupted || noProcess {
				p.line("Run `quill process %d` to transcribe and clean up.", q.Number)
				return nil
			}
			result, err := env.pipeline.Process(runCtx, rec.Question)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Processing failed; the recording is kept. Retry with `quill process %d`.\n", q.Number)
				return err
			}
			printProcessResult(cmd, ctx, result)
			return nil
		},
	}
	cmd.Flags().IntVarP(&number, "question", "q", 0, "Question number to record (default next unrecorded)")
	cmd.Flags().StringVarP(&device, "device", "d", "", "ALSA capture device, e.g. hw:1,0")
	cmd.Flags().BoolVar(&noProcess, "no-process", false, "Save the recording without transcribing it")
	return cmd
}

func pickQuestion(registry *questions.Registry, number int) (questions.Question, error) {
	if number > 0 {
		q, ok := registry.ByNumber(number)
		if !ok {
			return q, services.Wrap(services.ErrNotFound, "record", "", fmt.Sprintf("question %d", number), nil)
		}
		return q, nil
	}
	q, ok := registry.NextUnrecorded()
	if !ok {
		return q, services.Wrap(services.ErrNotFound, "record", "", "every question already has a recording", nil)
	}
	return q, nil
}

// waitForStop blocks until a line is read from stdin or ctx is cancelled,
// and reports whether the stop came from cancellation.
func waitForStop(ctx context.Context, cmd *cobra.Command) bool {
	lines := make(chan struct{})
	go func() {
		reader := bufio.NewReader(cmd.InOrStdin())
		_, _ = reader.ReadString('\n')
		close(lines)
	}()
	select {
	case <-lines:
		return false
	case <-ctx.Done():
		return true
	}
}

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "process [N|ID...]",
		Short: "Transcribe and clean up recorded samples",
		Long: "Run the missing pipeline stages for recorded samples. Without\n" +
			"arguments (or with --all) every recorded question is processed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx := ctx.runContext(cmd)
			env, err := ctx.newPipeline(runCtx, progressObserver(cmd, ctx))
			if err != nil {
				return err
			}
			defer env.Close()

			selected, err := selectQuestions(env.pipeline, env.registry, args, all)
			if err != nil {
				return err
			}
			if err := requireServices(ctx, env.pipeline, selected); err != nil {
				return err
			}
			if len(selected) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No recorded samples to process.")
				return nil
			}

			summary, runErr := env.pipeline.ProcessAll(runCtx, selected)
			if ctx.jsonOutput() {
				if err := writeJSON(cmd, processOutput(summary)); err != nil {
					return err
				}
				return runErr
			}
			printProcessSummary(cmd, ctx, summary)
			return runErr
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Process every recorded question")
	return cmd
}

// selectQuestions resolves refs, or every question with audio on disk when
// refs is empty.
func selectQuestions(p *pipeline.Pipeline, registry *questions.Registry, refs []string, all bool) ([]questions.Question, error) {
	if all || len(refs) == 0 {
		var out []questions.Question
		for _, q := range registry.All() {
			// Unreadable artifacts fail that sample during ProcessAll.
			if state, _ := p.DetectState(q); state != pipeline.StateIdle {
				out = append(out, q)
			}
		}
		return out, nil
	}
	out := make([]questions.Question, 0, len(refs))
	for _, ref := range refs {
		q, ok := registry.Lookup(ref)
		if !ok {
			return nil, services.Wrap(services.ErrNotFound, "process", "", "question "+ref, nil)
		}
		out = append(out, q)
	}
	return out, nil
}

// requireServices checks the API keys needed by the stages the selected
// samples still have to run.
func requireServices(ctx *commandContext, p *pipeline.Pipeline, selected []questions.Question) error {
	var needTranscription, needCleanup bool
	for _, q := range selected {
		state, _ := p.DetectState(q)
		if state < pipeline.StateTranscribed {
			needTranscription = true
		}
		if state < pipeline.StateAutoCleaned {
			needCleanup = true
		}
	}
	if needTranscription {
		if err := ctx.config.RequireTranscription(); err != nil {
			return err
		}
	}
	if needCleanup {
		if err := ctx.config.RequireCleanup(); err != nil {
			return err
		}
	}
	return nil
}

// progressObserver echoes stage progress to stderr for interactive runs.
func progressObserver(cmd *cobra.Command, ctx *commandContext) pipeline.Observer {
	errOut := cmd.ErrOrStderr()
	return pipeline.ObserverFunc(func(_ context.Context, event pipeline.Event) {
		if ctx.jsonOutput() {
			return
		}
		switch event.Type {
		case pipeline.EventTransition:
			fmt.Fprintf(errOut, "sample %d: %s\n", event.SampleNumber, event.To)
		case pipeline.EventRetry:
			fmt.Fprintf(errOut, "sample %d: %s attempt %d failed, retrying in %s\n", event.SampleNumber, event.Stage, event.Attempt, event.Delay)
		case pipeline.EventFailed:
			fmt.Fprintf(errOut, "sample %d: %s failed: %v\n", event.SampleNumber, event.Stage, event.Err)
		}
	})
}

type processRow struct {
	SampleID     string   `json:"sample_id"`
	SampleNumber int      `json:"sample_number"`
	State        string   `json:"state"`
	Ran          []string `json:"ran"`
	Skipped      []string `json:"skipped"`
	Error        string   `json:"error,omitempty"`
}

func processOutput(summary *pipeline.Summary) map[string]any {
	rows := make([]processRow, 0, len(summary.Results))
	for _, result := range summary.Results {
		if result != nil {
			rows = append(rows, toProcessRow(result))
		}
	}
	return map[string]any{
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"samples":   rows,
	}
}

func toProcessRow(result *pipeline.Result) processRow {
	row := processRow{
		SampleID:     result.SampleID,
		SampleNumber: result.SampleNumber,
		State:        result.State.String(),
		Ran:          stageNames(result.Ran),
		Skipped:      stageNames(result.Skipped),
	}
	if result.Err != nil {
		row.Error = result.Err.Error()
	}
	return row
}

func stageNames(stages []pipeline.Stage) []string {
	out := make([]string, len(stages))
	for i, stage := range stages {
		out[i] = string(stage)
	}
	return out
}

func printProcessResult(cmd *cobra.Command, ctx *commandContext, result *pipeline.Result) {
	if ctx.jsonOutput() {
		_ = writeJSON(cmd, toProcessRow(result))
		return
	}
	p := newPrinter(cmd)
	p.status(fmt.Sprintf("Sample %d", result.SampleNumber), statusOK, result.State.String())
	if path, ok := ctx.layout().Resolve(dataset.SlotManual, result.SampleID, result.SampleNumber); ok {
		p.line("Edit %s to finish the manual cleanup.", ctx.layout().Rel(path))
	}
}

func printProcessSummary(cmd *cobra.Command, ctx *commandContext, summary *pipeline.Summary) {
	p := newPrinter(cmd)
	rows := make([][]string, 0, len(summary.Results))
	for _, result := range summary.Results {
		if result == nil {
			continue
		}
		row := toProcessRow(result)
		rows = append(rows, []string{
			strconv.Itoa(row.SampleNumber),
			row.State,
			strings.Join(row.Ran, ", "),
			strings.Join(row.Skipped, ", "),
			row.Error,
		})
	}
	p.table(rightAlign(cols("Sample", "State", "Ran", "Skipped", "Error"), 0), rows)
	kind := statusOK
	if summary.Failed > 0 {
		kind = statusError
	}
	p.status("Processed", kind, fmt.Sprintf("%d succeeded, %d failed", summary.Succeeded, summary.Failed))
	if summary.Failed > 0 {
		ctx.log().Warn("some samples failed",
			logging.Int("failed", summary.Failed),
			logging.String(logging.FieldEventType, "process_partial_failure"),
		)
	}
}

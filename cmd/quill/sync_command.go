package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/spf13/cobra"

	"quill/internal/config"
	"quill/internal/logging"
	"quill/internal/services"
	"quill/internal/services/hf"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	var (
		yes     bool
		dryRun  bool
		repo    string
		message string
	)
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Upload the dataset folder to a Hugging Face dataset repository",
		Long: "Push every file under the dataset root, minus sync.ignore patterns, to\n" +
			"the configured Hugging Face dataset repository as a single commit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			settings := cfg.Sync
			if repo = strings.Trim(strings.TrimSpace(repo), "/"); repo != "" {
				settings.Repo = repo
			}
			if message = strings.TrimSpace(message); message != "" {
				settings.CommitMessage = message
			}

			files, err := hf.Collect(cfg.Paths.DatasetRoot, settings.Ignore)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return services.Wrap(services.ErrEmptyExport, "sync", "collect", cfg.Paths.DatasetRoot+" has no files to upload", nil)
			}
			if dryRun {
				return printSyncPlan(cmd, ctx, files)
			}

			checked := *cfg
			checked.Sync = settings
			if err := checked.RequireSync(); err != nil {
				return err
			}
			client := hf.NewClient(hf.Config{
				Endpoint:       settings.Endpoint,
				Token:          settings.Token,
				Repo:           settings.Repo,
				Revision:       settings.Revision,
				TimeoutSeconds: settings.TimeoutSeconds,
			})

			if !yes {
				fmt.Fprintf(cmd.OutOrStdout(), "Upload %d files (%s) to %s? [y/N] ", len(files), formatSize(totalSize(files)), client.RepoURL())
				if !confirmed(cmd) {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
					return nil
				}
			}

			logger := logging.NewComponentLogger(ctx.log(), "sync")
			logger.Info("sync started",
				logging.String("repo", settings.Repo),
				logging.Int("files", len(files)),
			)
			start := time.Now()
			result, err := commitWithRetry(ctx.runContext(cmd), &checked, logger, func(callCtx context.Context) (hf.CommitResult, error) {
				return client.Commit(callCtx, files, settings.CommitMessage)
			})
			if err != nil {
				return err
			}
			logger.Info("sync finished",
				logging.String("commit", result.OID),
				logging.Int("lfs_uploaded", result.Uploaded),
				logging.Duration("duration", time.Since(start)),
			)

			if ctx.jsonOutput() {
				return writeJSON(cmd, result)
			}
			p := newPrinter(cmd)
			p.line("Synced %s", client.RepoURL())
			p.status("Files", statusOK, fmt.Sprintf("%d inline, %d via LFS (%d uploaded)", result.Regular, result.LFS, result.Uploaded))
			if result.Ignored > 0 {
				p.status("Ignored", statusInfo, fmt.Sprintf("%d files skipped by the hub", result.Ignored))
			}
			if result.URL != "" {
				p.status("Commit", statusInfo, result.URL)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Upload without asking for confirmation")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List the files that would be uploaded")
	cmd.Flags().StringVar(&repo, "repo", "", "Dataset repository (overrides sync.repo)")
	cmd.Flags().StringVarP(&message, "message", "m", "", "Commit message (overrides sync.commit_message)")
	return cmd
}

func printSyncPlan(cmd *cobra.Command, ctx *commandContext, files []hf.File) error {
	if ctx.jsonOutput() {
		return writeJSON(cmd, files)
	}
	p := newPrinter(cmd)
	rows := make([][]string, 0, len(files))
	for _, f := range files {
		rows = append(rows, []string{f.Path, formatSize(f.Size)})
	}
	p.table(rightAlign(cols("Path", "Size"), 1), rows)
	p.line("%d files, %s", len(files), formatSize(totalSize(files)))
	return nil
}

// confirmed reads one answer line; anything but yes, including EOF, declines.
func confirmed(cmd *cobra.Command) bool {
	answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

// commitWithRetry repeats op on transient failures. Blobs the hub already
// holds are skipped, so a repeated attempt only sends what is missing.
func commitWithRetry(ctx context.Context, cfg *config.Config, logger *slog.Logger, op func(context.Context) (hf.CommitResult, error)) (hf.CommitResult, error) {
	exp := backoff.NewExponentialBackOff()
	initial, maxDelay := cfg.RetryDelays()
	if initial > 0 {
		exp.InitialInterval = initial
	}
	if maxDelay > 0 {
		exp.MaxInterval = maxDelay
	}
	attempt := 0
	operation := func() (hf.CommitResult, error) {
		attempt++
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if !services.Retryable(err) {
			return result, backoff.Permanent(err)
		}
		return result, err
	}
	notify := func(err error, delay time.Duration) {
		logger.Warn("transient failure; retrying",
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(err),
			logging.String(logging.FieldErrorKind, services.Kind(err)),
			logging.String(logging.FieldEventType, "sync_retry"),
			logging.String(logging.FieldErrorHint, "the upload is retried automatically"),
		)
	}
	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(exp),
		backoff.WithMaxTries(uint(cfg.Retry.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
}

func totalSize(files []hf.File) int64 {
	var total int64
	for _, f := range files {
		total += f.Size
	}
	return total
}

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

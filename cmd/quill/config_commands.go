package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"quill/internal/config"
	"quill/internal/prompts"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
	}
	cmd.AddCommand(newConfigInitCommand(), newConfigValidateCommand(ctx))
	return cmd
}

func newConfigInitCommand() *cobra.Command {
	var (
		pathFlag  string
		overwrite bool
	)
	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a commented sample configuration",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := initTarget(pathFlag)
			if err != nil {
				return err
			}
			if err := refuseExisting(target, overwrite); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create %s: %w", filepath.Dir(target), err)
			}
			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("write sample config: %w", err)
			}

			p := newPrinter(cmd)
			p.line("Wrote sample configuration to %s", target)
			p.line("Set transcription.api_key and cleanup.api_key (or export OPENAI_API_KEY and OPENROUTER_API_KEY) before recording.")
			return nil
		},
	}
	cmd.Flags().StringVarP(&pathFlag, "path", "p", "", "Where to write the file (default: user config dir)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")
	return cmd
}

// initTarget resolves the destination for config init.
func initTarget(flag string) (string, error) {
	if flag = strings.TrimSpace(flag); flag != "" {
		path, err := config.ExpandPath(flag)
		if err != nil {
			return "", fmt.Errorf("resolve %q: %w", flag, err)
		}
		return path, nil
	}
	path, err := config.DefaultConfigPath()
	if err != nil {
		return "", fmt.Errorf("default config path: %w", err)
	}
	return path, nil
}

func refuseExisting(path string, overwrite bool) error {
	if overwrite {
		return nil
	}
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return fmt.Errorf("%s already exists; pass --overwrite to replace it", path)
	case errors.Is(err, fs.ErrNotExist):
		return nil
	default:
		return fmt.Errorf("stat %s: %w", path, err)
	}
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load the configuration and report the effective settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			prompt, err := ctx.prompt()
			if err != nil {
				return err
			}

			source := ctx.configPath
			if !ctx.configExists {
				source += " (not found, defaults in use)"
			}
			promptSource := "built-in"
			if prompt.Source == prompts.SourceFile {
				promptSource = ctx.layout().Rel(prompt.Path)
			}

			p := newPrinter(cmd)
			p.section("Configuration")
			p.status("Config", statusInfo, source)
			p.status("Dataset root", statusInfo, cfg.Paths.DatasetRoot)
			p.status("State dir", statusInfo, cfg.Paths.StateDir)
			p.status("Transcription", keyKind(cfg.Transcription.APIKey), endpointSummary(cfg.Transcription.BaseURL, cfg.Transcription.Model, cfg.Transcription.APIKey))
			p.status("Cleanup", keyKind(cfg.Cleanup.APIKey), endpointSummary(cfg.Cleanup.BaseURL, cfg.Cleanup.Model, cfg.Cleanup.APIKey))
			p.status("Prompt", statusInfo, fmt.Sprintf("%s (version %s)", promptSource, prompt.Version))
			p.blank()
			p.line("Configuration valid")
			return nil
		},
	}
}

// A missing key only blocks the stages that need it.
func keyKind(key string) statusKind {
	if strings.TrimSpace(key) == "" {
		return statusWarn
	}
	return statusOK
}

func endpointSummary(baseURL, model, key string) string {
	summary := fmt.Sprintf("%s via %s", model, baseURL)
	if strings.TrimSpace(key) == "" {
		summary += ", no API key"
	}
	return summary
}

package main

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"quill/internal/questions"
	"quill/internal/services"
	"quill/internal/testsupport"
)

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, env.cfg.Paths.DatasetRoot)

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse an existing file")
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, ""); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestQuestionsAddAndList(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"questions", "add", "What", "did", "you", "learn?"}, env.configPath)
	if err != nil {
		t.Fatalf("questions add: %v", err)
	}
	requireContains(t, out, "Added question 1")

	out, _, err = runCLI(t, []string{"questions", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("questions list: %v", err)
	}
	requireContains(t, out, "What did you learn?")

	out, _, err = runCLI(t, []string{"--json", "questions", "list", "--pending"}, env.configPath)
	if err != nil {
		t.Fatalf("questions list --json: %v", err)
	}
	var listed []questions.Question
	if err := json.Unmarshal([]byte(out), &listed); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(listed) != 1 || listed[0].Number != 1 || listed[0].ID == "" {
		t.Fatalf("unexpected questions: %+v", listed)
	}
}

func TestCompareReportsDivergence(t *testing.T) {
	env := setupCLITestEnv(t)
	env.populate(t, completeAndPlaceholder()...)

	out, _, err := runCLI(t, []string{"compare", "1", "--diff"}, env.configPath)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	requireContains(t, out, "3 auto, 3 manual (+0, 0.0%)")
	requireContains(t, out, "1 added, 1 removed, 0 unchanged")
	requireContains(t, out, "+ We shipped it!")
	requireContains(t, out, "1.00")

	if _, _, err := runCLI(t, []string{"compare", "2"}, env.configPath); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected placeholder sample to be rejected, got %v", err)
	}

	out, _, err = runCLI(t, []string{"--json", "compare"}, env.configPath)
	if err != nil {
		t.Fatalf("compare all: %v", err)
	}
	var reports []map[string]any
	if err := json.Unmarshal([]byte(out), &reports); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(reports) != 1 {
		t.Fatalf("expected one comparable sample, got %d", len(reports))
	}
}

func TestHistoryAfterBuild(t *testing.T) {
	env := setupCLITestEnv(t)
	env.populate(t, completeAndPlaceholder()...)

	out, _, err := runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "No history recorded yet.")

	if _, _, err := runCLI(t, []string{"build"}, env.configPath); err != nil {
		t.Fatalf("build: %v", err)
	}
	out, _, err = runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "== Builds ==")
	requireContains(t, out, "1/2")
}

func TestDoctorOffline(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithStubbedBinaries("", "arecord"))
	env.populate(t, completeAndPlaceholder()...)

	out, _, err := runCLI(t, []string{"doctor", "--offline", "--no-devices"}, env.configPath)
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, out)
	}
	requireContains(t, out, "== Preflight ==")
	requireContains(t, out, "2 questions, 2 recorded")
}

func TestDoctorReportsMissingRecorder(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.Recording.Binary = "quill-test-missing-arecord"
	writeTestConfig(t, env.configPath, env.cfg)
	env.populate(t, completeAndPlaceholder()...)

	out, _, err := runCLI(t, []string{"doctor", "--offline", "--no-devices"}, env.configPath)
	if err == nil {
		t.Fatal("expected doctor to fail without a recorder binary")
	}
	requireContains(t, out, "[ERROR]")
}

func TestTestNotifyDisabled(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"test-notify"}, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "Notifications disabled")
}

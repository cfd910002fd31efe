package preflight

import (
	"context"
	"fmt"

	"quill/internal/config"
	"quill/internal/dataset"
	"quill/internal/deps"
)

// Result reports the outcome of a single preflight check. Optional checks
// do not make doctor fail.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

// Options tunes RunAll.
type Options struct {
	// Offline skips the network checks against the service endpoints.
	Offline bool
	// Devices enumerates capture devices; nil skips the device check.
	Devices DeviceLister
}

// RunAll executes every preflight check for cfg and the dataset at layout.
func RunAll(ctx context.Context, cfg *config.Config, layout dataset.Layout, opts Options) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	for _, status := range CheckSystemDeps(ctx, cfg) {
		results = append(results, fromStatus(status))
	}

	results = append(results,
		CheckDirectoryAccess("Dataset root", layout.Root),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckQuestions(layout),
	)
	if opts.Devices != nil {
		results = append(results, CheckDevices(ctx, opts.Devices))
	}

	transcription := Endpoint{Name: "Transcription API", BaseURL: cfg.Transcription.BaseURL, APIKey: cfg.Transcription.APIKey}
	cleanup := Endpoint{Name: "Cleanup API", BaseURL: cfg.Cleanup.BaseURL, APIKey: cfg.Cleanup.APIKey}
	for _, endpoint := range []Endpoint{transcription, cleanup} {
		if opts.Offline {
			results = append(results, CheckAPIKey(endpoint))
			continue
		}
		results = append(results, CheckEndpoint(ctx, endpoint))
	}
	return results
}

// Failed reports whether any required check failed.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed && !r.Optional {
			return true
		}
	}
	return false
}

func fromStatus(status deps.Status) Result {
	result := Result{Name: status.Name, Passed: status.Available(), Optional: status.Optional}
	switch {
	case !result.Passed:
		result.Detail = fmt.Sprintf("%v; %s", status.Err, status.Purpose)
	case status.Version != "":
		result.Detail = status.Version
	default:
		result.Detail = status.Path
	}
	return result
}

// Package deps locates the external binaries quill shells out to and reports
// the version each one identifies itself with.
package deps

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const versionTimeout = 3 * time.Second

// Requirement names a binary and how to ask it for its version.
type Requirement struct {
	Name        string
	Command     string
	VersionArgs []string
	Purpose     string
	Optional    bool
}

// Status is the outcome of resolving one Requirement.
type Status struct {
	Requirement
	// Path is the resolved executable, empty when it was not found.
	Path string
	// Version is the first non-empty line the binary printed for
	// VersionArgs. It stays empty when the probe fails.
	Version string
	Err     error
}

// Available reports whether the binary was found on PATH.
func (s Status) Available() bool { return s.Err == nil && s.Path != "" }

// Check resolves every requirement in order. A failed version probe does not
// make a binary unavailable.
func Check(ctx context.Context, requirements []Requirement) []Status {
	out := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		out = append(out, resolve(ctx, req))
	}
	return out
}

func resolve(ctx context.Context, req Requirement) Status {
	req.Command = strings.TrimSpace(req.Command)
	status := Status{Requirement: req}
	if req.Command == "" {
		status.Err = fmt.Errorf("command not configured")
		return status
	}
	path, err := exec.LookPath(req.Command)
	if err != nil {
		status.Err = fmt.Errorf("binary %q not found", req.Command)
		return status
	}
	status.Path = path
	if len(req.VersionArgs) > 0 {
		status.Version = probeVersion(ctx, path, req.VersionArgs)
	}
	return status
}

func probeVersion(ctx context.Context, path string, args []string) string {
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()
	// Some tools print their banner on stderr and exit non-zero.
	output, _ := exec.CommandContext(ctx, path, args...).CombinedOutput()
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			return line
		}
	}
	return ""
}

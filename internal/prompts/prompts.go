package prompts

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"quill/internal/services"
)

// DefaultRelPath is where the cleanup prompt lives inside a dataset root.
const DefaultRelPath = "system-prompts/cleanup.md"

// FallbackText is used when no prompt file exists.
const FallbackText = "Clean up this transcript by removing filler words and improving readability."

// Source values reported on a Prompt.
const (
	SourceFile     = "file"
	SourceFallback = "builtin"
)

// Prompt is the system prompt sent with each cleanup request.
type Prompt struct {
	Text    string
	Version string
	Source  string
	Path    string
}

// Load reads the cleanup prompt. An empty path resolves to DefaultRelPath
// under root. A missing file yields the built-in fallback; other read errors
// are returned. An empty version defaults to a short content hash.
func Load(root, path, version string) (Prompt, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = filepath.Join(root, filepath.FromSlash(DefaultRelPath))
	}
	prompt := Prompt{Path: path}

	data, err := os.ReadFile(path)
	switch {
	case err == nil && strings.TrimSpace(string(data)) != "":
		prompt.Text = strings.TrimSpace(string(data))
		prompt.Source = SourceFile
	case err == nil, errors.Is(err, fs.ErrNotExist):
		prompt.Text = FallbackText
		prompt.Source = SourceFallback
		prompt.Path = ""
	default:
		return Prompt{}, services.Wrap(services.ErrFileSystem, "prompts", "read", path, err)
	}

	prompt.Version = strings.TrimSpace(version)
	if prompt.Version == "" {
		prompt.Version = Hash(prompt.Text)
	}
	return prompt, nil
}

// Hash returns the first 12 hex characters of the sha256 of text.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:12]
}

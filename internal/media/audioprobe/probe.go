package audioprobe

import (
	"context"
	"log/slog"
	"math"
	"os/exec"
	"path/filepath"
	"strings"

	"quill/internal/logging"
	"quill/internal/media/ffprobe"
	"quill/internal/services"
)

// Metadata is what the dataset records about an audio artifact.
type Metadata struct {
	DurationSeconds float64
	Format          string
	SampleRate      int
}

// Prober inspects audio files with ffprobe, falling back to the native WAV
// header reader when ffprobe is missing or fails.
type Prober struct {
	binary   string
	logger   *slog.Logger
	lookPath func(string) (string, error)
}

// Option customizes a Prober.
type Option func(*Prober)

// WithLogger attaches a logger for fallback diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Prober) {
		p.logger = logger
	}
}

// WithBinary overrides the ffprobe executable.
func WithBinary(binary string) Option {
	return func(p *Prober) {
		if strings.TrimSpace(binary) != "" {
			p.binary = binary
		}
	}
}

// New constructs a Prober.
func New(opts ...Option) *Prober {
	p := &Prober{binary: "ffprobe", lookPath: exec.LookPath}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logging.NewComponentLogger(p.logger, "audioprobe")
	return p
}

// Probe returns duration, format and sample rate for path. Failures carry
// services.ErrUnreadableAudio.
func (p *Prober) Probe(ctx context.Context, path string) (Metadata, error) {
	format := FormatOf(path)
	if _, err := p.lookPath(p.binary); err == nil {
		result, err := ffprobe.Inspect(ctx, p.binary, path)
		if err == nil {
			duration := result.DurationSeconds()
			if duration > 0 && !math.IsNaN(duration) {
				return Metadata{DurationSeconds: duration, Format: format, SampleRate: result.SampleRateHz()}, nil
			}
		} else {
			p.logger.Debug("ffprobe failed; trying native reader", logging.String("path", path), logging.Error(err))
		}
	}
	if format != "wav" {
		return Metadata{Format: format}, services.Wrap(services.ErrUnreadableAudio, "probe", "inspect", path+": ffprobe unavailable or failed and no native reader for "+format, nil)
	}
	header, err := ReadWAVFile(path)
	if err != nil {
		return Metadata{Format: format}, services.Wrap(services.ErrUnreadableAudio, "probe", "read wav header", path, err)
	}
	return Metadata{DurationSeconds: header.DurationSeconds(), Format: format, SampleRate: header.SampleRate}, nil
}

// FormatOf returns the lowercase extension of path without the dot.
func FormatOf(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

package recording

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"quill/internal/config"
	"quill/internal/logging"
	"quill/internal/media/audioprobe"
	"quill/internal/services"
)

// PartialSuffix marks audio that is still being captured.
const PartialSuffix = ".partial"

const (
	defaultStopTimeout = 5 * time.Second
	minWAVBytes        = 44
)

// ErrRecordingActive is returned when a capture session is already running in
// this process or another one.
var ErrRecordingActive = fmt.Errorf("%w: recording already active", services.ErrDevice)

// Result describes a finalized recording.
type Result struct {
	Path            string
	Device          string
	Bytes           int64
	DurationSeconds float64
	Elapsed         time.Duration
}

// Capture owns the single recording slot and spawns arecord sessions.
type Capture struct {
	binary      string
	sampleRate  int
	channels    int
	lockPath    string
	stopTimeout time.Duration
	lister      *deviceLister
	logger      *slog.Logger

	mu     sync.Mutex
	active *Session
}

// Option customizes a Capture.
type Option func(*Capture)

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Capture) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithStopTimeout bounds how long Stop waits for arecord to exit after SIGINT.
func WithStopTimeout(timeout time.Duration) Option {
	return func(c *Capture) {
		if timeout > 0 {
			c.stopTimeout = timeout
		}
	}
}

// NewCapture builds a Capture from the recording config. lockPath guards the
// recording slot across processes.
func NewCapture(cfg config.Recording, lockPath string, opts ...Option) *Capture {
	binary := strings.TrimSpace(cfg.Binary)
	if binary == "" {
		binary = "arecord"
	}
	c := &Capture{
		binary:      binary,
		sampleRate:  cfg.SampleRate,
		channels:    cfg.Channels,
		lockPath:    lockPath,
		stopTimeout: defaultStopTimeout,
		lister:      newDeviceLister(),
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.NewComponentLogger(c.logger, "recording")
	return c
}

// Devices lists available capture devices.
func (c *Capture) Devices(ctx context.Context) ([]Device, error) {
	devices, err := c.lister.List(ctx)
	if err != nil {
		return nil, services.Wrap(services.ErrDevice, "recording", "list devices", "", err)
	}
	return devices, nil
}

// Start begins capturing from device into dest. Audio is written to a hidden
// partial file next to dest and renamed into place by Session.Stop.
func (c *Capture) Start(_ context.Context, device, dest string) (*Session, error) {
	device = strings.TrimSpace(device)
	if device == "" {
		return nil, services.Wrap(services.ErrDevice, "recording", "start", "no capture device selected", nil)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		return nil, ErrRecordingActive
	}

	lock, err := c.acquireLock()
	if err != nil {
		return nil, err
	}

	partial := PartialPath(dest)
	if err := os.MkdirAll(filepath.Dir(partial), 0o755); err != nil {
		_ = lock.Unlock()
		return nil, services.Wrap(services.ErrFileSystem, "recording", "prepare", filepath.Dir(partial), err)
	}
	_ = os.Remove(partial)

	args := []string{
		"-q",
		"-D", device,
		"-f", "S16_LE",
		"-r", strconv.Itoa(c.sampleRate),
		"-c", strconv.Itoa(c.channels),
		"-t", "wav",
		partial,
	}
	// The session outlives ctx; Stop and Abort end it.
	cmd := exec.Command(c.binary, args...) //nolint:gosec
	session := &Session{
		capture: c,
		cmd:     cmd,
		device:  device,
		partial: partial,
		dest:    dest,
		lock:    lock,
		done:    make(chan struct{}),
	}
	cmd.Stderr = &session.stderr
	if err := cmd.Start(); err != nil {
		_ = lock.Unlock()
		if errors.Is(err, exec.ErrNotFound) {
			return nil, services.Wrap(services.ErrDevice, "recording", "start", c.binary+" not found", err)
		}
		return nil, services.Wrap(services.ErrDevice, "recording", "start", c.binary, err)
	}
	session.started = time.Now()
	go session.wait()
	c.active = session

	c.logger.Info("recording started",
		logging.String("device", device),
		logging.String("path", dest),
		logging.Int("sample_rate", c.sampleRate),
		logging.Int("channels", c.channels),
	)
	return session, nil
}

// Active reports whether a session is running in this process.
func (c *Capture) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

func (c *Capture) acquireLock() (*flock.Flock, error) {
	if strings.TrimSpace(c.lockPath) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "recording", "lock", "lock path not configured", nil)
	}
	if err := os.MkdirAll(filepath.Dir(c.lockPath), 0o755); err != nil {
		return nil, services.Wrap(services.ErrFileSystem, "recording", "lock", c.lockPath, err)
	}
	lock := flock.New(c.lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrFileSystem, "recording", "lock", c.lockPath, err)
	}
	if !ok {
		return nil, ErrRecordingActive
	}
	return lock, nil
}

func (c *Capture) release(s *Session) {
	c.mu.Lock()
	if c.active == s {
		c.active = nil
	}
	c.mu.Unlock()
	if s.lock != nil {
		_ = s.lock.Unlock()
	}
}

// PartialPath returns the staging path used while dest is being captured.
func PartialPath(dest string) string {
	return filepath.Join(filepath.Dir(dest), "."+filepath.Base(dest)+PartialSuffix)
}

// Session is one running arecord process.
type Session struct {
	capture *Capture
	cmd     *exec.Cmd
	device  string
	partial string
	dest    string
	lock    *flock.Flock
	started time.Time
	stderr  bytes.Buffer

	done    chan struct{}
	waitErr error

	once sync.Once
}

func (s *Session) wait() {
	s.waitErr = s.cmd.Wait()
	close(s.done)
}

// Done is closed when the capture process exits.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Path returns the final destination of the recording.
func (s *Session) Path() string {
	return s.dest
}

// Stop interrupts arecord so it finalizes the WAV header, then moves the
// partial file into place.
func (s *Session) Stop() (Result, error) {
	var (
		result Result
		err    error
	)
	s.once.Do(func() {
		defer s.capture.release(s)
		result, err = s.stop()
	})
	if result.Path == "" && err == nil {
		err = services.Wrap(services.ErrDevice, "recording", "stop", "session already finished", nil)
	}
	return result, err
}

func (s *Session) stop() (Result, error) {
	logger := s.capture.logger
	exitedEarly := false
	select {
	case <-s.done:
		exitedEarly = true
	default:
		if err := unix.Kill(s.cmd.Process.Pid, unix.SIGINT); err != nil && !errors.Is(err, unix.ESRCH) {
			logger.Warn("interrupt capture process failed", logging.Error(err))
		}
	}

	timer := time.NewTimer(s.capture.stopTimeout)
	defer timer.Stop()
	select {
	case <-s.done:
	case <-timer.C:
		logging.WarnWithContext(logger, "capture process ignored interrupt; killing", "recording_kill",
			logging.Duration("timeout", s.capture.stopTimeout),
		)
		_ = s.cmd.Process.Kill()
		<-s.done
	}
	elapsed := time.Since(s.started)

	info, statErr := os.Stat(s.partial)
	if statErr != nil || info.Size() <= minWAVBytes {
		_ = os.Remove(s.partial)
		detail := strings.TrimSpace(s.stderr.String())
		if detail == "" && s.waitErr != nil {
			detail = s.waitErr.Error()
		}
		if exitedEarly && detail == "" {
			detail = "capture process exited before stop"
		}
		if detail == "" {
			detail = "no audio captured"
		}
		return Result{}, services.Wrap(services.ErrDevice, "recording", "stop", detail, statErr)
	}

	if err := os.Rename(s.partial, s.dest); err != nil {
		return Result{}, services.Wrap(services.ErrFileSystem, "recording", "finalize", s.dest, err)
	}
	if err := syncDir(filepath.Dir(s.dest)); err != nil {
		logger.Debug("directory sync failed", logging.Error(err))
	}

	result := Result{
		Path:    s.dest,
		Device:  s.device,
		Bytes:   info.Size(),
		Elapsed: elapsed,
	}
	if header, err := audioprobe.ReadWAVFile(s.dest); err == nil {
		result.DurationSeconds = header.DurationSeconds()
	} else {
		logger.Warn("recorded audio header unreadable", logging.String("path", s.dest), logging.Error(err))
	}
	logger.Info("recording stopped",
		logging.String("path", s.dest),
		logging.Float64("duration_seconds", result.DurationSeconds),
		logging.Duration("elapsed", elapsed),
	)
	return result, nil
}

// Abort kills the capture process and discards the partial file.
func (s *Session) Abort() error {
	var err error
	s.once.Do(func() {
		defer s.capture.release(s)
		select {
		case <-s.done:
		default:
			_ = s.cmd.Process.Kill()
			<-s.done
		}
		if removeErr := os.Remove(s.partial); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			err = services.Wrap(services.ErrFileSystem, "recording", "abort", s.partial, removeErr)
		}
	})
	return err
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

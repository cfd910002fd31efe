package recording

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pilebones/go-udev/crawler"
	"github.com/pilebones/go-udev/netlink"

	"quill/internal/config"
	"quill/internal/services"
	"quill/internal/testsupport"
)

func stubArecord(t *testing.T, fixture string) {
	t.Helper()
	script := `out=""
for a in "$@"; do out="$a"; done
trap 'exit 1' INT TERM
cp "` + fixture + `" "$out"
while true; do sleep 0.05; done
`
	testsupport.StubBinaries(t, filepath.Join(t.TempDir(), "bin"), script, "arecord")
}

func newTestCapture(t *testing.T) (*Capture, string) {
	t.Helper()
	cfg := config.Default().Recording
	lock := filepath.Join(t.TempDir(), "state", "recording.lock")
	return NewCapture(cfg, lock, WithStopTimeout(2*time.Second)), lock
}

func waitForFile(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if info, err := os.Stat(path); err == nil && info.Size() > minWAVBytes {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", path)
}

func TestStartStopFinalizesPartialFile(t *testing.T) {
	fixture := filepath.Join(t.TempDir(), "fixture.wav")
	testsupport.WriteWAV(t, fixture, 16000, 1, 1.5)
	stubArecord(t, fixture)

	capture, _ := newTestCapture(t)
	dest := filepath.Join(t.TempDir(), "audio", "abc.wav")
	session, err := capture.Start(context.Background(), "hw:1,0", dest)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	partial := PartialPath(dest)
	if filepath.Base(partial) != ".abc.wav.partial" {
		t.Fatalf("unexpected partial path %s", partial)
	}
	waitForFile(t, partial)
	if _, err := os.Stat(dest); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("destination must not exist while recording: %v", err)
	}

	result, err := session.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if result.Path != dest || result.Device != "hw:1,0" {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.DurationSeconds < 1.49 || result.DurationSeconds > 1.51 {
		t.Fatalf("unexpected duration %v", result.DurationSeconds)
	}
	if _, err := os.Stat(partial); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("partial file should be gone: %v", err)
	}
	if capture.Active() {
		t.Fatal("capture slot should be released")
	}
	if _, err := session.Stop(); err == nil {
		t.Fatal("second Stop should fail")
	}
}

func TestStartIsExclusive(t *testing.T) {
	fixture := filepath.Join(t.TempDir(), "fixture.wav")
	testsupport.WriteWAV(t, fixture, 16000, 1, 0.2)
	stubArecord(t, fixture)

	capture, lock := newTestCapture(t)
	dir := t.TempDir()
	session, err := capture.Start(context.Background(), "hw:0,0", filepath.Join(dir, "a.wav"))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = session.Abort() }()

	if _, err := capture.Start(context.Background(), "hw:0,0", filepath.Join(dir, "b.wav")); !errors.Is(err, ErrRecordingActive) {
		t.Fatalf("expected ErrRecordingActive in-process, got %v", err)
	}

	other := NewCapture(config.Default().Recording, lock)
	_, err = other.Start(context.Background(), "hw:0,0", filepath.Join(dir, "c.wav"))
	if !errors.Is(err, ErrRecordingActive) {
		t.Fatalf("expected ErrRecordingActive across holders, got %v", err)
	}
	if !errors.Is(err, services.ErrDevice) {
		t.Fatalf("ErrRecordingActive should carry the device marker: %v", err)
	}
}

func TestAbortDiscardsPartial(t *testing.T) {
	fixture := filepath.Join(t.TempDir(), "fixture.wav")
	testsupport.WriteWAV(t, fixture, 16000, 1, 0.2)
	stubArecord(t, fixture)

	capture, _ := newTestCapture(t)
	dest := filepath.Join(t.TempDir(), "x.wav")
	session, err := capture.Start(context.Background(), "hw:0,0", dest)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForFile(t, PartialPath(dest))
	if err := session.Abort(); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	for _, path := range []string{dest, PartialPath(dest)} {
		if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("%s should not exist: %v", path, err)
		}
	}
	if capture.Active() {
		t.Fatal("slot should be free after abort")
	}
}

func TestStopReportsDeviceFailure(t *testing.T) {
	testsupport.StubBinaries(t, filepath.Join(t.TempDir(), "bin"), "echo 'audio open error: No such device' >&2\nexit 1\n", "arecord")
	capture, _ := newTestCapture(t)
	dest := filepath.Join(t.TempDir(), "x.wav")
	session, err := capture.Start(context.Background(), "hw:9,0", dest)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-session.Done()
	_, err = session.Stop()
	if !errors.Is(err, services.ErrDevice) {
		t.Fatalf("expected ErrDevice, got %v", err)
	}
	if _, statErr := os.Stat(dest); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("no audio should be finalized: %v", statErr)
	}
}

func TestStartWithoutDevice(t *testing.T) {
	capture, _ := newTestCapture(t)
	if _, err := capture.Start(context.Background(), " ", filepath.Join(t.TempDir(), "x.wav")); !errors.Is(err, services.ErrDevice) {
		t.Fatalf("expected ErrDevice, got %v", err)
	}
}

func TestDevicesParsesCapturePCMNodes(t *testing.T) {
	sysfs := t.TempDir()
	testsupport.WriteText(t, filepath.Join(sysfs, "class", "sound", "card1", "id"), "USB\n")

	capture, _ := newTestCapture(t)
	capture.lister = &deviceLister{
		sysfsRoot: sysfs,
		crawl: func(queue chan crawler.Device, errs chan error, matcher netlink.Matcher) chan struct{} {
			quit := make(chan struct{})
			go func() {
				defer close(queue)
				for _, dev := range []crawler.Device{
					{KObj: "/devices/usb/sound/card1/pcmC1D0c", Env: map[string]string{"DEVNAME": "snd/pcmC1D0c"}},
					{KObj: "/devices/pci/sound/card0/pcmC0D2c", Env: map[string]string{"DEVNAME": "snd/pcmC0D2c"}},
					{KObj: "/devices/pci/sound/card0/pcmC0D0p", Env: map[string]string{"DEVNAME": "snd/pcmC0D0p"}},
					{KObj: "/devices/usb/sound/card1/pcmC1D0c", Env: map[string]string{"DEVNAME": "snd/pcmC1D0c"}},
				} {
					select {
					case queue <- dev:
					case <-quit:
						return
					}
				}
			}()
			return quit
		},
	}

	devices, err := capture.Devices(context.Background())
	if err != nil {
		t.Fatalf("Devices: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("expected two capture devices, got %+v", devices)
	}
	if devices[0].ID != "hw:0,2" || devices[1].ID != "hw:1,0" {
		t.Fatalf("unexpected order: %+v", devices)
	}
	if devices[1].Name != "USB" {
		t.Fatalf("expected card name, got %q", devices[1].Name)
	}
}

func TestDevicesPropagatesCrawlErrors(t *testing.T) {
	capture, _ := newTestCapture(t)
	capture.lister = &deviceLister{
		sysfsRoot: t.TempDir(),
		crawl: func(queue chan crawler.Device, errs chan error, matcher netlink.Matcher) chan struct{} {
			errs <- errors.New("permission denied")
			return make(chan struct{})
		},
	}
	if _, err := capture.Devices(context.Background()); !errors.Is(err, services.ErrDevice) {
		t.Fatalf("expected ErrDevice, got %v", err)
	}
}

package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"quill/internal/config"
	"quill/internal/dataset"
	"quill/internal/deps"
	"quill/internal/questions"
	"quill/internal/recording"
)

const endpointTimeout = 10 * time.Second

// DeviceLister enumerates capture devices. recording.Capture implements it.
type DeviceLister interface {
	Devices(ctx context.Context) ([]recording.Device, error)
}

// Endpoint names an authenticated HTTP service.
type Endpoint struct {
	Name    string
	BaseURL string
	APIKey  string
}

// CheckSystemDeps resolves the recorder and audio probe binaries.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	return deps.Check(ctx, []deps.Requirement{
		{
			Name:        "arecord",
			Command:     cfg.Recording.Binary,
			VersionArgs: []string{"--version"},
			Purpose:     "required for recording answers",
		},
		{
			Name:        "FFprobe",
			Command:     cfg.FFprobeBinary(),
			VersionArgs: []string{"-version"},
			Purpose:     "audio inspection; WAV headers are read natively without it",
			Optional:    true,
		},
	})
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckQuestions verifies that questions.json loads.
func CheckQuestions(layout dataset.Layout) Result {
	const name = "Questions"
	reg, err := questions.Load(layout.QuestionsPath())
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	recorded := 0
	for _, q := range reg.All() {
		if q.HasRecording {
			recorded++
		}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d questions, %d recorded", reg.Len(), recorded)}
}

// CheckDevices verifies that at least one capture device is present.
func CheckDevices(ctx context.Context, lister DeviceLister) Result {
	const name = "Capture devices"
	devices, err := lister.Devices(ctx)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	if len(devices) == 0 {
		return Result{Name: name, Detail: "no capture device found"}
	}
	ids := make([]string, 0, len(devices))
	for _, d := range devices {
		ids = append(ids, d.ID)
	}
	return Result{Name: name, Passed: true, Detail: strings.Join(ids, ", ")}
}

// CheckAPIKey verifies only that a key is configured.
func CheckAPIKey(e Endpoint) Result {
	if strings.TrimSpace(e.APIKey) == "" {
		return Result{Name: e.Name, Detail: "API key missing"}
	}
	return Result{Name: e.Name, Passed: true, Detail: "API key set (not verified offline)"}
}

// modelsURL maps a configured request URL such as
// https://api.openai.com/v1/audio/transcriptions to its /v1/models listing.
func modelsURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("missing base url")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid base url %q", raw)
	}
	path := strings.TrimRight(u.Path, "/")
	if idx := strings.Index(path, "/v1"); idx >= 0 {
		path = path[:idx+len("/v1")]
	}
	u.Path = path + "/models"
	u.RawQuery = ""
	return u.String(), nil
}

// CheckEndpoint lists models at the endpoint to verify reachability and the
// key. It makes a single attempt.
func CheckEndpoint(ctx context.Context, e Endpoint) Result {
	if strings.TrimSpace(e.APIKey) == "" {
		return Result{Name: e.Name, Detail: "API key missing"}
	}
	target, err := modelsURL(e.BaseURL)
	if err != nil {
		return Result{Name: e.Name, Detail: err.Error()}
	}

	checkCtx, cancel := context.WithTimeout(ctx, endpointTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, target, nil)
	if err != nil {
		return Result{Name: e.Name, Detail: fmt.Sprintf("auth check failed (%v)", err)}
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(e.APIKey))

	resp, err := (&http.Client{Timeout: endpointTimeout}).Do(req)
	if err != nil {
		return Result{Name: e.Name, Detail: summarizeError(err)}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return Result{Name: e.Name, Passed: true, Detail: "API reachable"}
	case http.StatusUnauthorized, http.StatusForbidden:
		return Result{Name: e.Name, Detail: "auth failed (invalid api key)"}
	default:
		return Result{Name: e.Name, Detail: fmt.Sprintf("auth check failed (%d)", resp.StatusCode)}
	}
}

func summarizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "check timed out (API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "check timed out (API unreachable)"
	}
	return err.Error()
}

package hf

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"quill/internal/services"
)

const (
	serviceName        = "sync"
	defaultHTTPTimeout = 600 * time.Second
	defaultEndpoint    = "https://huggingface.co"
	defaultRevision    = "main"
	maxResponseBytes   = 4 << 20
	sampleBytes        = 512
	preuploadBatch     = 256
	lfsMediaType       = "application/vnd.git-lfs+json"
)

// Config captures the settings required to push to a dataset repository.
type Config struct {
	Endpoint       string
	Token          string
	Repo           string
	Revision       string
	TimeoutSeconds int
}

// File is one local file destined for Path in the repository.
type File struct {
	Path      string `json:"path"`
	LocalPath string `json:"local_path"`
	Size      int64  `json:"size"`
}

// CommitResult summarizes a finished commit.
type CommitResult struct {
	URL      string `json:"commit_url"`
	OID      string `json:"commit_oid"`
	Regular  int    `json:"regular_files"`
	LFS      int    `json:"lfs_files"`
	Uploaded int    `json:"lfs_uploaded"`
	Ignored  int    `json:"ignored"`
}

// Client talks to the Hugging Face Hub HTTP API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a Hub client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			Endpoint:       strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/"),
			Token:          strings.TrimSpace(cfg.Token),
			Repo:           strings.Trim(strings.TrimSpace(cfg.Repo), "/"),
			Revision:       strings.TrimSpace(cfg.Revision),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.Endpoint == "" {
		client.cfg.Endpoint = defaultEndpoint
	}
	if client.cfg.Revision == "" {
		client.cfg.Revision = defaultRevision
	}
	return client
}

// RepoURL is the browsable address of the dataset repository.
func (c *Client) RepoURL() string {
	return c.cfg.Endpoint + "/datasets/" + c.cfg.Repo
}

// Commit uploads files as a single commit with the given summary.
func (c *Client) Commit(ctx context.Context, files []File, summary string) (CommitResult, error) {
	var result CommitResult
	if c.cfg.Token == "" {
		return result, services.Wrap(services.ErrConfiguration, serviceName, "commit", "token required", nil)
	}
	if c.cfg.Repo == "" {
		return result, services.Wrap(services.ErrConfiguration, serviceName, "commit", "repo required", nil)
	}
	if len(files) == 0 {
		return result, services.Wrap(services.ErrEmptyExport, serviceName, "commit", "no files to upload", nil)
	}

	modes, err := c.preupload(ctx, files)
	if err != nil {
		return result, err
	}

	var regular, lfs []File
	oids := make(map[string]lfsObject)
	for _, f := range files {
		mode, ok := modes[f.Path]
		switch {
		case !ok || mode.ShouldIgnore:
			result.Ignored++
		case mode.UploadMode == "lfs":
			obj, err := hashFile(f)
			if err != nil {
				return result, err
			}
			oids[f.Path] = obj
			lfs = append(lfs, f)
		default:
			regular = append(regular, f)
		}
	}
	if len(regular)+len(lfs) == 0 {
		return result, services.Wrap(services.ErrEmptyExport, serviceName, "commit", "the hub ignored every file", nil)
	}

	uploaded, err := c.uploadLFS(ctx, lfs, oids)
	if err != nil {
		return result, err
	}

	body, err := commitPayload(summary, regular, lfs, oids)
	if err != nil {
		return result, err
	}
	var resp commitResponse
	endpoint := c.apiURL("commit")
	if err := c.post(ctx, "commit", endpoint, "application/x-ndjson", body, &resp); err != nil {
		return result, err
	}
	result.URL = resp.CommitURL
	result.OID = resp.CommitOID
	result.Regular = len(regular)
	result.LFS = len(lfs)
	result.Uploaded = uploaded
	return result, nil
}

type preuploadFile struct {
	Path   string `json:"path"`
	Sample string `json:"sample"`
	Size   int64  `json:"size"`
}

type preuploadMode struct {
	Path         string `json:"path"`
	UploadMode   string `json:"uploadMode"`
	ShouldIgnore bool   `json:"shouldIgnore"`
}

func (c *Client) preupload(ctx context.Context, files []File) (map[string]preuploadMode, error) {
	modes := make(map[string]preuploadMode, len(files))
	for start := 0; start < len(files); start += preuploadBatch {
		batch := files[start:min(start+preuploadBatch, len(files))]
		request := struct {
			Files []preuploadFile `json:"files"`
		}{Files: make([]preuploadFile, 0, len(batch))}
		for _, f := range batch {
			sample, err := readSample(f)
			if err != nil {
				return nil, err
			}
			request.Files = append(request.Files, preuploadFile{Path: f.Path, Sample: sample, Size: f.Size})
		}
		encoded, err := json.Marshal(request)
		if err != nil {
			return nil, fmt.Errorf("sync preupload: encode body: %w", err)
		}
		var resp struct {
			Files []preuploadMode `json:"files"`
		}
		if err := c.post(ctx, "preupload", c.apiURL("preupload"), "application/json", encoded, &resp); err != nil {
			return nil, err
		}
		for _, mode := range resp.Files {
			modes[mode.Path] = mode
		}
	}
	return modes, nil
}

type lfsObject struct {
	OID  string `json:"oid"`
	Size int64  `json:"size"`
}

type lfsAction struct {
	Href   string            `json:"href"`
	Header map[string]string `json:"header"`
}

type lfsBatchResponse struct {
	Objects []struct {
		OID     string               `json:"oid"`
		Size    int64                `json:"size"`
		Actions map[string]lfsAction `json:"actions"`
		Error   *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"objects"`
}

// uploadLFS pushes the blobs the Hub does not hold yet and returns how many
// were sent.
func (c *Client) uploadLFS(ctx context.Context, files []File, oids map[string]lfsObject) (int, error) {
	if len(files) == 0 {
		return 0, nil
	}
	byOID := make(map[string]File, len(files))
	objects := make([]lfsObject, 0, len(files))
	for _, f := range files {
		obj := oids[f.Path]
		if _, dup := byOID[obj.OID]; dup {
			continue
		}
		byOID[obj.OID] = f
		objects = append(objects, obj)
	}
	request := map[string]any{
		"operation": "upload",
		"transfers": []string{"basic"},
		"objects":   objects,
		"hash_algo": "sha256",
		"ref":       map[string]string{"name": c.cfg.Revision},
	}
	encoded, err := json.Marshal(request)
	if err != nil {
		return 0, fmt.Errorf("sync lfs batch: encode body: %w", err)
	}
	var batch lfsBatchResponse
	endpoint := fmt.Sprintf("%s/datasets/%s.git/info/lfs/objects/batch", c.cfg.Endpoint, c.cfg.Repo)
	if err := c.post(ctx, "lfs batch", endpoint, lfsMediaType, encoded, &batch); err != nil {
		return 0, err
	}

	uploaded := 0
	for _, obj := range batch.Objects {
		if obj.Error != nil {
			return uploaded, services.Wrap(services.ErrExternalTool, serviceName, "lfs batch",
				fmt.Sprintf("object %s: %d %s", obj.OID, obj.Error.Code, obj.Error.Message), nil)
		}
		upload, ok := obj.Actions["upload"]
		if !ok {
			continue
		}
		f, ok := byOID[obj.OID]
		if !ok {
			return uploaded, services.Wrap(services.ErrExternalTool, serviceName, "lfs batch", "unexpected object "+obj.OID, nil)
		}
		if err := c.putObject(ctx, upload, f); err != nil {
			return uploaded, err
		}
		if verify, ok := obj.Actions["verify"]; ok {
			if err := c.verifyObject(ctx, verify, lfsObject{OID: obj.OID, Size: obj.Size}); err != nil {
				return uploaded, err
			}
		}
		uploaded++
	}
	return uploaded, nil
}

func (c *Client) putObject(ctx context.Context, action lfsAction, f File) error {
	file, err := os.Open(f.LocalPath)
	if err != nil {
		return services.Wrap(services.ErrFileSystem, serviceName, "open", f.LocalPath, err)
	}
	defer file.Close()
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, action.Href, file)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, serviceName, "lfs upload", action.Href, err)
	}
	req.ContentLength = f.Size
	for key, value := range action.Header {
		req.Header.Set(key, value)
	}
	return c.do(req, "lfs upload", nil)
}

func (c *Client) verifyObject(ctx context.Context, action lfsAction, obj lfsObject) error {
	encoded, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("sync lfs verify: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, action.Href, bytes.NewReader(encoded))
	if err != nil {
		return services.Wrap(services.ErrExternalTool, serviceName, "lfs verify", action.Href, err)
	}
	req.Header.Set("Content-Type", lfsMediaType)
	req.Header.Set("Accept", lfsMediaType)
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	for key, value := range action.Header {
		req.Header.Set(key, value)
	}
	return c.do(req, "lfs verify", nil)
}

type commitLine struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

type commitResponse struct {
	CommitURL string `json:"commitUrl"`
	CommitOID string `json:"commitOid"`
}

func commitPayload(summary string, regular, lfs []File, oids map[string]lfsObject) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	header := commitLine{Key: "header", Value: map[string]string{"summary": summary, "description": ""}}
	if err := enc.Encode(header); err != nil {
		return nil, fmt.Errorf("sync commit: encode header: %w", err)
	}
	for _, f := range regular {
		data, err := os.ReadFile(f.LocalPath)
		if err != nil {
			return nil, services.Wrap(services.ErrFileSystem, serviceName, "read", f.LocalPath, err)
		}
		line := commitLine{Key: "file", Value: map[string]string{
			"content":  base64.StdEncoding.EncodeToString(data),
			"path":     f.Path,
			"encoding": "base64",
		}}
		if err := enc.Encode(line); err != nil {
			return nil, fmt.Errorf("sync commit: encode %s: %w", f.Path, err)
		}
	}
	for _, f := range lfs {
		obj := oids[f.Path]
		line := commitLine{Key: "lfsFile", Value: map[string]any{
			"path": f.Path,
			"algo": "sha256",
			"oid":  obj.OID,
			"size": obj.Size,
		}}
		if err := enc.Encode(line); err != nil {
			return nil, fmt.Errorf("sync commit: encode %s: %w", f.Path, err)
		}
	}
	return buf.Bytes(), nil
}

func (c *Client) apiURL(action string) string {
	return fmt.Sprintf("%s/api/datasets/%s/%s/%s", c.cfg.Endpoint, c.cfg.Repo, action, url.PathEscape(c.cfg.Revision))
}

func (c *Client) post(ctx context.Context, op, endpoint, contentType string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return services.Wrap(services.ErrConfiguration, serviceName, "new request", endpoint, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Content-Type", contentType)
	if contentType == lfsMediaType {
		req.Header.Set("Accept", lfsMediaType)
	}
	return c.do(req, op, out)
}

func (c *Client) do(req *http.Request, op string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.ClassifyTransport(serviceName, op, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return services.ClassifyTransport(serviceName, "read body", err)
	}
	if err := services.CheckResponse(serviceName, op, resp, body); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return services.Wrap(services.ErrExternalTool, serviceName, "decode "+op, summarize(string(body)), err)
	}
	return nil
}

func readSample(f File) (string, error) {
	file, err := os.Open(f.LocalPath)
	if err != nil {
		return "", services.Wrap(services.ErrFileSystem, serviceName, "open", f.LocalPath, err)
	}
	defer file.Close()
	head := make([]byte, sampleBytes)
	n, err := io.ReadFull(file, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", services.Wrap(services.ErrFileSystem, serviceName, "read", f.LocalPath, err)
	}
	return base64.StdEncoding.EncodeToString(head[:n]), nil
}

func hashFile(f File) (lfsObject, error) {
	file, err := os.Open(f.LocalPath)
	if err != nil {
		return lfsObject{}, services.Wrap(services.ErrFileSystem, serviceName, "open", f.LocalPath, err)
	}
	defer file.Close()
	h := sha256.New()
	size, err := io.Copy(h, file)
	if err != nil {
		return lfsObject{}, services.Wrap(services.ErrFileSystem, serviceName, "hash", f.LocalPath, err)
	}
	return lfsObject{OID: hex.EncodeToString(h.Sum(nil)), Size: size}, nil
}

func summarize(content string) string {
	clean := strings.Join(strings.Fields(content), " ")
	if clean == "" {
		return "<empty>"
	}
	const limit = 160
	runes := []rune(clean)
	if len(runes) > limit {
		clean = string(runes[:limit]) + "..."
	}
	return clean
}

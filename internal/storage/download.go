package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"storyboard/internal/infra"
)

const maxDownloadBytes = 512 << 20 // provider video results stay well under this

// Downloader fetches generation results from provider URLs and persists them
// into a FileStore. Provider result URLs are typically short-lived, so batch
// jobs download eagerly on completion.
type Downloader struct {
	store  *FileStore
	client *http.Client
	logger *infra.Logger
}

// DownloaderOptions configures a Downloader.
type DownloaderOptions struct {
	Store      *FileStore
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// NewDownloader builds a Downloader over the given store.
func NewDownloader(opts DownloaderOptions) (*Downloader, error) {
	if opts.Store == nil {
		return nil, errors.New("storage: downloader requires a store")
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	logger := opts.Logger
	if logger == nil {
		l := infra.Logger(zerolog.Nop())
		logger = &l
	}
	return &Downloader{store: opts.Store, client: client, logger: logger}, nil
}

// Fetch downloads the resource at rawURL and stores it under a key derived
// from the URL path. It returns the storage key of the saved file.
func (d *Downloader) Fetch(ctx context.Context, rawURL string) (string, error) {
	return d.FetchInto(ctx, rawURL, "")
}

// FetchInto downloads the resource at rawURL and stores it under the given
// key. An empty key derives one from the URL path.
func (d *Downloader) FetchInto(ctx context.Context, rawURL, key string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", fmt.Errorf("storage: invalid result url %q", rawURL)
	}
	if key == "" {
		key = deriveKey(parsed)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("storage: build download request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("storage: download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("storage: download status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes+1))
	if err != nil {
		return "", fmt.Errorf("storage: read download body: %w", err)
	}
	if len(data) > maxDownloadBytes {
		return "", errors.New("storage: download exceeds size limit")
	}

	savedKey, err := d.store.Write(ctx, key, data)
	if err != nil {
		return "", err
	}
	d.logger.Debug().
		Str("key", savedKey).
		Int("bytes", len(data)).
		Msg("result downloaded")
	return savedKey, nil
}

func deriveKey(parsed *url.URL) string {
	name := path.Base(parsed.Path)
	if name == "" || name == "." || name == "/" {
		name = "result"
	}
	if !strings.Contains(name, ".") {
		name += ".bin"
	}
	return path.Join("generated", "videos", name)
}

// Package fetch downloads bootstrap artifacts and refuses to hand them to the
// caller until their content digest matches a pinned value. A mismatch is
// treated as potential tampering: the run aborts, nothing retries.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"alpenroot/internal/logging"
)

// DefaultConnectTimeout bounds connection establishment for a single fetch.
const DefaultConnectTimeout = 10 * time.Second

// TransportError reports a network-level download failure.
type TransportError struct {
	URI string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("download %s: %v", e.URI, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IntegrityError reports a digest mismatch between a downloaded artifact and
// its pinned value.
type IntegrityError struct {
	URI      string
	Expected string
	Actual   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("digest mismatch for %s: expected %s, got %s", e.URI, e.Expected, e.Actual)
}

// Artifact pairs a source URI with the SHA-256 digest its content must have.
type Artifact struct {
	URI    string
	SHA256 string
}

// Name returns the artifact's file name, derived from its URI path.
func (a Artifact) Name() string {
	return path.Base(a.URI)
}

// Fetcher downloads artifacts into a destination directory after verifying
// their digests.
type Fetcher interface {
	Fetch(ctx context.Context, artifact Artifact, destDir string) (string, error)
}

// HTTPFetcher implements Fetcher over plain HTTP(S) with a bounded connection
// timeout and no retry policy.
type HTTPFetcher struct {
	Logger *slog.Logger

	// Client overrides the HTTP client used for downloads. Nil means a
	// client with DefaultConnectTimeout for connection establishment.
	Client *http.Client
}

// Fetch downloads the artifact into destDir, verifies its SHA-256 digest, and
// returns the final path. The download lands in a uniquely named staging file
// first so a transport failure or digest mismatch never clobbers a previously
// verified file of the same name. The verified file is left on disk for the
// caller.
func (f *HTTPFetcher) Fetch(ctx context.Context, artifact Artifact, destDir string) (string, error) {
	logger := logging.Ensure(f.Logger).With("component", "fetch")

	if artifact.URI == "" {
		return "", fmt.Errorf("artifact URI is required")
	}
	expected := strings.ToLower(strings.TrimSpace(artifact.SHA256))
	if expected == "" {
		return "", fmt.Errorf("artifact %s: expected digest is required", artifact.URI)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create destination directory: %w", err)
	}

	logger.Info("downloading artifact", "uri", artifact.URI)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, artifact.URI, nil)
	if err != nil {
		return "", fmt.Errorf("build request for %s: %w", artifact.URI, err)
	}

	resp, err := f.client().Do(req)
	if err != nil {
		return "", &TransportError{URI: artifact.URI, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &TransportError{
			URI: artifact.URI,
			Err: fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	stagingPath := filepath.Join(destDir, "."+uuid.NewString()+".partial")
	staging, err := os.OpenFile(stagingPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("create staging file: %w", err)
	}

	digest := sha256.New()
	if _, err := io.Copy(io.MultiWriter(staging, digest), resp.Body); err != nil {
		staging.Close()
		os.Remove(stagingPath)
		return "", &TransportError{URI: artifact.URI, Err: err}
	}
	if err := staging.Close(); err != nil {
		os.Remove(stagingPath)
		return "", fmt.Errorf("close staging file: %w", err)
	}

	actual := hex.EncodeToString(digest.Sum(nil))
	if actual != expected {
		os.Remove(stagingPath)
		return "", &IntegrityError{URI: artifact.URI, Expected: expected, Actual: actual}
	}

	finalPath := filepath.Join(destDir, artifact.Name())
	if err := os.Rename(stagingPath, finalPath); err != nil {
		os.Remove(stagingPath)
		return "", fmt.Errorf("finalize %s: %w", finalPath, err)
	}

	logger.Info("artifact verified", "path", finalPath, "sha256", actual)
	return finalPath, nil
}

func (f *HTTPFetcher) client() *http.Client {
	if f.Client != nil {
		return f.Client
	}
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: DefaultConnectTimeout,
			}).DialContext,
			TLSHandshakeTimeout: DefaultConnectTimeout,
		},
	}
}

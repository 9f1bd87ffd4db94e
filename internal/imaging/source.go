package imaging

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// keyLength is the number of hex characters of the SHA-256 digest kept as cache key.
const keyLength = 13

// CacheKey derives the on-disk cache name of an image from its URL.
func CacheKey(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:])[:keyLength]
}

// HTTPClient is the subset of *http.Client used to download images.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Source is where the pixels of one image come from.
type Source interface {
	// Key names the image in the caches. Equal keys mean equal content.
	Key() string
	// Open returns the encoded image bytes. The caller closes the reader.
	Open(ctx context.Context) (io.ReadCloser, error)
	// String is the location reported in logs and errors.
	String() string
}

// RemoteSource downloads an image over HTTP(S).
type RemoteSource struct {
	URL    string
	Client HTTPClient
}

func (s *RemoteSource) Key() string    { return CacheKey(s.URL) }
func (s *RemoteSource) String() string { return s.URL }

// Open issues a GET request bound to ctx. Any status >= 400 is an error.
func (s *RemoteSource) Open(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", s.URL, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to fetch %s: unexpected status %s", s.URL, resp.Status)
	}
	return resp.Body, nil
}

// LocalSource reads an image from the local filesystem.
type LocalSource struct {
	Root string
	Name string
}

// Path is the file the source reads.
func (s *LocalSource) Path() string {
	if s.Root == "" || filepath.IsAbs(s.Name) {
		return s.Name
	}
	return filepath.Join(s.Root, s.Name)
}

func (s *LocalSource) Key() string    { return CacheKey(s.Path()) }
func (s *LocalSource) String() string { return s.Path() }

func (s *LocalSource) Open(_ context.Context) (io.ReadCloser, error) {
	f, err := os.Open(s.Path())
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	return f, nil
}

// SourceFor picks the source variant for rawURL: http and https URLs are
// downloaded, file:// URLs and bare paths are read from disk, relative paths
// being resolved against root.
func SourceFor(rawURL, root string, client HTTPClient) Source {
	if u, err := url.Parse(rawURL); err == nil {
		switch strings.ToLower(u.Scheme) {
		case "http", "https":
			return &RemoteSource{URL: rawURL, Client: client}
		case "file":
			return &LocalSource{Name: filepath.FromSlash(u.Path)}
		}
	}
	return &LocalSource{Root: root, Name: rawURL}
}

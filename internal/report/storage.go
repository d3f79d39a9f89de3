package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Ichinga-Samuel/MonieWatch/pkg/logging"
)

// Upload describes a stored artifact.
type Upload struct {
	// Name is the artifact name without its file extension.
	Name string
	// URL is the public link to the stored artifact.
	URL string
}

// Uploader stores rendered artifacts.
type Uploader interface {
	Upload(ctx context.Context, artifact *Artifact) (*Upload, error)
}

// HTTPStorage uploads artifacts via HTTP PUT to an object store bucket.
type HTTPStorage struct {
	bucketURL  string
	publicBase string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewHTTPStorage creates an uploader that PUTs artifacts under bucketURL.
// publicBase is the base of the links handed to recipients; when empty,
// bucketURL is used for both.
func NewHTTPStorage(bucketURL, publicBase string) *HTTPStorage {
	if publicBase == "" {
		publicBase = bucketURL
	}
	return &HTTPStorage{
		bucketURL:  strings.TrimRight(bucketURL, "/"),
		publicBase: strings.TrimRight(publicBase, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logging.NewLogger("storage"),
	}
}

func (s *HTTPStorage) Upload(ctx context.Context, artifact *Artifact) (*Upload, error) {
	target := s.bucketURL + "/" + url.PathEscape(artifact.Name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(artifact.Data))
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", artifact.Name, err)
	}
	req.Header.Set("Content-Type", "application/pdf")
	req.ContentLength = int64(len(artifact.Data))

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", artifact.Name, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("upload %s: unexpected status %d", artifact.Name, resp.StatusCode)
	}

	s.logger.Debug().
		Str("artifact", artifact.Name).
		Int("size", len(artifact.Data)).
		Msg("Artifact uploaded")

	return &Upload{
		Name: strings.TrimSuffix(artifact.Name, ".pdf"),
		URL:  s.publicBase + "/" + url.PathEscape(artifact.Name),
	}, nil
}

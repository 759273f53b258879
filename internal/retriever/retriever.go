package retriever

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/wildernesslabs/meadowd/internal/logging"
	"github.com/wildernesslabs/meadowd/internal/telemetry"
	"github.com/wildernesslabs/meadowd/internal/types"
)

// DefaultTimeout bounds a single download attempt.
const DefaultTimeout = 10 * time.Minute

// Retriever fetches package files over HTTP.
type Retriever struct {
	client *http.Client
}

// New returns a Retriever with a client timeout suitable for large package
// downloads.
func New() *Retriever {
	return &Retriever{
		client: &http.Client{Timeout: DefaultTimeout},
	}
}

// Fetch downloads descriptor's package to destPath, authenticating with
// bearerToken. destPath's parent directory must already exist — callers
// pass the store's update.mpak path for the descriptor. The body is written
// to destPath+".tmp" first and renamed onto destPath once complete.
func (r *Retriever) Fetch(ctx context.Context, descriptor types.UpdateDescriptor, bearerToken, destPath string) (err error) {
	logger := logging.WithMpakID(descriptor.MpakID)

	start := time.Now()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		telemetry.DownloadsTotal.WithLabelValues(outcome).Inc()
		telemetry.DownloadDuration.Observe(time.Since(start).Seconds())
	}()

	url := descriptor.DownloadURL()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return types.NewError(types.ErrorKindIOFailure, fmt.Errorf("build download request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+bearerToken)

	resp, err := r.client.Do(req)
	if err != nil {
		return types.NewError(types.ErrorKindIOFailure, fmt.Errorf("download %s: %w", url, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.NewHTTPStatusError(resp.StatusCode, fmt.Errorf("download %s", url))
	}

	tmpPath := destPath + ".tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return types.NewError(types.ErrorKindIOFailure, fmt.Errorf("create %s: %w", tmpPath, err))
	}

	written, err := io.Copy(out, resp.Body)
	if err != nil {
		out.Close()
		os.Remove(tmpPath)
		return types.NewError(types.ErrorKindIOFailure, fmt.Errorf("write %s: %w", tmpPath, err))
	}
	if err := out.Close(); err != nil {
		os.Remove(tmpPath)
		return types.NewError(types.ErrorKindIOFailure, fmt.Errorf("close %s: %w", tmpPath, err))
	}

	// A truncated transfer must never leave a partial file at destPath;
	// rename only happens once the full body has been written and closed.
	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return types.NewError(types.ErrorKindIOFailure, fmt.Errorf("rename %s into place: %w", tmpPath, err))
	}

	logger.Info().
		Int64("bytes", written).
		Dur("elapsed", time.Since(start)).
		Msg("package retrieved")

	return nil
}

// Package download implements resumable, checksum-verified model
// downloads with exponential backoff, per spec.md §4.3.
package download

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/voiced-ai/voiced/errs"
	"github.com/voiced-ai/voiced/internal/checksum"
	"github.com/voiced-ai/voiced/internal/httpclient"
	"github.com/voiced-ai/voiced/internal/metrics"
)

// MaxRetries bounds retry attempts after the initial try.
const MaxRetries = 3

// bufferSize is the fixed-size streaming buffer (spec.md §4.3: "implementation-defined, e.g. 8 KiB").
const bufferSize = 8 * 1024

// BackoffDelay returns the exponential backoff delay for a given retry
// attempt (0-indexed): min(1000*2^attempt, 30000) milliseconds.
func BackoffDelay(attempt int) time.Duration {
	ms := math.Min(1000*math.Pow(2, float64(attempt)), 30000)
	return time.Duration(ms) * time.Millisecond
}

// ProgressFunc reports download progress in [0.0, 1.0].
type ProgressFunc func(progress float64)

// Request describes a single download.
type Request struct {
	URL            string
	Destination    string
	ExpectedSize   int64
	ExpectedSHA256 string
	OnProgress     ProgressFunc
}

// Downloader runs downloads with a bounded concurrency of in-flight transfers.
type Downloader struct {
	client *httpclient.Client
	sem    *semaphore.Weighted
}

// New creates a Downloader that allows at most maxConcurrent simultaneous downloads.
func New(client *httpclient.Client, maxConcurrent int64) *Downloader {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Downloader{client: client, sem: semaphore.NewWeighted(maxConcurrent)}
}

// Run performs the download described by req, retrying transient failures
// with exponential backoff. The temp file is always cleaned up on failure
// or cancellation; only a verified file is renamed into place.
func (d *Downloader) Run(ctx context.Context, req Request) *errs.Error {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return errs.New(errs.OperationCancelled, "download was cancelled before starting", err.Error())
	}
	defer d.sem.Release(1)

	tmpPath := req.Destination + ".tmp"

	var lastErr *errs.Error
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				os.Remove(tmpPath)
				return errs.New(errs.OperationCancelled, "download was cancelled during backoff wait", ctx.Err().Error())
			case <-time.After(BackoffDelay(attempt - 1)):
			}
		}

		err := d.attempt(ctx, req, tmpPath)
		if err == nil {
			return d.finalize(req, tmpPath)
		}
		lastErr = err
		if !err.Retryable() {
			os.Remove(tmpPath)
			return err
		}
	}

	os.Remove(tmpPath)
	return lastErr
}

// attempt streams one resumable GET into tmpPath, reporting monotonic progress.
func (d *Downloader) attempt(ctx context.Context, req Request, tmpPath string) *errs.Error {
	offset := resumeOffset(tmpPath)

	resp, err := d.client.Get(ctx, req.URL, offset)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	flags := os.O_CREATE | os.O_WRONLY
	if offset > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, ferr := os.OpenFile(tmpPath, flags, 0o644)
	if ferr != nil {
		return errs.New(errs.StorageWriteError, "could not open the temp file for writing", ferr.Error())
	}
	defer f.Close()

	bytesSoFar := offset
	buf := make([]byte, bufferSize)
	for {
		select {
		case <-ctx.Done():
			return errs.New(errs.OperationCancelled, "download was cancelled mid-transfer", ctx.Err().Error())
		default:
		}

		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return errs.New(errs.StorageWriteError, "writing downloaded bytes to disk failed", werr.Error())
			}
			bytesSoFar += int64(n)
			metrics.DownloadBytesTotal.Add(float64(n))
			reportProgress(req.OnProgress, bytesSoFar, req.ExpectedSize)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return errs.New(errs.NetworkUnreachable, "the connection was interrupted mid-download", rerr.Error()).WithRecovery("retry the download")
		}
	}
	return nil
}

// finalize verifies the checksum and atomically renames the temp file into place.
func (d *Downloader) finalize(req Request, tmpPath string) *errs.Error {
	sum, err := checksum.HashFile(tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		return errs.New(errs.StorageReadError, "could not read back the downloaded file to verify it", err.Error())
	}
	if sum != req.ExpectedSHA256 {
		os.Remove(tmpPath)
		return errs.New(
			errs.ModelFileCorrupted,
			"downloaded file failed checksum verification",
			fmt.Sprintf("expected sha256 %s, got %s", req.ExpectedSHA256, sum),
		).WithRecovery("re-download the model")
	}
	if err := os.Rename(tmpPath, req.Destination); err != nil {
		os.Remove(tmpPath)
		return errs.New(errs.StorageWriteError, "could not move the verified file into place", err.Error())
	}
	if req.OnProgress != nil {
		req.OnProgress(1.0)
	}
	return nil
}

func resumeOffset(tmpPath string) int64 {
	info, err := os.Stat(tmpPath)
	if err != nil {
		return 0
	}
	return info.Size()
}

func reportProgress(cb ProgressFunc, bytesSoFar, expectedSize int64) {
	if cb == nil || expectedSize <= 0 {
		return
	}
	progress := float64(bytesSoFar) / float64(expectedSize)
	if progress > 1.0 {
		progress = 1.0
	}
	cb(progress)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/image/draw"

	"github.com/artworkup/api/internal/client"
	"github.com/artworkup/api/internal/retry"
)

const (
	downloadChunkSize  = 1024
	resizedJPEGQuality = 90
)

// Fetcher downloads artwork images to local files.
type Fetcher struct {
	httpClient *http.Client
	policy     retry.Policy
	maxDim     int
	archive    client.Archiver
	logger     *zap.Logger
}

// FetcherOption customizes a Fetcher.
type FetcherOption func(*Fetcher)

// WithMaxDimension shrinks downloaded images so neither side exceeds px.
func WithMaxDimension(px int) FetcherOption {
	return func(f *Fetcher) { f.maxDim = px }
}

// WithArchive mirrors every downloaded image to object storage.
func WithArchive(a client.Archiver) FetcherOption {
	return func(f *Fetcher) { f.archive = a }
}

// NewFetcher creates a fetcher with a per-request timeout.
func NewFetcher(timeout time.Duration, policy retry.Policy, logger *zap.Logger, opts ...FetcherOption) *Fetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	f := &Fetcher{
		httpClient: &http.Client{Timeout: timeout},
		policy:     policy,
		logger:     logger.Named("fetcher"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads url to dest. An existing dest is left as is and counts as
// success without touching the network. Failures are logged and reported as false.
func (f *Fetcher) Fetch(ctx context.Context, url, dest string) bool {
	if _, err := os.Stat(dest); err == nil {
		f.logger.Debug("Image already present", zap.String("path", dest))
		return true
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		f.logger.Error("Failed to create artwork folder", zap.String("path", dest), zap.Error(err))
		return false
	}

	err := retry.Run(ctx, f.policy, func(ctx context.Context) error {
		return f.download(ctx, url, dest)
	}, func(attempt int, err error, next time.Duration) {
		f.logger.Warn("Failed to download image",
			zap.Int("attempt", attempt),
			zap.String("url", url),
			zap.Duration("retry_in", next),
			zap.Error(err),
		)
	})
	if err != nil {
		f.logger.Error("Giving up on image download",
			zap.String("url", url),
			zap.Int("attempts", f.policy.Attempts),
			zap.Error(err),
		)
		return false
	}

	if f.maxDim > 0 {
		if err := shrinkJPEG(dest, f.maxDim); err != nil {
			// the original download is still usable
			f.logger.Warn("Failed to resize image", zap.String("path", dest), zap.Error(err))
		}
	}

	f.logger.Info("Downloaded image", zap.String("path", dest))
	f.mirror(ctx, dest)
	return true
}

// download writes to a temporary sibling and renames it into place, so dest
// only ever holds a complete body.
func (f *Fetcher) download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &client.StatusError{StatusCode: resp.StatusCode}
	}

	part := dest + ".part"
	out, err := os.Create(part)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	buf := make([]byte, downloadChunkSize)
	_, copyErr := io.CopyBuffer(out, resp.Body, buf)
	closeErr := out.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		os.Remove(part)
		return fmt.Errorf("failed to write image: %w", err)
	}

	if err := os.Rename(part, dest); err != nil {
		os.Remove(part)
		return fmt.Errorf("failed to move image into place: %w", err)
	}
	return nil
}

func (f *Fetcher) mirror(ctx context.Context, path string) {
	if f.archive == nil {
		return
	}
	file, err := os.Open(path)
	if err != nil {
		f.logger.Warn("Failed to open image for archive", zap.String("path", path), zap.Error(err))
		return
	}
	defer file.Close()

	key := "images/" + filepath.Base(path)
	if err := f.archive.Put(ctx, key, file, "image/jpeg"); err != nil {
		f.logger.Warn("Failed to archive image", zap.String("key", key), zap.Error(err))
	}
}

// shrinkJPEG rewrites path as a JPEG no larger than maxDim on either side.
// Images already within bounds are left untouched.
func shrinkJPEG(path string, maxDim int) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	src, _, err := image.Decode(in)
	in.Close()
	if err != nil {
		return fmt.Errorf("failed to decode image: %w", err)
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDim && h <= maxDim {
		return nil
	}
	if w >= h {
		h = h * maxDim / w
		w = maxDim
	} else {
		w = w * maxDim / h
		h = maxDim
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	tmp := path + ".resize"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	encErr := jpeg.Encode(out, dst, &jpeg.Options{Quality: resizedJPEGQuality})
	closeErr := out.Close()
	if err := errors.Join(encErr, closeErr); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to encode image: %w", err)
	}
	return os.Rename(tmp, path)
}

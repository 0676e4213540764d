package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/artworkup/api/internal/client"
	"github.com/artworkup/api/internal/model"
	"github.com/artworkup/api/internal/retry"
)

var (
	// ErrLoginFailed is returned when every login attempt failed.
	ErrLoginFailed = errors.New("login failed")
	// ErrNotAuthenticated is returned when Upload is called before a successful Login.
	ErrNotAuthenticated = errors.New("upload session is not logged in")
)

// uploadPathSuffix is appended to an album page to reach its image upload form.
const uploadPathSuffix = "/+images/upload"

// Page elements the automaton depends on.
var (
	selUsername      = client.Selector{Query: "id_username_or_email", By: client.ByID}
	selPassword      = client.Selector{Query: "id_password", By: client.ByID}
	selLoginSubmit   = client.Selector{Query: ".form-submit button", By: client.ByQuery}
	selPostLogin     = client.Selector{Query: "top-artists", By: client.ByID}
	selFileInput     = client.Selector{Query: `//input[@type="file"]`, By: client.ByXPath}
	selAlbumTitle    = client.Selector{Query: "title", By: client.ByName}
	selUploadSubmit  = client.Selector{Query: ".btn-primary", By: client.ByQuery}
	selUploadSuccess = client.Selector{Query: ".gallery-image-uploaded-by", By: client.ByQuery}
)

// SessionState is where an upload session is in the login/upload sequence.
type SessionState string

const (
	StateUnauthenticated SessionState = "unauthenticated"
	StateAuthenticated   SessionState = "authenticated"
	StateNavigating      SessionState = "navigating"
	StateFileStaged      SessionState = "file_staged"
	StateMetadataEntered SessionState = "metadata_entered"
	StateSubmitted       SessionState = "submitted"
	StateVerified        SessionState = "verified"
)

// Uploader opens browser sessions that upload artwork to Last.fm.
type Uploader struct {
	launcher client.Launcher
	policy   retry.Policy
	wait     time.Duration
	loginURL string
	logger   *zap.Logger
}

// NewUploader creates an uploader. wait bounds every single element wait and
// policy wraps the whole login and each whole album upload.
func NewUploader(launcher client.Launcher, policy retry.Policy, wait time.Duration, loginURL string, logger *zap.Logger) *Uploader {
	return &Uploader{
		launcher: launcher,
		policy:   policy,
		wait:     wait,
		loginURL: loginURL,
		logger:   logger.Named("uploader"),
	}
}

// Open starts a browser. The caller owns the session and must Close it.
func (u *Uploader) Open(ctx context.Context) (*UploadSession, error) {
	driver, err := u.launcher.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	return &UploadSession{
		uploader: u,
		driver:   driver,
		state:    StateUnauthenticated,
	}, nil
}

// UploadSession is one logged-in browser. It is not safe for concurrent use.
type UploadSession struct {
	uploader  *Uploader
	driver    client.Driver
	state     SessionState
	closeOnce sync.Once
	closeErr  error
}

// State returns the current step of the session.
func (s *UploadSession) State() SessionState {
	return s.state
}

// Login signs in, retrying the whole sequence from a fresh page load.
// After the last failed attempt it returns ErrLoginFailed.
func (s *UploadSession) Login(ctx context.Context, email, password string) error {
	u := s.uploader

	err := retry.Run(ctx, u.policy, func(ctx context.Context) error {
		s.state = StateUnauthenticated
		if err := s.driver.Navigate(ctx, u.loginURL); err != nil {
			return fmt.Errorf("navigate to login: %w", err)
		}
		if err := s.fill(ctx, selUsername, email); err != nil {
			return err
		}
		if err := s.fill(ctx, selPassword, password); err != nil {
			return err
		}
		if err := s.click(ctx, selLoginSubmit); err != nil {
			return err
		}
		return s.waitPresent(ctx, selPostLogin)
	}, func(attempt int, err error, next time.Duration) {
		u.logger.Warn("Login attempt failed",
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", next),
			zap.Error(err),
		)
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		u.logger.Error("Login failed after maximum retries", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}

	s.state = StateAuthenticated
	u.logger.Info("Login successful")
	return nil
}

// UploadURL returns the image upload form for an album page.
func UploadURL(lastfmURL string) string {
	return strings.TrimRight(lastfmURL, "/") + uploadPathSuffix
}

// Upload submits one image for one album, retrying the whole form on failure.
func (s *UploadSession) Upload(ctx context.Context, entry model.MissingArtworkEntry, imagePath string) error {
	if s.state == StateUnauthenticated {
		return ErrNotAuthenticated
	}
	u := s.uploader

	absPath, err := filepath.Abs(imagePath)
	if err != nil {
		return fmt.Errorf("failed to resolve image path: %w", err)
	}
	target := UploadURL(entry.LastFMURL)

	err = retry.Run(ctx, u.policy, func(ctx context.Context) error {
		s.state = StateNavigating
		if err := s.driver.Navigate(ctx, target); err != nil {
			return fmt.Errorf("navigate to upload form: %w", err)
		}

		if err := s.waitPresent(ctx, selFileInput); err != nil {
			return err
		}
		if err := s.driver.SetUploadFiles(ctx, selFileInput, []string{absPath}); err != nil {
			return fmt.Errorf("stage file: %w", err)
		}
		s.state = StateFileStaged

		if err := s.waitPresent(ctx, selAlbumTitle); err != nil {
			return err
		}
		if err := s.driver.SendKeys(ctx, selAlbumTitle, entry.Album); err != nil {
			return fmt.Errorf("enter title: %w", err)
		}
		s.state = StateMetadataEntered

		if err := s.click(ctx, selUploadSubmit); err != nil {
			return err
		}
		s.state = StateSubmitted

		if err := s.waitPresent(ctx, selUploadSuccess); err != nil {
			return err
		}
		s.state = StateVerified
		return nil
	}, func(attempt int, err error, next time.Duration) {
		u.logger.Warn("Upload attempt failed",
			zap.Int("attempt", attempt),
			zap.String("album", entry.Key()),
			zap.Duration("retry_in", next),
			zap.Error(err),
		)
	})
	if err != nil {
		// the login survives a failed album
		s.state = StateAuthenticated
		return fmt.Errorf("upload %q: %w", entry.Key(), err)
	}

	u.logger.Info("Uploaded artwork", zap.String("album", entry.Key()))
	return nil
}

// Close releases the browser. Only the first call reaches the driver.
func (s *UploadSession) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.driver.Close()
	})
	return s.closeErr
}

func (s *UploadSession) waitCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.uploader.wait <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.uploader.wait)
}

func (s *UploadSession) waitPresent(ctx context.Context, sel client.Selector) error {
	wctx, cancel := s.waitCtx(ctx)
	defer cancel()
	if err := s.driver.WaitPresent(wctx, sel); err != nil {
		return fmt.Errorf("wait for %s: %w", sel, err)
	}
	return nil
}

func (s *UploadSession) fill(ctx context.Context, sel client.Selector, text string) error {
	wctx, cancel := s.waitCtx(ctx)
	defer cancel()
	if err := s.driver.WaitVisible(wctx, sel); err != nil {
		return fmt.Errorf("wait for %s: %w", sel, err)
	}
	if err := s.driver.SendKeys(ctx, sel, text); err != nil {
		return fmt.Errorf("type into %s: %w", sel, err)
	}
	return nil
}

func (s *UploadSession) click(ctx context.Context, sel client.Selector) error {
	wctx, cancel := s.waitCtx(ctx)
	defer cancel()
	if err := s.driver.WaitVisible(wctx, sel); err != nil {
		return fmt.Errorf("wait for %s: %w", sel, err)
	}
	if err := s.driver.Click(ctx, sel); err != nil {
		return fmt.Errorf("click %s: %w", sel, err)
	}
	return nil
}

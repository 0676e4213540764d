package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/artworkup/api/internal/model"
)

const settingsFileName = "settings.json"

// SettingsService holds the provider credentials that can be changed at runtime.
// Values saved through Update take precedence over the configured defaults,
// including values deliberately cleared to "".
type SettingsService struct {
	mu     sync.RWMutex
	creds  model.Credentials
	saved  model.CredentialsUpdate
	path   string
	logger *zap.Logger
}

// NewSettingsService starts from defaults and overlays anything saved in dataDir.
func NewSettingsService(defaults model.Credentials, dataDir string, logger *zap.Logger) (*SettingsService, error) {
	s := &SettingsService{
		creds:  defaults,
		logger: logger.Named("settings"),
	}
	if dataDir != "" {
		s.path = filepath.Join(dataDir, settingsFileName)
	}

	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// load reads the saved overrides. A key that is absent or null keeps its default.
func (s *SettingsService) load() error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read settings: %w", err)
	}

	var saved model.CredentialsUpdate
	if err := json.Unmarshal(data, &saved); err != nil {
		return fmt.Errorf("failed to parse settings %s: %w", s.path, err)
	}
	s.saved = saved
	s.creds = apply(s.creds, &saved)
	s.logger.Info("Loaded saved settings", zap.String("path", s.path))
	return nil
}

// apply copies every non-nil field of u onto base.
func apply(base model.Credentials, u *model.CredentialsUpdate) model.Credentials {
	if u.SpotifyClientID != nil {
		base.SpotifyClientID = *u.SpotifyClientID
	}
	if u.SpotifyClientSecret != nil {
		base.SpotifyClientSecret = *u.SpotifyClientSecret
	}
	if u.LastFMAPIKey != nil {
		base.LastFMAPIKey = *u.LastFMAPIKey
	}
	if u.LastFMAPISecret != nil {
		base.LastFMAPISecret = *u.LastFMAPISecret
	}
	return base
}

func mergeUpdates(base, top model.CredentialsUpdate) model.CredentialsUpdate {
	if top.SpotifyClientID != nil {
		base.SpotifyClientID = top.SpotifyClientID
	}
	if top.SpotifyClientSecret != nil {
		base.SpotifyClientSecret = top.SpotifyClientSecret
	}
	if top.LastFMAPIKey != nil {
		base.LastFMAPIKey = top.LastFMAPIKey
	}
	if top.LastFMAPISecret != nil {
		base.LastFMAPISecret = top.LastFMAPISecret
	}
	return base
}

// Credentials returns a snapshot of the current credentials.
func (s *SettingsService) Credentials() model.Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds
}

// Status reports which credentials are set.
func (s *SettingsService) Status() model.CredentialsStatus {
	return s.Credentials().Status()
}

// Update applies the non-nil fields of u and persists every field ever set
// through Update. Fields never set stay null in the file and follow the defaults.
func (s *SettingsService) Update(u *model.CredentialsUpdate) (model.CredentialsStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	saved := mergeUpdates(s.saved, *u)
	if s.path != "" {
		data, err := json.MarshalIndent(saved, "", "  ")
		if err != nil {
			return model.CredentialsStatus{}, fmt.Errorf("failed to marshal settings: %w", err)
		}
		if err := writeFileAtomic(s.path, data); err != nil {
			return model.CredentialsStatus{}, fmt.Errorf("failed to save settings: %w", err)
		}
	}

	s.saved = saved
	s.creds = apply(s.creds, u)
	s.logger.Info("Credentials updated")
	return s.creds.Status(), nil
}

package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"go.uber.org/zap"

	"github.com/artworkup/api/internal/client"
	"github.com/artworkup/api/internal/model"
)

var unsafeFilenameChars = regexp.MustCompile(`[\\/:"*?<>|]+`)

// SanitizeFilename replaces characters that are not allowed in file names.
func SanitizeFilename(name string) string {
	return unsafeFilenameChars.ReplaceAllString(name, "_")
}

// WorklistStore persists each job's missing-artwork list under the artwork folder.
type WorklistStore struct {
	folder  string
	archive client.Archiver
	logger  *zap.Logger
}

// NewWorklistStore creates a store. archive may be nil.
func NewWorklistStore(folder string, archive client.Archiver, logger *zap.Logger) *WorklistStore {
	return &WorklistStore{
		folder:  folder,
		archive: archive,
		logger:  logger.Named("worklist"),
	}
}

// Path returns where the worklist of jobID is stored.
func (w *WorklistStore) Path(jobID string) string {
	return filepath.Join(w.folder, jobID+"_no_artwork_albums.json")
}

// ImagePath returns the local file an entry's artwork is downloaded to.
func (w *WorklistStore) ImagePath(entry model.MissingArtworkEntry) string {
	name := fmt.Sprintf("%s - %s.jpg", SanitizeFilename(entry.Artist), SanitizeFilename(entry.Album))
	return filepath.Join(w.folder, name)
}

// Save writes entries as an indented JSON array. The file is replaced
// atomically, so readers never see a partial list.
func (w *WorklistStore) Save(ctx context.Context, jobID string, entries []model.MissingArtworkEntry) (string, error) {
	if entries == nil {
		entries = []model.MissingArtworkEntry{}
	}
	data, err := json.MarshalIndent(entries, "", "    ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal worklist: %w", err)
	}

	path := w.Path(jobID)
	if err := writeFileAtomic(path, data); err != nil {
		return "", fmt.Errorf("failed to save worklist: %w", err)
	}
	w.logger.Info("Saved worklist", zap.String("job_id", jobID), zap.String("path", path), zap.Int("entries", len(entries)))

	if w.archive != nil {
		key := "worklists/" + filepath.Base(path)
		if err := w.archive.Put(ctx, key, bytes.NewReader(data), "application/json"); err != nil {
			w.logger.Warn("Failed to archive worklist", zap.String("key", key), zap.Error(err))
		}
	}
	return path, nil
}

// Load reads a saved worklist.
func (w *WorklistStore) Load(jobID string) ([]model.MissingArtworkEntry, error) {
	data, err := os.ReadFile(w.Path(jobID))
	if err != nil {
		return nil, err
	}
	var entries []model.MissingArtworkEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse worklist: %w", err)
	}
	return entries, nil
}

// Remove deletes the worklist of jobID. A missing file is not an error.
func (w *WorklistStore) Remove(ctx context.Context, jobID string) error {
	path := w.Path(jobID)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove worklist: %w", err)
	}
	if w.archive != nil {
		key := "worklists/" + filepath.Base(path)
		if err := w.archive.Delete(ctx, key); err != nil {
			w.logger.Warn("Failed to remove archived worklist", zap.String("key", key), zap.Error(err))
		}
	}
	return nil
}

// writeFileAtomic writes data to a temp file in the target directory and renames it over path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	_, writeErr := tmp.Write(data)
	syncErr := tmp.Sync()
	closeErr := tmp.Close()
	if err := errors.Join(writeErr, syncErr, closeErr); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

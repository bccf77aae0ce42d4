// Package imagestore stores uploaded baseline and maintenance thermal
// images on the local filesystem. Stored filenames are generated, never
// taken from the upload, so the store cannot be used for path traversal.
package imagestore

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/heatwatch/heatwatch-go/internal/errors"
	"github.com/heatwatch/heatwatch-go/internal/logging"
)

// ErrNotFound is returned when a stored image does not exist.
var ErrNotFound = errors.NewStd("image not found")

// allowed upload extensions, lowercased.
var allowedExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// Store manages image files under a single base directory.
type Store struct {
	baseDir string
	log     *slog.Logger
}

// New creates a store rooted at baseDir, creating it if needed.
func New(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, errors.New(err).
			Component("imagestore").
			Category(errors.CategoryFileIO).
			Context("operation", "create_base_dir").
			Build()
	}
	return &Store{
		baseDir: baseDir,
		log:     logging.ForService("imagestore"),
	}, nil
}

// StoreMaintenanceImage persists a maintenance image for an inspection and
// returns the generated filename.
func (s *Store) StoreMaintenanceImage(inspectionNo uint, data []byte, originalName string) (string, error) {
	return s.store(fmt.Sprintf("maintenance_%d", inspectionNo), data, originalName)
}

// StoreBaselineImage persists a baseline image for a transformer and
// returns the generated filename.
func (s *Store) StoreBaselineImage(transformerNo string, data []byte, originalName string) (string, error) {
	return s.store("baseline_"+sanitizeToken(transformerNo), data, originalName)
}

func (s *Store) store(prefix string, data []byte, originalName string) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	if _, ok := allowedExtensions[ext]; !ok {
		ext = ".jpg"
	}

	filename := fmt.Sprintf("%s_%s%s", prefix, uuid.NewString(), ext)
	path := filepath.Join(s.baseDir, filename)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.New(err).
			Component("imagestore").
			Category(errors.CategoryFileIO).
			Context("operation", "write_image").
			Context("filename", filename).
			Build()
	}

	s.log.Debug("image stored", "filename", filename, "bytes", len(data))
	return filename, nil
}

// Path resolves a stored filename to its absolute location, rejecting names
// that escape the base directory.
func (s *Store) Path(filename string) (string, error) {
	if filename == "" || filename == "." || filename == ".." || filename != filepath.Base(filename) {
		return "", errors.Newf("invalid image filename %q", filename).
			Component("imagestore").
			Category(errors.CategoryValidation).
			Build()
	}
	return filepath.Join(s.baseDir, filename), nil
}

// Exists reports whether a stored image is present on disk.
func (s *Store) Exists(filename string) bool {
	path, err := s.Path(filename)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Delete removes a stored image. Deleting a missing image returns
// ErrNotFound.
func (s *Store) Delete(filename string) error {
	path, err := s.Path(filename)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return errors.New(err).
			Component("imagestore").
			Category(errors.CategoryFileIO).
			Context("operation", "delete_image").
			Context("filename", filename).
			Build()
	}
	s.log.Debug("image deleted", "filename", filename)
	return nil
}

// ContentType returns the MIME type for a stored filename.
func ContentType(filename string) string {
	if ct, ok := allowedExtensions[strings.ToLower(filepath.Ext(filename))]; ok {
		return ct
	}
	return "image/jpeg"
}

// sanitizeToken keeps identifier characters only, so operator-assigned IDs
// cannot inject path syntax into generated filenames.
func sanitizeToken(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

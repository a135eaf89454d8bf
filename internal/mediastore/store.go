package mediastore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"clipforge/internal/config"
	"clipforge/internal/fileutil"
	"clipforge/internal/jobqueue"
)

// ErrNotFound indicates a stored path that no longer exists on disk.
var ErrNotFound = errors.New("media file not found")

// Store manages media files under the configured upload and output
// directories.
type Store struct {
	uploadDir string
	outputDir string
}

// New constructs a Store from configuration. Directories must already
// exist (config.EnsureDirectories creates them at startup).
func New(cfg *config.Config) *Store {
	return &Store{
		uploadDir: cfg.Paths.UploadDir,
		outputDir: cfg.Paths.OutputDir,
	}
}

// Write streams an upload to a collision-free file in the upload
// directory and returns its absolute path. The partial file is removed
// on error so failed uploads never leave debris behind.
func (s *Store) Write(r io.Reader, ext string) (string, error) {
	ext = normalizeExt(ext)
	name := strconv.FormatInt(time.Now().UnixMilli(), 10) + "-" + uuid.NewString() + ext
	path := filepath.Join(s.uploadDir, name)

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}

	if _, err := io.Copy(file, r); err != nil {
		file.Close()
		os.Remove(path)
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close upload: %w", err)
	}
	return path, nil
}

// ImportFile copies a local file into the upload directory with an
// integrity check and returns the stored path. Used by the CLI to add
// videos without going through the HTTP upload.
func (s *Store) ImportFile(srcPath string) (string, error) {
	ext := normalizeExt(filepath.Ext(srcPath))
	name := strconv.FormatInt(time.Now().UnixMilli(), 10) + "-" + uuid.NewString() + ext
	path := filepath.Join(s.uploadDir, name)

	if err := fileutil.CopyFileVerified(srcPath, path); err != nil {
		return "", fmt.Errorf("import %s: %w", srcPath, err)
	}
	return path, nil
}

// WriteOutput returns a fresh output path for one transform attempt.
// Each attempt gets its own destination so a retried job never clobbers
// bytes another consumer may be reading.
func (s *Store) WriteOutput(kind jobqueue.Kind, srcBase string) string {
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	var name string
	switch kind {
	case jobqueue.KindTrim:
		name = "trimmed-" + timestamp + "-" + filepath.Base(srcBase)
	case jobqueue.KindSubtitle:
		name = "subtitled_" + timestamp + ".mp4"
	case jobqueue.KindRender:
		name = "rendered-" + timestamp + ".mp4"
	default:
		name = "output-" + timestamp + ".mp4"
	}
	return filepath.Join(s.outputDir, name)
}

// Exists reports whether path refers to a regular file.
func (s *Store) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Resolve normalizes a stored path to an absolute one and verifies the
// file is present. Returns ErrNotFound when the bytes are gone.
func (s *Store) Resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrNotFound)
	}
	absolute, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve path %q: %w", path, err)
	}
	if !s.Exists(absolute) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, absolute)
	}
	return absolute, nil
}

// Remove deletes a media file, ignoring files already gone.
func (s *Store) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove media file: %w", err)
	}
	return nil
}

func normalizeExt(ext string) string {
	ext = strings.TrimSpace(strings.ToLower(ext))
	if ext == "" {
		return ".mp4"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	// Extensions feed into file names; strip anything surprising.
	var b strings.Builder
	for _, r := range ext {
		if r == '.' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "." || cleaned == "" {
		return ".mp4"
	}
	return cleaned
}

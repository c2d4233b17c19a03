package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStorage manages downloaded files under a single root directory.
type FileStorage struct {
	dir string
}

// NewFileStorage creates a FileStorage rooted at dir.
func NewFileStorage(dir string) *FileStorage {
	return &FileStorage{dir: dir}
}

// Dir returns the storage root.
func (s *FileStorage) Dir() string {
	return s.dir
}

// CreateFile creates (truncating) a file with the given name under the root.
func (s *FileStorage) CreateFile(filename string) (*os.File, error) {
	return os.Create(filepath.Join(s.dir, filename))
}

// FileExists checks whether a file exists under the root.
func (s *FileStorage) FileExists(filename string) bool {
	_, err := os.Stat(filepath.Join(s.dir, filename))
	return err == nil
}

// FileSize returns the size of the file in bytes.
func (s *FileStorage) FileSize(filename string) (int64, error) {
	info, err := os.Stat(filepath.Join(s.dir, filename))
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Remove deletes a file under the root, ignoring files that are already gone.
func (s *FileStorage) Remove(filename string) error {
	err := os.Remove(filepath.Join(s.dir, filename))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// DestPath builds the destination path for a track: "Artist - Title.ext"
// sanitized for the filesystem, with a numeric suffix when the name is
// already taken.
func (s *FileStorage) DestPath(artist, title, sourceFilename string) string {
	ext := filepath.Ext(sourceFilename)
	if ext == "" {
		ext = ".mp3"
	}

	base := sanitizeName(fmt.Sprintf("%s - %s", artist, title))
	name := base + ext
	for i := 1; s.FileExists(name); i++ {
		name = fmt.Sprintf("%s (%d)%s", base, i, ext)
	}
	return filepath.Join(s.dir, name)
}

func sanitizeName(name string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		"\x00", "",
	)
	out := strings.TrimSpace(replacer.Replace(name))
	if out == "" {
		out = "track"
	}
	return out
}

package utils

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// StatInputFile checks that filename names a regular, readable file and
// returns its info so callers can check the size before reading it.
func StatInputFile(filename string) (fs.FileInfo, error) {
	if filename == "" {
		return nil, errors.New("filename cannot be empty")
	}

	info, err := os.Stat(filename)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("file does not exist: %s", filename)
	case err != nil:
		return nil, fmt.Errorf("cannot access file %s: %w", filename, err)
	case !info.Mode().IsRegular():
		return nil, fmt.Errorf("not a regular file: %s", filename)
	}

	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("cannot read file %s: %w", filename, err)
	}
	_ = f.Close()
	return info, nil
}

// EnsureOutputDir creates the parent directory of filename when missing.
// An empty filename means stdout and needs nothing.
func EnsureOutputDir(filename string) error {
	if filename == "" {
		return nil
	}
	dir := filepath.Dir(filename)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("cannot create directory %s: %w", dir, err)
	}
	return nil
}

// Ext is the lowercased extension of filename, dot included.
func Ext(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}

// FormatFileSize renders size in binary units, e.g. "1.5 MB".
func FormatFileSize(size int64) string {
	units := []string{"KB", "MB", "GB", "TB"}
	if size < 1024 {
		return fmt.Sprintf("%d B", size)
	}
	v := float64(size) / 1024
	i := 0
	for v >= 1024 && i < len(units)-1 {
		v /= 1024
		i++
	}
	return fmt.Sprintf("%.1f %s", v, units[i])
}

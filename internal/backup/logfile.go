package backup

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var (
	ErrInvalidFormat = errors.New("invalid file format")
	ErrLogNotFound   = errors.New("log file not found")
)

type LogFile struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// CanonicalLogName reduces name to its last path component, treating both
// slash styles as separators. An empty name means the default backup log.
func CanonicalLogName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultLogFile
	}
	return path.Base(strings.ReplaceAll(name, `\`, "/"))
}

// ReadLogFile returns a .log file from dir. The extension is checked before
// the filesystem is touched, and the resolved file must stay inside dir.
func ReadLogFile(dir, name string) (*LogFile, error) {
	base := CanonicalLogName(name)
	if base == "." || base == ".." || base == "/" || !strings.HasSuffix(base, ".log") {
		return nil, ErrInvalidFormat
	}

	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}

	target, err := filepath.EvalSymlinks(filepath.Join(root, base))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrLogNotFound
		}
		return nil, err
	}
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return nil, ErrLogNotFound
	}

	fi, err := os.Stat(target)
	if err != nil || !fi.Mode().IsRegular() {
		return nil, ErrLogNotFound
	}
	content, err := os.ReadFile(target)
	if err != nil {
		return nil, err
	}
	return &LogFile{Filename: base, Content: string(content)}, nil
}

package backup

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/Skotchmaster/hospital_desk/internal/models"
)

const (
	SuccessMessage = "Backup completed successfully"
	failurePrefix  = "Backup failed with error: "
	unknownError   = "Unknown error"
)

type Artifact struct {
	Filename string
	Filesize string
}

// ParseOutput picks the FILENAME: and FILESIZE: lines out of the script's stdout.
// Either may be missing.
func ParseOutput(stdout string) Artifact {
	var a Artifact
	for line := range strings.Lines(stdout) {
		line = strings.TrimRight(line, "\r\n")
		switch {
		case strings.HasPrefix(line, "FILENAME:"):
			a.Filename = strings.TrimSpace(strings.TrimPrefix(line, "FILENAME:"))
		case strings.HasPrefix(line, "FILESIZE:"):
			a.Filesize = strings.TrimSpace(strings.TrimPrefix(line, "FILESIZE:"))
		}
	}
	return a
}

// Path locates the artifact inside dir, ignoring any directories in the reported name.
func (a Artifact) Path(dir string) string {
	if a.Filename == "" {
		return ""
	}
	return filepath.Join(dir, filepath.Base(a.Filename))
}

// withSize fills a missing size from the file on disk.
func (a Artifact) withSize(dir string) Artifact {
	if a.Filesize != "" || a.Filename == "" {
		return a
	}
	fi, err := os.Stat(a.Path(dir))
	if err != nil || !fi.Mode().IsRegular() {
		return a
	}
	a.Filesize = humanize.Bytes(uint64(fi.Size()))
	return a
}

// Entry turns a finished run into the log row that records it.
func Entry(o Outcome, backupDir string) models.BackupLog {
	if !o.Succeeded() {
		return models.BackupLog{
			Status:  models.BackupStatusError,
			Message: failureMessage(o),
		}
	}
	a := ParseOutput(o.Stdout).withSize(backupDir)
	return models.BackupLog{
		Filename: a.Filename,
		Filesize: a.Filesize,
		Status:   models.BackupStatusSuccess,
		Message:  SuccessMessage,
	}
}

func failureMessage(o Outcome) string {
	detail := strings.TrimSpace(o.Stderr)
	if detail == "" && o.TimedOut {
		detail = "backup timed out"
	}
	if detail == "" {
		detail = unknownError
	}
	return failurePrefix + detail
}

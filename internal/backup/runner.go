// Package backup runs the external dump script and inspects what it leaves behind.
package backup

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultLogFile = "backup.log"
	maxLineBytes   = 1 << 20
)

type Runner struct {
	Script string
	// Env is appended to the parent environment.
	Env     []string
	LogsDir string
	Timeout time.Duration
	Logger  *slog.Logger
}

type Outcome struct {
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
	// Err is set when the process could not be started or waited on.
	Err error
}

func (o Outcome) Succeeded() bool {
	return o.Err == nil && !o.TimedOut && o.ExitCode == 0
}

// Run executes the script through /bin/bash and waits for it to exit. Only
// the runner's own timeout stops the process; cancelling ctx does not.
func (r *Runner) Run(ctx context.Context) Outcome {
	l := r.Logger
	if l == nil {
		l = slog.Default()
	}

	runCtx := context.WithoutCancel(ctx)
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, r.Timeout)
		defer cancel()
	}

	sink, closeSink := r.openLog(l)
	defer closeSink()

	cmd := exec.CommandContext(runCtx, "/bin/bash", r.Script)
	cmd.Env = append(os.Environ(), r.Env...)
	cmd.WaitDelay = 5 * time.Second
	killProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Outcome{ExitCode: -1, Err: fmt.Errorf("stdout pipe: %w", err)}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Outcome{ExitCode: -1, Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		sink.write("error", "failed to start: "+err.Error())
		return Outcome{ExitCode: -1, Err: fmt.Errorf("start %s: %w", r.Script, err)}
	}
	l.Info("backup_started", "pid", cmd.Process.Pid, "script", r.Script)

	var outBuf, errBuf strings.Builder
	var g errgroup.Group
	g.Go(func() error { return collect(stdout, &outBuf, "stdout", sink, l) })
	g.Go(func() error { return collect(stderr, &errBuf, "stderr", sink, l) })
	readErr := g.Wait()
	waitErr := cmd.Wait()

	out := Outcome{Stdout: outBuf.String(), Stderr: errBuf.String()}
	if readErr != nil {
		l.Warn("backup_output_read_failed", "error", readErr)
	}

	var exitErr *exec.ExitError
	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		out.TimedOut = true
		out.ExitCode = -1
	case waitErr == nil:
		out.ExitCode = 0
	case errors.As(waitErr, &exitErr):
		out.ExitCode = exitErr.ExitCode()
	default:
		out.ExitCode = -1
		out.Err = waitErr
	}

	sink.write("exit", fmt.Sprintf("code=%d timed_out=%t", out.ExitCode, out.TimedOut))
	l.Info("backup_exited", "code", out.ExitCode, "timed_out", out.TimedOut)
	return out
}

// collect reads rd to EOF line by line. Lines longer than maxLineBytes are
// cut short but the rest of the stream is still read, so the child never
// blocks on a full pipe.
func collect(rd io.Reader, buf *strings.Builder, stream string, sink *logSink, l *slog.Logger) error {
	br := bufio.NewReaderSize(rd, 64*1024)
	var line []byte
	truncated := false
	emit := func() {
		if truncated {
			l.Warn("backup_output_truncated", "stream", stream, "limit", maxLineBytes)
		}
		s := string(line)
		buf.WriteString(s)
		buf.WriteByte('\n')
		sink.write(stream, s)
		l.Debug("backup_output", "stream", stream, "line", s)
		line, truncated = line[:0], false
	}
	for {
		chunk, more, err := br.ReadLine()
		if err != nil {
			if len(line) > 0 {
				emit()
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			_, _ = io.Copy(io.Discard, br)
			return err
		}
		if room := maxLineBytes - len(line); room < len(chunk) {
			chunk = chunk[:max(room, 0)]
			truncated = true
		}
		line = append(line, chunk...)
		if !more {
			emit()
		}
	}
}

type logSink struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *logSink) write(stream, line string) {
	if s == nil || s.w == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "%s [%s] %s\n", time.Now().UTC().Format(time.RFC3339), stream, line)
}

// openLog appends to LogsDir/backup.log. A log that cannot be opened only disables the copy.
func (r *Runner) openLog(l *slog.Logger) (*logSink, func()) {
	if r.LogsDir == "" {
		return &logSink{}, func() {}
	}
	if err := os.MkdirAll(r.LogsDir, 0o750); err != nil {
		l.Warn("backup_log_unavailable", "dir", r.LogsDir, "error", err)
		return &logSink{}, func() {}
	}
	f, err := os.OpenFile(filepath.Join(r.LogsDir, DefaultLogFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		l.Warn("backup_log_unavailable", "dir", r.LogsDir, "error", err)
		return &logSink{}, func() {}
	}
	return &logSink{w: f}, func() { _ = f.Close() }
}

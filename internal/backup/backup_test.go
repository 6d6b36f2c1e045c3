package backup

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/hospital_desk/internal/models"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if _, err := os.Stat("/bin/bash"); err != nil {
		t.Skip("/bin/bash not available")
	}
	p := filepath.Join(t.TempDir(), "backup.sh")
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/bash\n"+body+"\n"), 0o700))
	return p
}

func TestRunner_Success(t *testing.T) {
	t.Parallel()

	logs := t.TempDir()
	script := writeScript(t, `echo "starting dump of $DB_NAME"
echo "FILENAME: ${DB_NAME}_dump.sql "
echo "FILESIZE:2.1M"
echo "warning: something minor" >&2`)

	r := &Runner{Script: script, Env: []string{"DB_NAME=hospital_db"}, LogsDir: logs, Timeout: 10 * time.Second}
	out := r.Run(context.Background())

	require.True(t, out.Succeeded())
	entry := Entry(out, t.TempDir())
	assert.Equal(t, models.BackupStatusSuccess, entry.Status)
	assert.Equal(t, "hospital_db_dump.sql", entry.Filename)
	assert.Equal(t, "2.1M", entry.Filesize)
	assert.Equal(t, SuccessMessage, entry.Message)

	content, err := os.ReadFile(filepath.Join(logs, DefaultLogFile))
	require.NoError(t, err)
	assert.Contains(t, string(content), "[stdout] starting dump of hospital_db")
	assert.Contains(t, string(content), "[stderr] warning: something minor")
}

func TestRunner_AppendsToExistingLog(t *testing.T) {
	t.Parallel()

	logs := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(logs, DefaultLogFile), []byte("previous run\n"), 0o640))

	r := &Runner{Script: writeScript(t, `echo hello`), LogsDir: logs, Timeout: 10 * time.Second}
	r.Run(context.Background())

	content, err := os.ReadFile(filepath.Join(logs, DefaultLogFile))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(content), "previous run\n"))
	assert.Contains(t, string(content), "[stdout] hello")
}

func TestRunner_OversizedLineDoesNotStallScript(t *testing.T) {
	t.Parallel()

	script := writeScript(t, `head -c 3145728 /dev/zero | tr '\0' 'a'
echo
echo "FILENAME:x.sql"
echo "FILESIZE:1K"`)
	r := &Runner{Script: script, LogsDir: t.TempDir(), Timeout: 3 * time.Second}

	start := time.Now()
	out := r.Run(context.Background())

	assert.Less(t, time.Since(start), 3*time.Second)
	require.True(t, out.Succeeded(), "exit=%d timedOut=%t err=%v", out.ExitCode, out.TimedOut, out.Err)
	entry := Entry(out, t.TempDir())
	assert.Equal(t, models.BackupStatusSuccess, entry.Status)
	assert.Equal(t, "x.sql", entry.Filename)
	assert.Less(t, len(out.Stdout), 2*maxLineBytes)
}

func TestRunner_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		code    int
		message string
	}{
		{name: "stderr captured", body: "echo 'pg_dump: connection refused' >&2; exit 3", code: 3, message: "Backup failed with error: pg_dump: connection refused"},
		{name: "silent failure", body: "exit 1", code: 1, message: "Backup failed with error: Unknown error"},
		{name: "stdout ignored on failure", body: "echo FILENAME:x.sql; exit 2", code: 2, message: "Backup failed with error: Unknown error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := &Runner{Script: writeScript(t, tt.body), Timeout: 10 * time.Second}
			out := r.Run(context.Background())

			assert.False(t, out.Succeeded())
			assert.Equal(t, tt.code, out.ExitCode)

			entry := Entry(out, t.TempDir())
			assert.Equal(t, models.BackupStatusError, entry.Status)
			assert.Equal(t, tt.message, entry.Message)
			assert.Empty(t, entry.Filename)
		})
	}
}

func TestRunner_Timeout(t *testing.T) {
	t.Parallel()

	r := &Runner{Script: writeScript(t, "sleep 30 & wait"), Timeout: 200 * time.Millisecond}
	start := time.Now()
	out := r.Run(context.Background())

	assert.True(t, out.TimedOut)
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Equal(t, "Backup failed with error: backup timed out", Entry(out, "").Message)
}

func TestRunner_IgnoresCallerCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &Runner{Script: writeScript(t, "sleep 0.2; echo FILENAME:late.sql"), Timeout: 10 * time.Second}
	out := r.Run(ctx)

	require.True(t, out.Succeeded())
	assert.Equal(t, "late.sql", ParseOutput(out.Stdout).Filename)
}

func TestParseOutput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		stdout string
		want   Artifact
	}{
		{name: "both", stdout: "FILENAME:a.sql\nFILESIZE:1.2M\n", want: Artifact{Filename: "a.sql", Filesize: "1.2M"}},
		{name: "none", stdout: "done\n", want: Artifact{}},
		{name: "only filename", stdout: "noise\nFILENAME:  b.sql  \n", want: Artifact{Filename: "b.sql"}},
		{name: "tag must start the line", stdout: " FILENAME:c.sql\n", want: Artifact{}},
		{name: "last wins", stdout: "FILENAME:a\nFILENAME:b\n", want: Artifact{Filename: "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParseOutput(tt.stdout))
		})
	}
}

func TestEntry_FillsMissingSize(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dump.sql"), make([]byte, 1500), 0o600))

	entry := Entry(Outcome{Stdout: "FILENAME:/elsewhere/dump.sql\n"}, dir)
	assert.Equal(t, "1.5 kB", entry.Filesize)

	entry = Entry(Outcome{Stdout: "FILENAME:missing.sql\n"}, dir)
	assert.Empty(t, entry.Filesize)

	entry = Entry(Outcome{}, dir)
	assert.Equal(t, models.BackupStatusSuccess, entry.Status)
	assert.Empty(t, entry.Filename)
}

func TestReadLogFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultLogFile), []byte("default log"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.log"), []byte("other"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.log"), []byte("secret"), 0o600))
	require.NoError(t, os.Symlink(filepath.Join(outside, "secret.log"), filepath.Join(dir, "link.log")))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "dir.log"), 0o700))

	tests := []struct {
		name     string
		filename string
		want     string
		wantName string
		err      error
	}{
		{name: "default", filename: "", want: "default log", wantName: DefaultLogFile},
		{name: "named", filename: "other.log", want: "other", wantName: "other.log"},
		{name: "traversal reduced to base", filename: "../../x/other.log", want: "other", wantName: "other.log"},
		{name: "backslash traversal", filename: `..\..\other.log`, want: "other", wantName: "other.log"},
		{name: "wrong extension", filename: "../../etc/passwd", err: ErrInvalidFormat},
		{name: "extension checked first", filename: "missing.txt", err: ErrInvalidFormat},
		{name: "dot dot", filename: "..", err: ErrInvalidFormat},
		{name: "missing", filename: "nope.log", err: ErrLogNotFound},
		{name: "symlink escaping dir", filename: "link.log", err: ErrLogNotFound},
		{name: "directory", filename: "dir.log", err: ErrLogNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ReadLogFile(dir, tt.filename)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Content)
			assert.Equal(t, tt.wantName, got.Filename)
		})
	}
}

func TestReadLogFile_ExtensionCheckedBeforeFilesystem(t *testing.T) {
	t.Parallel()

	_, err := ReadLogFile(filepath.Join(t.TempDir(), "does-not-exist"), "a.sql")
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

type fakeS3 struct {
	mu   sync.Mutex
	puts map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	if r.Method == http.MethodPut {
		f.mu.Lock()
		f.puts[r.URL.Path] = body
		f.mu.Unlock()
	}
	w.WriteHeader(http.StatusOK)
}

func TestS3Uploader_Upload(t *testing.T) {
	t.Parallel()

	fake := &fakeS3{puts: map[string][]byte{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	u, err := NewS3Uploader(context.Background(), S3Config{
		Endpoint: srv.URL, Region: "us-east-1", Bucket: "dumps",
		AccessKey: "key", SecretKey: "secret", Prefix: "backups/",
	})
	require.NoError(t, err)

	dump := filepath.Join(t.TempDir(), "hospital_db_20260101.sql")
	require.NoError(t, os.WriteFile(dump, []byte("-- dump"), 0o600))

	key, err := u.Upload(context.Background(), dump)
	require.NoError(t, err)
	assert.Equal(t, "backups/hospital_db_20260101.sql", key)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	_, ok := fake.puts["/dumps/backups/hospital_db_20260101.sql"]
	assert.True(t, ok)
}

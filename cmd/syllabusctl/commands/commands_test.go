package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"syllabussync/internal/app"
)

// offline points the configuration at a throwaway SQLite file with no
// Redis, broker or object store.
func offline(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CONFIG_FILE", filepath.Join(dir, "missing.toml"))
	t.Setenv("DOTENV_FILE", filepath.Join(dir, "missing.env"))
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(dir, "syllabussync.db"))
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("S3_ENDPOINT_URL", "")
	t.Setenv("RABBITMQ_MAX_ATTEMPTS", "1")
	t.Setenv("LOG_LEVEL", "error")
	configPath = ""
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootRegistersCommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range NewRootCmd().Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"migrate", "worker", "ingest", "stage", "ask", "ics"} {
		assert.True(t, names[want], want)
	}
}

func TestMigrate(t *testing.T) {
	offline(t)
	out, err := run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "schema up to date (sqlite)")
}

func TestAskUnknownVersion(t *testing.T) {
	offline(t)
	out, err := run(t, "ask", "7", "when", "is", "the", "final?")
	require.NoError(t, err)

	var answer app.Answer
	require.NoError(t, json.Unmarshal([]byte(out), &answer))
	assert.Equal(t, "when is the final?", answer.Question)
	assert.Equal(t, app.AnswerNoDocuments, answer.Answer)
}

func TestICSWritesFile(t *testing.T) {
	dir := offline(t)
	path := filepath.Join(dir, "out.ics")

	_, err := run(t, "ics", "3", "-o", path)
	require.NoError(t, err)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "BEGIN:VCALENDAR\r\n"))
	assert.True(t, strings.HasSuffix(string(raw), "END:VCALENDAR\r\n"))
	assert.NotContains(t, string(raw), "BEGIN:VEVENT")
}

func TestIngestRejectsUnreadableDocument(t *testing.T) {
	dir := offline(t)
	path := filepath.Join(dir, "notes.pdf")
	require.NoError(t, os.WriteFile(path, []byte("plain text, not a pdf"), 0o600))

	_, err := run(t, "ingest", path)
	require.Error(t, err)
	assert.ErrorIs(t, err, app.ErrExtraction)
}

func TestArgumentValidation(t *testing.T) {
	offline(t)

	_, err := run(t, "stage", "abc", "chunk")
	assert.ErrorContains(t, err, "invalid version id")

	_, err = run(t, "ingest", "/does/not/exist.pdf")
	assert.Error(t, err)

	_, err = run(t, "stage", "1", "chunk", "extra")
	assert.Error(t, err)
}

func TestStageUnknownStage(t *testing.T) {
	offline(t)
	_, err := run(t, "stage", "1", "summarize")
	assert.ErrorIs(t, err, app.ErrUnknownStage)
}

package rawlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendCreatesDatedFile(t *testing.T) {
	dir := t.TempDir()
	l := NewLogger(dir, "j1939")
	require.NoError(t, l.Append("line one"))
	require.NoError(t, l.Append("line two"))
	require.NoError(t, l.Close())

	entries, err := os.ReadDir(filepath.Join(dir, "j1939"))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	content, err := os.ReadFile(filepath.Join(dir, "j1939", entries[0].Name()))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	assert.Equal(t, []string{"line one", "line two"}, lines)
}

func TestHourlyGranularityUsesHourStamp(t *testing.T) {
	dir := t.TempDir()
	l := NewLoggerWithGranularity(dir, "gnss", GranularityHourly)
	require.NoError(t, l.Append("$GPGGA"))
	require.NoError(t, l.Close())

	entries, err := os.ReadDir(filepath.Join(dir, "gnss"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	// daily stamp is 10 chars (2006-01-02); hourly appends _HH
	assert.Len(t, strings.TrimSuffix(entries[0].Name(), ".log"), 13)
}

func TestCloseIsIdempotent(t *testing.T) {
	l := NewLogger(t.TempDir(), "uds")
	require.NoError(t, l.Append("row"))
	assert.NoError(t, l.Close())
	assert.NoError(t, l.Close())
}

func TestAppendAfterCloseReopens(t *testing.T) {
	dir := t.TempDir()
	l := NewLogger(dir, "imu")
	require.NoError(t, l.Append("a"))
	require.NoError(t, l.Close())
	require.NoError(t, l.Append("b"))
	require.NoError(t, l.Close())

	entries, err := os.ReadDir(filepath.Join(dir, "imu"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	content, err := os.ReadFile(filepath.Join(dir, "imu", entries[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", string(content))
}

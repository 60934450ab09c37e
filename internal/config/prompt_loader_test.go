package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPromptFile(t *testing.T) {
	tempDir := t.TempDir()

	tests := []struct {
		name     string
		content  string
		want     string
		errorMsg string
	}{
		{
			name:    "valid template is trimmed",
			content: "\n  Review this resume:\n%s\n\n",
			want:    "Review this resume:\n%s",
		},
		{
			name:     "empty file",
			content:  "   \n",
			errorMsg: "prompt template is empty",
		},
		{
			name:     "no placeholder",
			content:  "Review this resume",
			errorMsg: "found 0",
		},
		{
			name:     "two placeholders",
			content:  "Resume: %s Job: %s",
			errorMsg: "found 2",
		},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(tempDir, "prompt"+string(rune('a'+i))+".md")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0600))

			got, err := LoadPromptFile(path)
			if tt.errorMsg != "" {
				assert.ErrorContains(t, err, tt.errorMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadPromptFileMissing(t *testing.T) {
	_, err := LoadPromptFile(filepath.Join(t.TempDir(), "nonexistent.md"))
	assert.ErrorContains(t, err, "prompt file not found")
}

func TestPromptWatcherReloadsValidChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.md")
	require.NoError(t, os.WriteFile(path, []byte("first %s"), 0600))

	reloaded := make(chan string, 4)
	watcher, err := NewPromptWatcher(path, 20*time.Millisecond, func(tmpl string) {
		reloaded <- tmpl
	}, newTestLogger())
	require.NoError(t, err)
	require.NoError(t, watcher.Start())
	defer func() { _ = watcher.Stop() }()
	assert.True(t, watcher.IsRunning())

	// An invalid edit is ignored.
	require.NoError(t, os.WriteFile(path, []byte("no placeholder"), 0600))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	select {
	case tmpl := <-reloaded:
		t.Fatalf("unexpected reload with %q", tmpl)
	case <-time.After(300 * time.Millisecond):
	}

	require.NoError(t, os.WriteFile(path, []byte("second %s"), 0600))
	later := future.Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))

	select {
	case tmpl := <-reloaded:
		assert.Equal(t, "second %s", tmpl)
	case <-time.After(3 * time.Second):
		t.Fatal("prompt watcher did not reload the template")
	}

	require.NoError(t, watcher.Stop())
	assert.False(t, watcher.IsRunning())
	assert.NoError(t, watcher.Stop())
}

func TestNewPromptWatcherRequiresPath(t *testing.T) {
	_, err := NewPromptWatcher("", 0, func(string) {}, nil)
	assert.Error(t, err)
}

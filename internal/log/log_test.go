package log

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(minLevel)
	Replace(zap.New(core))
	t.Cleanup(func() { SetLevel(LevelInfo) })
	return logs
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel(" debug "))
	assert.Equal(t, LevelError, ParseLevel("ERROR"))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
}

func TestErrorPrependsErr(t *testing.T) {
	logs := observe(t)

	Error("fetch failed", errors.New("boom"), "id", "team")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "boom", fields["err"])
	assert.Equal(t, "team", fields["id"])
}

func TestSetLevelFilters(t *testing.T) {
	logs := observe(t)

	Debug("hidden")
	SetLevel(LevelDebug)
	Debug("shown")
	SetLevel(LevelError)
	Info("hidden too")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "shown", entries[0].Message)
}

func TestReplaceWhileLogging(t *testing.T) {
	observe(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		i := i
		wg.Add(2)
		go func() {
			defer wg.Done()
			Info("tick", "i", i)
		}()
		go func() {
			defer wg.Done()
			core, _ := observer.New(minLevel)
			Replace(zap.New(core))
		}()
	}
	wg.Wait()

	core, logs := observer.New(minLevel)
	Replace(zap.New(core))
	Info("after")
	assert.Equal(t, 1, logs.FilterMessage("after").Len())
}

func TestToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calboard.log")
	closeFn, err := ToFile(path)
	require.NoError(t, err)

	Info("written to file", "k", 1)
	Sync()
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}

package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewCustomLogger(&buf, LogLevelWarn)

	logger.Debug("hidden")
	logger.Info("hidden")
	require.Empty(t, buf.String())

	logger.Warn("pruned %d trajectories", 3)
	assert.Contains(t, buf.String(), "[WARN] pruned 3 trajectories")

	logger.Error("snapshot failed")
	assert.Contains(t, buf.String(), "[ERROR] snapshot failed")
}

func TestWithPrefix(t *testing.T) {
	var buf bytes.Buffer
	base := NewCustomLogger(&buf, LogLevelDebug)

	logger := WithPrefix(base, "consolidation")
	logger.Info("merged %d patterns", 2)
	assert.Contains(t, buf.String(), "[consolidation] merged 2 patterns")
}

func TestWithPrefixNilFallsBackToDefault(t *testing.T) {
	old := GetDefaultLogger()
	defer SetDefaultLogger(old)

	var buf bytes.Buffer
	SetDefaultLogger(NewCustomLogger(&buf, LogLevelDebug))

	WithPrefix(nil, "background-loop").Debug("cycle done")
	assert.Contains(t, buf.String(), "[background-loop] cycle done")
}

func TestLogLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LogLevelDebug.String())
	assert.Equal(t, "NONE", LogLevelNone.String())
	assert.Contains(t, LogLevel(42).String(), "UNKNOWN")
}

package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitForCLI_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	InitForCLI(LevelWarn, &buf)

	Debug("test", "debug message")
	Info("test", "info message")
	Warn("test", "warn message")

	out := buf.String()
	assert.NotContains(t, out, "debug message")
	assert.NotContains(t, out, "info message")
	assert.Contains(t, out, "warn message")
}

func TestError_IncludesErrorAttribute(t *testing.T) {
	var buf bytes.Buffer
	InitForCLI(LevelDebug, &buf)

	Error("test", assertErr("boom"), "operation failed")

	out := buf.String()
	assert.True(t, strings.Contains(out, "operation failed"))
	assert.True(t, strings.Contains(out, "boom"))
	assert.True(t, strings.Contains(out, "subsystem=test"))
}

func TestTruncateSessionID(t *testing.T) {
	assert.Equal(t, "short", TruncateSessionID("short"))
	assert.Equal(t, "abc12345...", TruncateSessionID("abc12345-def6-7890"))
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	"codeberg.org/mutker/cpubench/internal/errors"
	"codeberg.org/mutker/cpubench/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCloser struct {
	err    error
	closed bool
}

func (c *stubCloser) Close() error {
	c.closed = true
	return c.err
}

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logger.InitWriter(&buf, "info")
	t.Cleanup(func() { logger.SetLogLevel(logger.InfoLevel) })
	return &buf
}

func TestCloseLoggedReportsFailure(t *testing.T) {
	buf := captureLog(t)
	c := &stubCloser{err: fmt.Errorf("database is locked")}

	closeLogged(c, "metrics collector")

	assert.True(t, c.closed)
	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "error", line["level"])
	assert.Equal(t, "Failed to release resources", line["message"])
	assert.Equal(t, "metrics collector", line["resource"])
	assert.Equal(t, "database is locked", line["error"])
}

func TestCloseLoggedKeepsErrorCode(t *testing.T) {
	buf := captureLog(t)
	c := &stubCloser{err: errors.New().Wrap(errors.ErrShutdownFailed, fmt.Errorf("nvml busy"))}

	closeLogged(c, "benchmark session")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, string(errors.ErrShutdownFailed), line["error_code"])
}

func TestCloseLoggedSilentOnSuccess(t *testing.T) {
	buf := captureLog(t)
	c := &stubCloser{}

	closeLogged(c, "benchmark session")

	assert.True(t, c.closed)
	assert.Zero(t, buf.Len())
}

package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCheckConfig(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("REDIS_URL", "")

	out, err := execute(t, "check-config")
	require.NoError(t, err)
	assert.Contains(t, out, "addr=:9090")
	assert.Contains(t, out, "snapshots=false")
}

func TestCheckConfig_Invalid(t *testing.T) {
	t.Setenv("LOG_FORMAT", "xml")

	_, err := execute(t, "check-config")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOG_FORMAT")
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "ridemap 1.0.0\n", out)
}

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCmd_RequiresTwoArgs(t *testing.T) {
	for _, args := range [][]string{
		{},
		{"/mnt"},
		{"/mnt", "/srv", "/extra"},
	} {
		out, err := execute(t, args...)
		assert.Error(t, err, "args %v", args)
		assert.Contains(t, out, "Usage:", "args %v", args)
	}
}

func TestRootCmd_MissingTarget(t *testing.T) {
	out, err := execute(t, t.TempDir(), filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Contains(t, out, "Usage:")
}

func TestRootCmd_TargetNotDirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	out, err := execute(t, t.TempDir(), file)
	assert.ErrorContains(t, err, "not a directory")
	assert.Contains(t, out, "Usage:")
}

func TestRootCmd_InvalidConfig(t *testing.T) {
	_, err := execute(t, "--log-format", "xml", t.TempDir(), t.TempDir())
	assert.ErrorContains(t, err, "invalid configuration")
}

func newTestCmd(t *testing.T, args ...string) (*cobra.Command, *options) {
	t.Helper()

	opts := &options{}
	cmd := &cobra.Command{Use: "test"}
	bindFlags(cmd.Flags(), opts)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd, opts
}

func TestLoadConfig_Defaults(t *testing.T) {
	cmd, opts := newTestCmd(t)

	cfg, err := loadConfig(cmd, opts)
	require.NoError(t, err)
	assert.Equal(t, "mirrorfs", cfg.Mount.FsName)
	assert.False(t, cfg.Mount.ReadOnly)
	assert.Empty(t, cfg.Server.GRPCAddr)
	assert.Empty(t, cfg.Server.HTTPAddr)
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mirrorfs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mount:
  fs_name: data
  read_only: true
  exclude: ["*.tmp"]
server:
  http_addr: "127.0.0.1:9100"
logging:
  level: warn
`), 0o644))

	cmd, opts := newTestCmd(t,
		"--config", path,
		"--read-only=false",
		"--exclude", "secret/",
		"--grpc-addr", "127.0.0.1:9000",
		"--log-level", "debug",
	)

	cfg, err := loadConfig(cmd, opts)
	require.NoError(t, err)
	assert.Equal(t, "data", cfg.Mount.FsName)
	assert.False(t, cfg.Mount.ReadOnly)
	assert.Equal(t, []string{"*.tmp", "secret/"}, cfg.Mount.Exclude)
	assert.Equal(t, "127.0.0.1:9100", cfg.Server.HTTPAddr)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.GRPCAddr)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestCheckTarget(t *testing.T) {
	assert.NoError(t, checkTarget(t.TempDir()))
	assert.Error(t, checkTarget(filepath.Join(t.TempDir(), "missing")))
}

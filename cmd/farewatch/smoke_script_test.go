package main

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSmokeRealProviderScriptSkipsWhenDisabled(t *testing.T) {
	repoRoot := testRepoRoot(t)
	cmd := exec.Command(filepath.Join(repoRoot, "scripts", "smoke-real-provider.sh"))
	cmd.Dir = repoRoot
	cmd.Env = minimalEnv()
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
	assert.Contains(t, string(out), "skipped")
}

func TestSmokeRealProviderScriptFailsWithoutRequiredEnv(t *testing.T) {
	repoRoot := testRepoRoot(t)
	cmd := exec.Command(filepath.Join(repoRoot, "scripts", "smoke-real-provider.sh"))
	cmd.Dir = repoRoot
	cmd.Env = append(minimalEnv(), "FAREWATCH_SMOKE_REAL=1")
	out, err := cmd.CombinedOutput()
	require.Error(t, err, string(out))
	assert.Contains(t, string(out), "missing required env var")
}

func minimalEnv() []string {
	env := []string{}
	if path := os.Getenv("PATH"); path != "" {
		env = append(env, "PATH="+path)
	}
	if home := os.Getenv("HOME"); home != "" {
		env = append(env, "HOME="+home)
	}
	return env
}

func testRepoRoot(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	return filepath.Clean(filepath.Join(wd, "..", ".."))
}

package shell

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnippet(t *testing.T) {
	for _, sh := range []string{"bash", "zsh"} {
		s, err := Snippet(sh)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(s, markerStart+"\n"))
		assert.True(t, strings.HasSuffix(s, markerEnd+"\n"))
		assert.Contains(t, s, "sgptr <<<")
	}

	_, err := Snippet("fish")
	assert.ErrorIs(t, err, ErrUnsupportedShell)
}

func TestProfilePath(t *testing.T) {
	p, err := ProfilePath("zsh", "/home/u")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/home/u", ".zshrc"), p)

	p, err = ProfilePath("bash", "/home/u")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/home/u", ".bashrc"), p)

	_, err = ProfilePath("tcsh", "/home/u")
	assert.ErrorIs(t, err, ErrUnsupportedShell)
}

func TestInstall_NewProfile(t *testing.T) {
	profile := filepath.Join(t.TempDir(), ".bashrc")
	require.NoError(t, Install(profile, "bash"))

	data, err := os.ReadFile(profile)
	require.NoError(t, err)
	want, _ := Snippet("bash")
	assert.Equal(t, want, string(data))
}

func TestInstall_Idempotent(t *testing.T) {
	profile := filepath.Join(t.TempDir(), ".zshrc")
	require.NoError(t, os.WriteFile(profile, []byte("export PATH=$HOME/bin:$PATH"), 0o600))

	require.NoError(t, Install(profile, "zsh"))
	require.NoError(t, Install(profile, "zsh"))

	data, err := os.ReadFile(profile)
	require.NoError(t, err)
	content := string(data)
	assert.Equal(t, 1, strings.Count(content, markerStart))
	assert.True(t, strings.HasPrefix(content, "export PATH=$HOME/bin:$PATH\n"+markerStart))

	info, err := os.Stat(profile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm(), "mode should be preserved")
}

func TestInstall_Unsupported(t *testing.T) {
	profile := filepath.Join(t.TempDir(), ".profile")
	assert.ErrorIs(t, Install(profile, "fish"), ErrUnsupportedShell)
	assert.NoFileExists(t, profile)
}

func TestUninstall(t *testing.T) {
	profile := filepath.Join(t.TempDir(), ".bashrc")
	original := "alias ll='ls -la'\n"
	require.NoError(t, os.WriteFile(profile, []byte(original), 0o644))
	require.NoError(t, Install(profile, "bash"))
	require.NoError(t, os.WriteFile(profile, append(must(os.ReadFile(profile)), "alias g=git\n"...), 0o644))

	removed, err := Uninstall(profile)
	require.NoError(t, err)
	assert.True(t, removed)

	data, err := os.ReadFile(profile)
	require.NoError(t, err)
	assert.Equal(t, original+"alias g=git\n", string(data))

	removed, err = Uninstall(profile)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestUninstall_MissingProfile(t *testing.T) {
	removed, err := Uninstall(filepath.Join(t.TempDir(), ".zshrc"))
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestReplaceSection(t *testing.T) {
	section := markerStart + "\nnew\n" + markerEnd + "\n"
	existing := "a\n" + markerStart + "\nold\n" + markerEnd + "\nb\n"
	assert.Equal(t, "a\n"+section+"b\n", replaceSection(existing, section))
	assert.Equal(t, "a\n"+section, replaceSection("a", section))
	assert.Equal(t, section, replaceSection("", section))
}

func must(b []byte, err error) []byte {
	if err != nil {
		panic(err)
	}
	return b
}

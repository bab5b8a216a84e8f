package pathsafe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_Basic(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))

	got, err := Resolve(root, "/sub/file.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "sub", "file.txt"), got)
}

func TestResolve_Root(t *testing.T) {
	root := t.TempDir()
	got, err := Resolve(root, "/")
	require.NoError(t, err)
	assert.Equal(t, root, filepath.Clean(got))
}

func TestResolve_RejectsDotDot(t *testing.T) {
	root := t.TempDir()
	_, err := Resolve(root, "../etc/passwd")
	assert.ErrorIs(t, err, ErrEscape)
}

func TestResolve_RejectsEmbeddedDotDot(t *testing.T) {
	root := t.TempDir()
	_, err := Resolve(root, "a/../../b")
	assert.ErrorIs(t, err, ErrEscape)
}

func TestResolve_RejectsBackslashDotDot(t *testing.T) {
	root := t.TempDir()
	_, err := Resolve(root, "..\\..\\etc\\passwd")
	assert.ErrorIs(t, err, ErrEscape)
}

func TestResolve_DecodesPercentEncoding(t *testing.T) {
	root := t.TempDir()
	_, err := Resolve(root, "%2e%2e/secret")
	assert.ErrorIs(t, err, ErrEscape)
}

func TestResolve_RejectsSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "link")))

	_, err := Resolve(root, "link/secret.txt")
	assert.ErrorIs(t, err, ErrEscape)
}

func TestRel(t *testing.T) {
	root := t.TempDir()
	abs := filepath.Join(root, "a", "b.txt")
	rel, err := Rel(root, abs)
	require.NoError(t, err)
	assert.Equal(t, "/a/b.txt", rel)
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
server:
  addr: 0.0.0.0
  port: 9090
shares:
  - name: pub
    path: /srv/pub
    quotaBytes: 1000
users:
  - name: alice
    pass: secret
rules:
  - who: alice
    allow: ["R", "W", "D"]
    roots: ["pub"]
    paths: ["/"]
`

func newTestStore(t *testing.T, yamlBody string) *Store {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "chfs.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(yamlBody), 0o644))
	dataDir := filepath.Join(dir, "data")
	s, err := New(cfgPath, dataDir, nil)
	require.NoError(t, err)
	return s
}

func TestNew_ParsesYAMLAndMerges(t *testing.T) {
	s := newTestStore(t, sampleYAML)
	snap := s.Current()

	require.Len(t, snap.Shares, 1)
	assert.Equal(t, "pub", snap.Shares[0].Name)
	assert.Equal(t, int64(1000), snap.Shares[0].QuotaBytes)
	assert.Equal(t, 9090, snap.Server.Port)

	require.Len(t, snap.Users, 1)
	assert.Equal(t, "alice", snap.Users[0].Name)
	require.Len(t, snap.Rules, 1)
	assert.Equal(t, []string{"pub"}, snap.Rules[0].Roots)
}

func TestNew_MissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "nope.yaml"), filepath.Join(dir, "data"), nil)
	require.NoError(t, err)
	snap := s.Current()
	assert.Equal(t, 8080, snap.Server.Port)
	assert.Empty(t, snap.Shares)
}

func TestQuotaOverrideAppliesOnLoad(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "chfs.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(sampleYAML), 0o644))
	dataDir := filepath.Join(dir, "data")

	s, err := New(cfgPath, dataDir, nil)
	require.NoError(t, err)
	require.NoError(t, s.Shares().SetQuota("pub", 5000))
	require.NoError(t, s.Reload())

	share, ok := s.Current().ShareByName("pub")
	require.True(t, ok)
	assert.Equal(t, int64(5000), share.QuotaBytes)
}

func TestReload_MergesNewDynamicUser(t *testing.T) {
	s := newTestStore(t, sampleYAML)
	require.NoError(t, s.Users().Register("bob", "secret1", []string{"pub"}))
	require.NoError(t, s.Reload())

	_, ok := s.Current().UserByName("bob")
	assert.True(t, ok)
}

func TestReload_InvalidYAMLKeepsPreviousSnapshot(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "chfs.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(sampleYAML), 0o644))
	s, err := New(cfgPath, filepath.Join(dir, "data"), nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(cfgPath, []byte("not: [valid yaml"), 0o644))
	err = s.Reload()
	assert.Error(t, err)

	snap := s.Current()
	require.Len(t, snap.Shares, 1)
	assert.Equal(t, "pub", snap.Shares[0].Name)
}

func TestReload_InvokesCallbacks(t *testing.T) {
	s := newTestStore(t, sampleYAML)

	var gotOld, gotNew *Snapshot
	s.AddReloadCallback(func(old, n *Snapshot) {
		gotOld, gotNew = old, n
	})

	require.NoError(t, s.Reload())
	assert.NotNil(t, gotOld)
	assert.NotNil(t, gotNew)
}

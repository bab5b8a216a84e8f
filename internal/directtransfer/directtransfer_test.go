package directtransfer

import (
	"strings"
	"testing"
	"time"

	"github.com/chfs/chfs/internal/chfserr"
	"github.com/stretchr/testify/require"
)

func TestStore_CreateListDownload(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	entry, err := s.Create("alice", "bob", "report.txt", "text/plain", strings.NewReader("hello"), 0, 0)
	require.NoError(t, err)
	require.Equal(t, int64(5), entry.Size)

	incoming, err := s.List("bob", DirectionIncoming)
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	require.Equal(t, entry.ID, incoming[0].ID)

	outgoing, err := s.List("alice", DirectionOutgoing)
	require.NoError(t, err)
	require.Len(t, outgoing, 1)

	got, path, err := s.PrepareDownload(entry.ID, "bob")
	require.NoError(t, err)
	require.FileExists(t, path)
	s.FinishDownload(got)
	require.NoFileExists(t, path)

	_, _, err = s.PrepareDownload(entry.ID, "bob")
	require.Error(t, err)
	e, _ := chfserr.As(err)
	require.Equal(t, chfserr.KindNotFound, e.Kind)
}

func TestStore_DownloadForbiddenForWrongRecipient(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	entry, err := s.Create("alice", "bob", "x.bin", "", strings.NewReader("data"), 0, 0)
	require.NoError(t, err)

	_, _, err = s.PrepareDownload(entry.ID, "eve")
	require.Error(t, err)
	e, _ := chfserr.As(err)
	require.Equal(t, chfserr.KindForbidden, e.Kind)
}

func TestStore_RejectsOversizedUpload(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	_, err = s.Create("alice", "bob", "big.bin", "", strings.NewReader("0123456789"), 5, 0)
	require.Error(t, err)
	e, _ := chfserr.As(err)
	require.Equal(t, chfserr.KindPayloadTooLarge, e.Kind)
}

func TestStore_ExpiredEntryIsPruned(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	entry, err := s.Create("alice", "bob", "x.bin", "", strings.NewReader("data"), 0, 10*time.Millisecond)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	list, err := s.List("bob", DirectionIncoming)
	require.NoError(t, err)
	require.Empty(t, list)

	_, _, err = s.PrepareDownload(entry.ID, "bob")
	require.Error(t, err)
}

func TestStore_DeleteRequiresParticipant(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	entry, err := s.Create("alice", "bob", "x.bin", "", strings.NewReader("data"), 0, 0)
	require.NoError(t, err)

	_, err = s.Delete(entry.ID, "eve")
	require.Error(t, err)

	_, err = s.Delete(entry.ID, "alice")
	require.NoError(t, err)

	_, err = s.List("bob", DirectionIncoming)
	require.NoError(t, err)
}

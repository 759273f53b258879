package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wildernesslabs/meadowd/internal/types"
)

func TestOpen_CreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "store")
	s, err := Open(root)
	require.NoError(t, err)
	require.Empty(t, s.List())

	info, err := os.Stat(root)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestAdd_GetRoundTrip(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	descriptor := types.UpdateDescriptor{MpakID: "m1", MpakDownloadURL: "cdn.example.com/m1.mpak"}
	record, err := s.Add(descriptor)
	require.NoError(t, err)
	require.Equal(t, types.ApplyStatePending, record.ApplyState)

	got, ok := s.Get("m1")
	require.True(t, ok)
	require.Equal(t, "m1", got.Descriptor.MpakID)
}

func TestAdd_Idempotent(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	first, err := s.Add(types.UpdateDescriptor{MpakID: "m1"})
	require.NoError(t, err)

	first, err = s.Update("m1", func(r *types.StoreRecord) {
		r.ApplyState = types.ApplyStateApplied
	})
	require.NoError(t, err)

	second, err := s.Add(types.UpdateDescriptor{MpakID: "m1"})
	require.NoError(t, err)
	require.Equal(t, types.ApplyStateApplied, second.ApplyState, "re-adding a known update must not reset progress")
	require.Equal(t, first.ApplyState, second.ApplyState)
}

func TestUpdate_UnknownID(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	_, err = s.Update("missing", func(r *types.StoreRecord) {})
	require.Error(t, err)
	require.Equal(t, types.ErrorKindNotKnown, types.KindOf(err))
}

func TestRemove(t *testing.T) {
	root := t.TempDir()
	s, err := Open(root)
	require.NoError(t, err)

	_, err = s.Add(types.UpdateDescriptor{MpakID: "m1"})
	require.NoError(t, err)

	require.NoError(t, s.Remove("m1"))

	_, ok := s.Get("m1")
	require.False(t, ok)

	_, err = os.Stat(filepath.Join(root, "m1"))
	require.True(t, os.IsNotExist(err))
}

func TestOpen_ReloadsExistingRecords(t *testing.T) {
	root := t.TempDir()
	s1, err := Open(root)
	require.NoError(t, err)

	_, err = s1.Add(types.UpdateDescriptor{MpakID: "m1", MpakDownloadURL: "host/m1.mpak"})
	require.NoError(t, err)

	s2, err := Open(root)
	require.NoError(t, err)

	record, ok := s2.Get("m1")
	require.True(t, ok)
	require.Equal(t, "host/m1.mpak", record.Descriptor.MpakDownloadURL)
}

func TestCountsByApplyState(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	_, err = s.Add(types.UpdateDescriptor{MpakID: "m1"})
	require.NoError(t, err)
	_, err = s.Add(types.UpdateDescriptor{MpakID: "m2"})
	require.NoError(t, err)
	_, err = s.Update("m2", func(r *types.StoreRecord) { r.ApplyState = types.ApplyStateFailed })
	require.NoError(t, err)

	counts := s.CountsByApplyState()
	require.Equal(t, 1, counts[types.ApplyStatePending])
	require.Equal(t, 1, counts[types.ApplyStateFailed])
}

func TestScratchDir_UniquePerCall(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	a, err := s.ScratchDir("m1")
	require.NoError(t, err)
	b, err := s.ScratchDir("m1")
	require.NoError(t, err)

	require.NotEqual(t, a, b)
	require.DirExists(t, a)
	require.DirExists(t, b)
}

package apply

import (
	"archive/zip"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/wildernesslabs/meadowd/internal/store"
	"github.com/wildernesslabs/meadowd/internal/types"
)

func testSettings(t *testing.T) *types.Settings {
	t.Helper()
	root := t.TempDir()
	return &types.Settings{
		StoreRoot:              filepath.Join(root, "updates"),
		StagingPath:            filepath.Join(root, "staging"),
		RollbackPath:           filepath.Join(root, "rollback"),
		TempExtractPath:        filepath.Join(root, "extract"),
		UpdateApplyTimeoutSecs: 60,
	}
}

func writeTestZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, contents := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(contents))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}

func TestQuiesce_ProcessExits(t *testing.T) {
	settings := testSettings(t)
	settings.UpdateApplyTimeoutSecs = 10
	e := New(nil, settings)

	cmd := exec.Command("sleep", "0.2")
	require.NoError(t, cmd.Start())
	pid := cmd.Process.Pid

	done := make(chan error, 1)
	go func() { done <- e.quiesce(zerolog.Nop(), pid) }()

	require.NoError(t, cmd.Wait())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("quiesce did not observe process exit")
	}
}

func TestQuiesce_Timeout(t *testing.T) {
	settings := testSettings(t)
	settings.UpdateApplyTimeoutSecs = 0
	e := New(nil, settings)

	err := e.quiesce(zerolog.Nop(), os.Getpid())
	require.Error(t, err)
	require.Equal(t, types.ErrorKindTimeout, types.KindOf(err))
}

func TestMergeIntoStaging_PreservesAndReplaces(t *testing.T) {
	settings := testSettings(t)
	e := New(nil, settings)

	require.NoError(t, os.MkdirAll(filepath.Join(settings.TempExtractPath, "app", "shared"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(settings.TempExtractPath, "app", "bin"), []byte("v2"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(settings.TempExtractPath, "app", "shared", "data.txt"), []byte("new"), 0644))

	appDir := filepath.Join(t.TempDir(), "myapp")
	require.NoError(t, os.MkdirAll(filepath.Join(appDir, "shared"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(appDir, "bin"), []byte("v1"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(appDir, "config.ini"), []byte("keep"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(appDir, "shared", "data.txt"), []byte("old"), 0644))

	preserved, err := e.mergeIntoStaging(&task{appDir: appDir})
	require.NoError(t, err)
	require.Equal(t, 1, preserved)

	data, err := os.ReadFile(filepath.Join(settings.StagingPath, "bin"))
	require.NoError(t, err)
	require.Equal(t, "v2", string(data))

	data, err = os.ReadFile(filepath.Join(settings.StagingPath, "config.ini"))
	require.NoError(t, err)
	require.Equal(t, "keep", string(data))

	data, err = os.ReadFile(filepath.Join(settings.StagingPath, "shared", "data.txt"))
	require.NoError(t, err)
	require.Equal(t, "new", string(data))
}

func TestSwap_SameFilesystem(t *testing.T) {
	settings := testSettings(t)
	e := New(nil, settings)

	appDir := filepath.Join(t.TempDir(), "myapp")
	require.NoError(t, os.MkdirAll(appDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(appDir, "bin"), []byte("v1"), 0644))

	require.NoError(t, os.MkdirAll(settings.StagingPath, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(settings.StagingPath, "bin"), []byte("v2"), 0644))

	require.NoError(t, e.swap(appDir))

	data, err := os.ReadFile(filepath.Join(appDir, "bin"))
	require.NoError(t, err)
	require.Equal(t, "v2", string(data))

	data, err = os.ReadFile(filepath.Join(settings.RollbackPath, "bin"))
	require.NoError(t, err)
	require.Equal(t, "v1", string(data))
}

func TestSwapByCopy_Direct(t *testing.T) {
	root := t.TempDir()
	appDir := filepath.Join(root, "app")
	staging := filepath.Join(root, "staging")
	rollback := filepath.Join(root, "rollback")

	require.NoError(t, os.MkdirAll(appDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(appDir, "bin"), []byte("v1"), 0644))
	require.NoError(t, os.MkdirAll(staging, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(staging, "bin"), []byte("v2"), 0644))

	require.NoError(t, swapByCopy(appDir, staging, rollback))

	data, err := os.ReadFile(filepath.Join(appDir, "bin"))
	require.NoError(t, err)
	require.Equal(t, "v2", string(data))

	data, err = os.ReadFile(filepath.Join(rollback, "bin"))
	require.NoError(t, err)
	require.Equal(t, "v1", string(data))
}

func TestApplyTracked_FullPipeline(t *testing.T) {
	settings := testSettings(t)

	st, err := store.Open(settings.StoreRoot)
	require.NoError(t, err)

	mpakDir := filepath.Join(settings.StoreRoot, "U1")
	require.NoError(t, os.MkdirAll(mpakDir, 0755))
	writeTestZip(t, filepath.Join(mpakDir, "update.mpak"), map[string]string{
		"app/bin":            "v2",
		"app/shared/data.txt": "new",
	})

	_, err = st.Add(types.UpdateDescriptor{MpakID: "U1", MpakDownloadURL: "http://host/u1.mpak"})
	require.NoError(t, err)

	appDir := filepath.Join(t.TempDir(), "myapp")
	require.NoError(t, os.MkdirAll(filepath.Join(appDir, "shared"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(appDir, "bin"), []byte("v1"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(appDir, "config.ini"), []byte("keep"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(appDir, "shared", "data.txt"), []byte("old"), 0644))

	cmd := exec.Command("sleep", "0.2")
	require.NoError(t, cmd.Start())
	pid := cmd.Process.Pid

	e := New(st, settings)
	err = e.ApplyTracked("U1", filepath.Join(appDir, "bin"), pid, "")
	require.NoError(t, err)

	require.NoError(t, cmd.Wait())

	require.Eventually(t, func() bool {
		record, ok := st.Get("U1")
		return ok && record.ApplyState == types.ApplyStateApplied
	}, 5*time.Second, 20*time.Millisecond)

	data, err := os.ReadFile(filepath.Join(appDir, "bin"))
	require.NoError(t, err)
	require.Equal(t, "v2", string(data))

	data, err = os.ReadFile(filepath.Join(appDir, "config.ini"))
	require.NoError(t, err)
	require.Equal(t, "keep", string(data))

	record, ok := st.Get("U1")
	require.True(t, ok)
	require.True(t, record.Descriptor.IsApplied())
}

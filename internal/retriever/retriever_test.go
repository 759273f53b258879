package retriever

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wildernesslabs/meadowd/internal/types"
)

func TestFetch_Success(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("package bytes"))
	}))
	defer server.Close()

	descriptor := types.UpdateDescriptor{MpakID: "m1", MpakDownloadURL: server.URL[len("http://"):]}
	dest := filepath.Join(t.TempDir(), "update.mpak")

	err := New().Fetch(context.Background(), descriptor, "tok123", dest)
	require.NoError(t, err)
	require.Equal(t, "Bearer tok123", gotAuth)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "package bytes", string(data))
}

func TestFetch_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	descriptor := types.UpdateDescriptor{MpakID: "m1", MpakDownloadURL: server.URL}
	dest := filepath.Join(t.TempDir(), "update.mpak")

	err := New().Fetch(context.Background(), descriptor, "tok", dest)
	require.Error(t, err)

	kindErr, ok := err.(*types.Error)
	require.True(t, ok)
	require.Equal(t, types.ErrorKindHTTPStatus, kindErr.Kind)
	require.Equal(t, http.StatusForbidden, kindErr.HTTPStatus)
}

func TestFetch_TruncatedTransferLeavesNoPartialFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("short"))
	}))
	defer server.Close()

	descriptor := types.UpdateDescriptor{MpakID: "m1", MpakDownloadURL: server.URL[len("http://"):]}
	dest := filepath.Join(t.TempDir(), "update.mpak")

	err := New().Fetch(context.Background(), descriptor, "tok", dest)
	require.Error(t, err)

	_, statErr := os.Stat(dest)
	require.True(t, os.IsNotExist(statErr), "final path must not exist after a truncated download")
	_, statErr = os.Stat(dest + ".tmp")
	require.True(t, os.IsNotExist(statErr), "tmp file must be cleaned up after a failed download")
}

func TestFetch_BareAuthorityRewrite(t *testing.T) {
	var gotScheme string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotScheme = r.URL.Scheme
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	descriptor := types.UpdateDescriptor{MpakID: "m1", MpakDownloadURL: server.URL[len("http://"):]}
	_ = descriptor.DownloadURL()

	require.Equal(t, "http://"+server.URL[len("http://"):], descriptor.DownloadURL())
	_ = gotScheme
}

package pipeline

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/go-scrape-estates/models"
)

func TestFileStoreAppendRecords(t *testing.T) {
	store := NewFileStore(StoreOptions{})
	dest := Destination{File: filepath.Join(t.TempDir(), "auctions.jsonl")}
	ctx := context.Background()

	require.NoError(t, store.AppendRecords(ctx, []models.Record{deal("A", 1)}, dest))
	require.NoError(t, store.AppendRecords(ctx, []models.Record{deal("B", 2), deal("C", 3)}, dest))
	require.NoError(t, store.AppendRecords(ctx, nil, dest))

	raw, err := os.ReadFile(dest.File)
	require.NoError(t, err)
	lines := 0
	for _, b := range raw {
		if b == '\n' {
			lines++
		}
	}
	require.Equal(t, 3, lines)
}

func TestFileStoreAppendSurfacesErrors(t *testing.T) {
	store := NewFileStore(StoreOptions{})
	err := store.AppendRecords(context.Background(), []models.Record{deal("A", 1)}, Destination{File: "out.unknown"})
	require.Error(t, err)
}

func TestFileStoreDownloadBinary(t *testing.T) {
	store := NewFileStore(StoreOptions{UserAgent: "test-agent"})
	httpmock.ActivateNonDefault(store.Client().GetClient())
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponder(http.MethodGet, "https://img.example/1.jpg",
		func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "test-agent", req.Header.Get("User-Agent"))
			return httpmock.NewBytesResponse(http.StatusOK, []byte("JPEGDATA")), nil
		})
	httpmock.RegisterResponder(http.MethodGet, "https://img.example/missing.jpg",
		httpmock.NewStringResponder(http.StatusNotFound, "nope"))

	dir := t.TempDir()
	dest := filepath.Join(dir, "asset", "0.jpg")
	require.NoError(t, store.DownloadBinary(context.Background(), "https://img.example/1.jpg", dest))
	raw, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "JPEGDATA", string(raw))

	missing := filepath.Join(dir, "asset", "1.jpg")
	require.Error(t, store.DownloadBinary(context.Background(), "https://img.example/missing.jpg", missing))
	_, err = os.Stat(missing)
	require.True(t, os.IsNotExist(err))
}

func TestEnsureFolderAndSafeName(t *testing.T) {
	store := NewFileStore(StoreOptions{})
	dir := filepath.Join(t.TempDir(), SafeName("【一拍】A/B:C*"))
	got, err := store.EnsureFolder(dir)
	require.NoError(t, err)
	info, err := os.Stat(got)
	require.NoError(t, err)
	require.True(t, info.IsDir())

	require.Equal(t, "【一拍】A_B_C_", SafeName("【一拍】A/B:C*"))
	require.Equal(t, "_", SafeName(" .. "))
}

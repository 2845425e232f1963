package payment_test

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dispatchly/ledger-api/internal/domain/payment"
	"github.com/dispatchly/ledger-api/internal/pkg/storage"
)

func TestArchiverKey(t *testing.T) {
	a := payment.NewArchiver(newMemStorage(), "audit/")
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	key := a.Key("charge.success", "REF1", at)
	assert.True(t, strings.HasPrefix(key, "audit/2026/03/01/charge_success/REF1-"), key)
	assert.True(t, strings.HasSuffix(key, ".json"))
	assert.NotEqual(t, key, a.Key("charge.success", "REF1", at))

	assert.Contains(t, a.Key("transfer.failed", "", at), "/no-reference-")
}

func TestArchiverStoresOnLocalDisk(t *testing.T) {
	base := t.TempDir()
	store, err := storage.NewLocalStorage(base)
	require.NoError(t, err)
	a := payment.NewArchiver(store, "")
	ctx := context.Background()

	body := []byte(`{"event":"charge.success","data":{"reference":"REF1"}}`)
	a.Store(ctx, "charge.success", "REF1", body)

	var files []string
	require.NoError(t, filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			files = append(files, path)
		}
		return err
	}))
	require.Len(t, files, 1)
	assert.Contains(t, filepath.ToSlash(files[0]), "/webhooks/paystack/")
	got, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Equal(t, body, got)

	var nilArchiver *payment.Archiver
	assert.NotPanics(t, func() { nilArchiver.Store(ctx, "charge.success", "REF1", body) })
}

func TestArchiverRoundTripThroughStorage(t *testing.T) {
	store := newMemStorage()
	a := payment.NewArchiver(store, "")
	body := []byte(`{"event":"transfer.success"}`)

	a.Store(context.Background(), "transfer.success", "WDR-1", body)
	require.Equal(t, 1, store.Len())

	for key := range store.objects {
		rc, err := store.Get(context.Background(), key)
		require.NoError(t, err)
		got, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, body, got)
	}
}

package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TenderWatch/internal/ledger"
)

func openTestLedger(t *testing.T) *SQLLedger {
	t.Helper()
	l, err := OpenSQLLedger(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestSQLLedgerRoundTrip(t *testing.T) {
	t.Parallel()

	backend := openTestLedger(t)
	ctx := context.Background()

	data, err := backend.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, data.Recipients)
	assert.Nil(t, data.LastUpdated)

	stamp := "2025-03-10T09:00:00Z"
	data.Recipients["a@x"] = ledger.Entry{FirstSeen: stamp, SentTenders: []string{"1", "2"}, LastSent: stamp}
	data.Recipients["b@x"] = ledger.Entry{FirstSeen: stamp, SentTenders: []string{}}
	data.LastUpdated = &stamp
	require.NoError(t, backend.Store(ctx, data))

	got, err := backend.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestSQLLedgerStoreDropsMissingRecipients(t *testing.T) {
	t.Parallel()

	backend := openTestLedger(t)
	ctx := context.Background()

	stamp := "2025-03-10T09:00:00Z"
	require.NoError(t, backend.Store(ctx, ledger.Data{Recipients: map[string]ledger.Entry{
		"keep@x": {FirstSeen: stamp, SentTenders: []string{"1"}},
		"gone@x": {FirstSeen: stamp, SentTenders: []string{"1", "2"}},
	}}))
	require.NoError(t, backend.Store(ctx, ledger.Data{Recipients: map[string]ledger.Entry{
		"keep@x": {FirstSeen: stamp, SentTenders: []string{"1", "3"}},
	}}))

	got, err := backend.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got.Recipients, 1)
	assert.Equal(t, []string{"1", "3"}, got.Recipients["keep@x"].SentTenders)
}

func TestSQLLedgerBacksLedger(t *testing.T) {
	t.Parallel()

	backend := openTestLedger(t)
	ctx := context.Background()

	l, err := ledger.Open(ctx, backend, nil, nil)
	require.NoError(t, err)
	l.MarkSent("a@x", []string{"7", "8"})
	require.NoError(t, l.Save(ctx))

	reopened, err := ledger.Open(ctx, backend, nil, nil)
	require.NoError(t, err)
	assert.False(t, reopened.IsNewRecipient("a@x"))
	assert.Equal(t, map[string]struct{}{"7": {}, "8": {}}, reopened.SentTenders("a@x"))
}

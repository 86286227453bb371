package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryBackend struct {
	data    Data
	loadErr error
	stored  []Data
}

func (m *memoryBackend) Load(context.Context) (Data, error) {
	if m.loadErr != nil {
		return Data{}, m.loadErr
	}
	return m.data, nil
}

func (m *memoryBackend) Store(_ context.Context, data Data) error {
	m.stored = append(m.stored, data)
	m.data = data
	return nil
}

func fixedNow() time.Time {
	return time.Date(2025, time.March, 10, 9, 30, 0, 0, time.UTC)
}

func TestMarkSentIsMonotonicUnion(t *testing.T) {
	t.Parallel()

	l, err := Open(context.Background(), &memoryBackend{}, fixedNow, nil)
	require.NoError(t, err)

	assert.True(t, l.IsNewRecipient("a@x.com"))

	batches := [][]string{{"1", "2"}, {"2", "2", "3"}, {}, {"1"}}
	prev := 0
	for _, batch := range batches {
		l.MarkSent("a@x.com", batch)
		size := len(l.SentTenders("a@x.com"))
		assert.GreaterOrEqual(t, size, prev)
		prev = size
	}

	assert.False(t, l.IsNewRecipient("a@x.com"))
	assert.Equal(t, map[string]struct{}{"1": {}, "2": {}, "3": {}}, l.SentTenders("a@x.com"))
}

func TestSentTendersReturnsCopy(t *testing.T) {
	t.Parallel()

	l, err := Open(context.Background(), &memoryBackend{}, fixedNow, nil)
	require.NoError(t, err)

	l.MarkSent("a@x.com", []string{"1"})
	sent := l.SentTenders("a@x.com")
	sent["99"] = struct{}{}

	assert.Len(t, l.SentTenders("a@x.com"), 1)
	assert.Empty(t, l.SentTenders("nobody@x.com"))
}

func TestSaveRoundTripsThroughBackend(t *testing.T) {
	t.Parallel()

	backend := &memoryBackend{data: Data{Recipients: map[string]Entry{
		"old@x.com": {FirstSeen: "2024-01-01T00:00:00", SentTenders: []string{"5"}},
	}}}

	l, err := Open(context.Background(), backend, fixedNow, nil)
	require.NoError(t, err)

	l.MarkSent("new@x.com", []string{"9", "1"})
	require.NoError(t, l.Save(context.Background()))

	require.Len(t, backend.stored, 1)
	saved := backend.stored[0]
	require.NotNil(t, saved.LastUpdated)
	assert.Equal(t, "2025-03-10T09:30:00Z", *saved.LastUpdated)
	assert.Equal(t, []string{"1", "9"}, saved.Recipients["new@x.com"].SentTenders)
	assert.Equal(t, "2025-03-10T09:30:00Z", saved.Recipients["new@x.com"].FirstSeen)
	assert.Equal(t, "2024-01-01T00:00:00", saved.Recipients["old@x.com"].FirstSeen)
}

func TestCorruptStateOpensEmpty(t *testing.T) {
	t.Parallel()

	backend := &memoryBackend{loadErr: errors.Wrap(ErrCorrupt, "bad json")}
	l, err := Open(context.Background(), backend, fixedNow, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, l.Stats().TotalRecipients)
}

func TestOtherLoadErrorsPropagate(t *testing.T) {
	t.Parallel()

	backend := &memoryBackend{loadErr: errors.New("disk on fire")}
	_, err := Open(context.Background(), backend, fixedNow, nil)
	require.Error(t, err)
}

func TestPruneRemovesInactiveRecipients(t *testing.T) {
	t.Parallel()

	l, err := Open(context.Background(), &memoryBackend{}, fixedNow, nil)
	require.NoError(t, err)

	l.MarkSent("keep@x.com", []string{"1"})
	l.MarkSent("drop@x.com", []string{"1"})
	l.MarkSent("also-drop@x.com", nil)

	removed := l.Prune(map[string]struct{}{"keep@x.com": {}})
	assert.Equal(t, []string{"also-drop@x.com", "drop@x.com"}, removed)
	assert.False(t, l.IsNewRecipient("keep@x.com"))
	assert.True(t, l.IsNewRecipient("drop@x.com"))

	stats := l.Stats()
	assert.Equal(t, 1, stats.TotalRecipients)
	assert.Equal(t, 1, stats.Recipients["keep@x.com"].TendersSent)
}

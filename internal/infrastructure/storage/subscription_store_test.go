package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TenderWatch/internal/domain"
)

func writeRaw(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func readSubscription(t *testing.T, path string) domain.Subscription {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var sub domain.Subscription
	require.NoError(t, json.Unmarshal(raw, &sub))
	return sub
}

func TestListValidReturnsWellFormedSubscriptions(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeRaw(t, dir, "b2.json", `{"id":"b2","classes":[],"recipients":["x@y.z"],"schedule":"0 9 * * *"}`)
	writeRaw(t, dir, "a1.json", `{"id":"a1","classes":["Works"],"recipients":["a@b.c"," "],"schedule":"*/5 * * * *","interval":"15min"}`)
	writeRaw(t, dir, "notes.txt", `ignored`)

	store := NewSubscriptionStore(dir, nil)
	subs, err := store.ListValid(context.Background())
	require.NoError(t, err)

	require.Len(t, subs, 2)
	assert.Equal(t, "a1", subs[0].ID)
	assert.Equal(t, []string{"a@b.c"}, subs[0].Recipients)
	assert.Equal(t, "b2", subs[1].ID)
}

func TestListValidRepairsCorruptFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeRaw(t, dir, "dead01.json", `{"id": "dead01", "recipients": [`)

	store := NewSubscriptionStore(dir, nil)
	subs, err := store.ListValid(context.Background())
	require.NoError(t, err)
	assert.Empty(t, subs)

	fixed := readSubscription(t, path)
	assert.Equal(t, "dead01", fixed.ID)
	assert.Equal(t, []string{domain.RepairRecipient}, fixed.Recipients)
	assert.Equal(t, domain.RepairSchedule, fixed.Schedule)
	assert.Equal(t, domain.RepairInterval, fixed.Interval)
	assert.Empty(t, fixed.Classes)

	// Repaired entries take part from the next listing on.
	subs, err = store.ListValid(context.Background())
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "dead01", subs[0].ID)
}

func TestListValidRepairKeepsSurvivingFields(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeRaw(t, dir, "c3.json", `{"id":"c3","classes":["Goods"],"recipients":[],"schedule":"0 * * * *"}`)

	store := NewSubscriptionStore(dir, nil)
	subs, err := store.ListValid(context.Background())
	require.NoError(t, err)
	assert.Empty(t, subs)

	fixed := readSubscription(t, path)
	assert.Equal(t, "c3", fixed.ID)
	assert.Equal(t, []string{"Goods"}, fixed.Classes)
	assert.Equal(t, "0 * * * *", fixed.Schedule)
	assert.Equal(t, []string{domain.RepairRecipient}, fixed.Recipients)
}

func TestCreateAssignsShortIDAndInterval(t *testing.T) {
	t.Parallel()

	store := NewSubscriptionStore(t.TempDir(), nil)
	ctx := context.Background()

	sub, err := store.Create(ctx, domain.Subscription{
		Classes:    []string{"Works"},
		Recipients: []string{"ops@example.com"},
		Interval:   "2hour",
	})
	require.NoError(t, err)
	assert.Len(t, sub.ID, 8)
	assert.Equal(t, "0 */2 * * *", sub.Schedule)

	got, err := store.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, sub, got)

	require.NoError(t, store.Delete(ctx, sub.ID))
	_, err = store.Get(ctx, sub.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveRejectsSubscriptionWithoutRecipients(t *testing.T) {
	t.Parallel()

	store := NewSubscriptionStore(t.TempDir(), nil)
	err := store.Save(context.Background(), domain.Subscription{ID: "x", Schedule: "* * * * *"})
	assert.ErrorIs(t, err, ErrInvalid)
}

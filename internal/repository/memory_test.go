package repository

import (
	"context"
	"testing"

	"github.com/jmehdipour/campaign-orchestrator/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64p(v int64) *int64 { return &v }

func TestMemoryStore_UpdateMissingReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.UpdateContact(ctx, 42, func(*model.Contact) {})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.UpdateConnection(ctx, 42, func(*model.Connection) {})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.UpdateSettings(ctx, func(*model.Settings) {})
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.DeleteConnection(ctx, 42), ErrNotFound)
}

func TestMemoryStore_UpdateKeepsID(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	cs, err := s.ReplaceContacts(ctx, []model.Contact{{Name: "a", Address: "1", FormattedAddress: "1"}})
	require.NoError(t, err)
	require.Len(t, cs, 1)
	assert.Equal(t, model.ContactPending, cs[0].Status)

	got, err := s.UpdateContact(ctx, cs[0].ID, func(c *model.Contact) {
		c.ID = 999
		c.Status = model.ContactSent
	})
	require.NoError(t, err)
	assert.Equal(t, cs[0].ID, got.ID)

	stored, err := s.GetContact(ctx, cs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.ContactSent, stored.Status)
}

func TestMemoryStore_LogsCappedNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var last int64
	for i := 0; i < LogCap+25; i++ {
		l, err := s.AppendLog(ctx, model.CampaignLog{Status: model.LogInfo, ContactID: int64p(int64(i))})
		require.NoError(t, err)
		last = l.ID
	}

	all, err := s.ListLogs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, LogCap)
	assert.Equal(t, last, all[0].ID)
	assert.Equal(t, int64(25), *all[len(all)-1].ContactID, "oldest 25 evicted")

	top, err := s.ListLogs(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, top, 3)
	assert.Equal(t, last, top[0].ID)
}

func TestMemoryStore_LatestLog(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, _ = s.AppendLog(ctx, model.CampaignLog{Status: model.LogSent, ContactID: int64p(1), VariantID: int64p(10)})
	_, _ = s.AppendLog(ctx, model.CampaignLog{Status: model.LogError, ContactID: int64p(1)})
	_, _ = s.AppendLog(ctx, model.CampaignLog{Status: model.LogSent, ContactID: int64p(1), VariantID: int64p(11)})
	_, _ = s.AppendLog(ctx, model.CampaignLog{Status: model.LogSent, ContactID: int64p(2), VariantID: int64p(12)})

	l, err := s.LatestLog(ctx, 1, model.LogSent)
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, int64(11), *l.VariantID)

	none, err := s.LatestLog(ctx, 3, model.LogSent)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestMemoryStore_ReceivedByContactAndClear(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, _ = s.AppendReceived(ctx, model.ReceivedMessage{ContactID: int64p(1), Body: "hi"})
	_, _ = s.AppendReceived(ctx, model.ReceivedMessage{Body: "stranger"})
	_, _ = s.AppendReceived(ctx, model.ReceivedMessage{ContactID: int64p(1), Body: "again"})

	mine, err := s.ListReceivedByContact(ctx, 1)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "again", mine[0].Body)

	require.NoError(t, s.ClearReceived(ctx))
	all, err := s.ListReceived(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestMemoryStore_UpsertVariantByOrdinal(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	a, err := s.UpsertVariant(ctx, model.Variant{Ordinal: 2, Text: "b"})
	require.NoError(t, err)
	_, err = s.UpsertVariant(ctx, model.Variant{Ordinal: 1, Text: "a"})
	require.NoError(t, err)
	b, err := s.UpsertVariant(ctx, model.Variant{Ordinal: 2, Text: "b2", Enabled: true})
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)

	vs, err := s.ListVariants(ctx)
	require.NoError(t, err)
	require.Len(t, vs, 2)
	assert.Equal(t, 1, vs[0].Ordinal)
	assert.Equal(t, "b2", vs[1].Text)
}

func TestMemoryStore_FindContactByAddress(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, err := s.ReplaceContacts(ctx, []model.Contact{
		{Name: "a", Address: "+55 11 1111-1111", FormattedAddress: "551111111111"},
		{Name: "b", Address: "5522222222222", FormattedAddress: "5522222222222"},
	})
	require.NoError(t, err)

	c, err := s.FindContactByAddress(ctx, "5522222222222")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "b", c.Name)

	c, err = s.FindContactByAddress(ctx, "000")
	require.NoError(t, err)
	assert.Nil(t, c)
}

package repository

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jmehdipour/campaign-orchestrator/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeArchive struct {
	mu   sync.Mutex
	rows []ArchivedLog
	err  error
}

func (f *fakeArchive) Insert(_ context.Context, rows ...ArchivedLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, rows...)
	return nil
}

func (f *fakeArchive) List(context.Context, ArchiveFilter) ([]ArchivedLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ArchivedLog(nil), f.rows...), nil
}

func TestArchivingStore_MirrorsAppendedLogs(t *testing.T) {
	ctx := context.Background()
	arch := &fakeArchive{}
	s := NewArchivingStore(NewMemoryStore(), arch, zap.NewNop())
	s.SetRunID("run-1")

	saved, err := s.AppendLog(ctx, model.CampaignLog{Status: model.LogSent, ContactID: int64p(7)})
	require.NoError(t, err)

	rows, _ := arch.List(ctx, ArchiveFilter{})
	require.Len(t, rows, 1)
	assert.Equal(t, saved.ID, rows[0].LogID)
	assert.Equal(t, "run-1", rows[0].RunID)
	assert.NotEmpty(t, rows[0].ArchiveID)
}

func TestArchivingStore_ArchiveFailureDoesNotFailAppend(t *testing.T) {
	ctx := context.Background()
	arch := &fakeArchive{err: errors.New("clickhouse down")}
	s := NewArchivingStore(NewMemoryStore(), arch, zap.NewNop())

	_, err := s.AppendLog(ctx, model.CampaignLog{Status: model.LogInfo})
	require.NoError(t, err)

	logs, err := s.ListLogs(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

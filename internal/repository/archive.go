package repository

import (
	"context"
	"sync"

	"github.com/jmehdipour/campaign-orchestrator/internal/model"
	"github.com/jmehdipour/campaign-orchestrator/internal/util"
	"go.uber.org/zap"
)

// ArchivingStore mirrors every appended campaign log into the ClickHouse
// archive. Archive failures are logged and never fail the append.
type ArchivingStore struct {
	Store
	archive CHLogsRepository
	log     *zap.Logger

	mu    sync.RWMutex
	runID string
}

func NewArchivingStore(inner Store, archive CHLogsRepository, log *zap.Logger) *ArchivingStore {
	return &ArchivingStore{Store: inner, archive: archive, log: log.Named("archive")}
}

// SetRunID tags subsequently archived rows with the id of the current run.
func (s *ArchivingStore) SetRunID(id string) {
	s.mu.Lock()
	s.runID = id
	s.mu.Unlock()
}

func (s *ArchivingStore) AppendLog(ctx context.Context, l model.CampaignLog) (model.CampaignLog, error) {
	saved, err := s.Store.AppendLog(ctx, l)
	if err != nil {
		return saved, err
	}

	s.mu.RLock()
	run := s.runID
	s.mu.RUnlock()

	row := ArchivedLog{
		ArchiveID: util.New(),
		RunID:     run,
		LogID:     saved.ID,
		ChannelID: saved.ChannelID,
		ContactID: saved.ContactID,
		VariantID: saved.VariantID,
		Status:    saved.Status,
		ErrorText: saved.ErrorText,
		CreatedAt: saved.CreatedAt,
	}
	if aerr := s.archive.Insert(ctx, row); aerr != nil {
		s.log.Warn("archive insert failed", zap.Int64("log_id", saved.ID), zap.Error(aerr))
	}
	return saved, nil
}

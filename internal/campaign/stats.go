package campaign

import (
	"context"
	"fmt"
	"math"

	"github.com/jmehdipour/campaign-orchestrator/internal/model"
)

type Stats struct {
	Sent                  int    `json:"sent"`
	Pending               int    `json:"pending"`
	Errors                int    `json:"errors"`
	Responded             int    `json:"responded"`
	SecondSent            int    `json:"secondSent"`
	Total                 int    `json:"total"`
	ProgressPercent       int    `json:"progressPercent"`
	IsRunning             bool   `json:"isRunning"`
	State                 string `json:"state"`
	ActiveConnectionCount int    `json:"activeConnectionCount"`
}

func (s *Scheduler) GetStats(ctx context.Context) (Stats, error) {
	contacts, err := s.store.ListContacts(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("list contacts: %w", err)
	}
	st := countStatuses(contacts)

	state := s.State()
	st.State = state.String()
	st.IsRunning = state.active()
	st.ActiveConnectionCount = s.health.Count()
	return st, nil
}

func countStatuses(contacts []model.Contact) Stats {
	var st Stats
	for _, c := range contacts {
		switch c.Status {
		case model.ContactPending:
			st.Pending++
		case model.ContactSent:
			st.Sent++
		case model.ContactError:
			st.Errors++
		case model.ContactResponded:
			st.Responded++
		case model.ContactSecondSent:
			st.SecondSent++
		}
	}
	st.Total = len(contacts)
	if st.Total > 0 {
		done := st.Sent + st.Responded + st.SecondSent
		st.ProgressPercent = int(math.Round(100 * float64(done) / float64(st.Total)))
	}
	return st
}

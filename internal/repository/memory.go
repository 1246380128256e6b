package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jmehdipour/campaign-orchestrator/internal/model"
)

// MemoryStore keeps every entity in process memory. Used by the "memory"
// storage driver and by tests.
type MemoryStore struct {
	mu  sync.Mutex
	now func() time.Time

	seq         int64
	connections map[int64]model.Connection
	contacts    map[int64]model.Contact
	variants    map[int64]model.Variant
	settings    *model.Settings
	logs        []model.CampaignLog     // oldest first
	received    []model.ReceivedMessage // oldest first
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:         time.Now,
		connections: map[int64]model.Connection{},
		contacts:    map[int64]model.Contact{},
		variants:    map[int64]model.Variant{},
	}
}

func (s *MemoryStore) nextID() int64 {
	s.seq++
	return s.seq
}

// ---- connections ----

func (s *MemoryStore) ListConnections(_ context.Context) ([]model.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Connection, 0, len(s.connections))
	for _, c := range s.connections {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) GetConnection(_ context.Context, id int64) (*model.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.connections[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *MemoryStore) CreateConnection(_ context.Context, c model.Connection) (model.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.nextID()
	if c.Status == "" {
		c.Status = model.ConnectionDisconnected
	}
	c.CreatedAt = s.now()
	c.UpdatedAt = c.CreatedAt
	s.connections[c.ID] = c
	return c, nil
}

func (s *MemoryStore) UpdateConnection(_ context.Context, id int64, fn func(*model.Connection)) (model.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.connections[id]
	if !ok {
		return model.Connection{}, ErrNotFound
	}
	fn(&c)
	c.ID = id
	c.UpdatedAt = s.now()
	s.connections[id] = c
	return c, nil
}

func (s *MemoryStore) DeleteConnection(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.connections[id]; !ok {
		return ErrNotFound
	}
	delete(s.connections, id)
	return nil
}

// ---- contacts ----

func (s *MemoryStore) ListContacts(_ context.Context) ([]model.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Contact, 0, len(s.contacts))
	for _, c := range s.contacts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) GetContact(_ context.Context, id int64) (*model.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *MemoryStore) FindContactByAddress(_ context.Context, digits string) (*model.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *model.Contact
	for _, c := range s.contacts {
		if c.FormattedAddress != digits {
			continue
		}
		if found == nil || c.ID < found.ID {
			c := c
			found = &c
		}
	}
	return found, nil
}

func (s *MemoryStore) ReplaceContacts(_ context.Context, cs []model.Contact) ([]model.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts = make(map[int64]model.Contact, len(cs))
	out := make([]model.Contact, 0, len(cs))
	for _, c := range cs {
		c.ID = s.nextID()
		if c.Status == "" {
			c.Status = model.ContactPending
		}
		c.CreatedAt = s.now()
		s.contacts[c.ID] = c
		out = append(out, c)
	}
	return out, nil
}

func (s *MemoryStore) UpdateContact(_ context.Context, id int64, fn func(*model.Contact)) (model.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[id]
	if !ok {
		return model.Contact{}, ErrNotFound
	}
	fn(&c)
	c.ID = id
	s.contacts[id] = c
	return c, nil
}

func (s *MemoryStore) DeleteContact(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contacts[id]; !ok {
		return ErrNotFound
	}
	delete(s.contacts, id)
	return nil
}

func (s *MemoryStore) ClearContacts(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts = map[int64]model.Contact{}
	return nil
}

// ---- variants ----

func (s *MemoryStore) ListVariants(_ context.Context) ([]model.Variant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Variant, 0, len(s.variants))
	for _, v := range s.variants {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Ordinal == out[j].Ordinal {
			return out[i].ID < out[j].ID
		}
		return out[i].Ordinal < out[j].Ordinal
	})
	return out, nil
}

func (s *MemoryStore) GetVariant(_ context.Context, id int64) (*model.Variant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.variants[id]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

// UpsertVariant replaces the variant with the same ordinal, or inserts.
func (s *MemoryStore) UpsertVariant(_ context.Context, v model.Variant) (model.Variant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, cur := range s.variants {
		if cur.Ordinal == v.Ordinal {
			v.ID = id
			v.CreatedAt = cur.CreatedAt
			v.UpdatedAt = now
			s.variants[id] = v
			return v, nil
		}
	}
	v.ID = s.nextID()
	v.CreatedAt = now
	v.UpdatedAt = now
	s.variants[v.ID] = v
	return v, nil
}

func (s *MemoryStore) UpdateVariant(_ context.Context, id int64, fn func(*model.Variant)) (model.Variant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.variants[id]
	if !ok {
		return model.Variant{}, ErrNotFound
	}
	fn(&v)
	v.ID = id
	v.UpdatedAt = s.now()
	s.variants[id] = v
	return v, nil
}

// ---- settings ----

func (s *MemoryStore) GetSettings(_ context.Context) (*model.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settings == nil {
		return nil, nil
	}
	cp := *s.settings
	return &cp, nil
}

func (s *MemoryStore) SaveSettings(_ context.Context, st model.Settings) (model.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st.ID = 1
	now := s.now()
	if s.settings != nil {
		st.CreatedAt = s.settings.CreatedAt
	} else {
		st.CreatedAt = now
	}
	st.UpdatedAt = now
	s.settings = &st
	return st, nil
}

func (s *MemoryStore) UpdateSettings(_ context.Context, fn func(*model.Settings)) (model.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settings == nil {
		return model.Settings{}, ErrNotFound
	}
	st := *s.settings
	fn(&st)
	st.ID = 1
	st.UpdatedAt = s.now()
	s.settings = &st
	return st, nil
}

// ---- logs ----

func (s *MemoryStore) AppendLog(_ context.Context, l model.CampaignLog) (model.CampaignLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.ID = s.nextID()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.now()
	}
	s.logs = append(s.logs, l)
	if over := len(s.logs) - LogCap; over > 0 {
		s.logs = append([]model.CampaignLog(nil), s.logs[over:]...)
	}
	return l, nil
}

func (s *MemoryStore) ListLogs(_ context.Context, limit int) ([]model.CampaignLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.logs)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]model.CampaignLog, 0, n)
	for i := len(s.logs) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.logs[i])
	}
	return out, nil
}

func (s *MemoryStore) LatestLog(_ context.Context, contactID int64, status model.LogStatus) (*model.CampaignLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.logs) - 1; i >= 0; i-- {
		l := s.logs[i]
		if l.Status == status && l.ContactID != nil && *l.ContactID == contactID {
			return &l, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) ClearLogs(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = nil
	return nil
}

// ---- received messages ----

func (s *MemoryStore) AppendReceived(_ context.Context, m model.ReceivedMessage) (model.ReceivedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = s.nextID()
	if m.ReceivedAt.IsZero() {
		m.ReceivedAt = s.now()
	}
	s.received = append(s.received, m)
	if over := len(s.received) - LogCap; over > 0 {
		s.received = append([]model.ReceivedMessage(nil), s.received[over:]...)
	}
	return m, nil
}

func (s *MemoryStore) ListReceived(_ context.Context, limit int) ([]model.ReceivedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.received)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]model.ReceivedMessage, 0, n)
	for i := len(s.received) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.received[i])
	}
	return out, nil
}

func (s *MemoryStore) ListReceivedByContact(_ context.Context, contactID int64) ([]model.ReceivedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ReceivedMessage
	for i := len(s.received) - 1; i >= 0; i-- {
		m := s.received[i]
		if m.ContactID != nil && *m.ContactID == contactID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *MemoryStore) ClearReceived(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = nil
	return nil
}

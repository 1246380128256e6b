package contacts

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jmehdipour/campaign-orchestrator/internal/model"
	"github.com/jmehdipour/campaign-orchestrator/internal/util"
	"go.uber.org/zap"
)

var ErrNoValidContacts = errors.New("no valid contacts in file")

type Store interface {
	ReplaceContacts(ctx context.Context, cs []model.Contact) ([]model.Contact, error)
}

type RowError struct {
	Line   int    `json:"line"`
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

type Result struct {
	Imported   int        `json:"imported"`
	Duplicates int        `json:"duplicates"`
	Invalid    []RowError `json:"invalid,omitempty"`
}

// Service imports contact lists. An import replaces the whole contact set.
type Service struct {
	store Store
	log   *zap.Logger
}

func New(store Store, log *zap.Logger) *Service {
	return &Service{store: store, log: log.Named("contacts")}
}

// Import parses CSV rows of phone,var1,var2 and stores the valid ones.
// Nothing is replaced when the file yields no valid contact.
func (s *Service) Import(ctx context.Context, r io.Reader) (Result, error) {
	cs, res, err := Parse(r)
	if err != nil {
		return res, err
	}
	if len(cs) == 0 {
		return res, ErrNoValidContacts
	}
	saved, err := s.store.ReplaceContacts(ctx, cs)
	if err != nil {
		return res, fmt.Errorf("replace contacts: %w", err)
	}
	res.Imported = len(saved)
	s.log.Info("contacts imported",
		zap.Int("imported", res.Imported), zap.Int("invalid", len(res.Invalid)), zap.Int("duplicates", res.Duplicates))
	return res, nil
}

// Parse reads phone,var1,var2 rows. A leading header row is skipped, and
// both comma and semicolon separators are accepted.
func Parse(r io.Reader) ([]model.Contact, Result, error) {
	var res Result
	br := bufio.NewReader(r)
	head, _ := br.Peek(4096)

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	if firstLine := head[:lineEnd(head)]; bytes.Count(firstLine, []byte(";")) > bytes.Count(firstLine, []byte(",")) {
		cr.Comma = ';'
	}

	var out []model.Contact
	seen := map[string]bool{}
	n := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, res, fmt.Errorf("read csv: %w", err)
		}
		n++
		line, _ := cr.FieldPos(0)
		if len(rec) == 0 || strings.TrimSpace(strings.Join(rec, "")) == "" {
			continue
		}
		phone := strings.TrimSpace(rec[0])
		if n == 1 && util.NormalizeAddress(phone) == "" {
			continue
		}
		if !util.ValidAddress(phone) {
			res.Invalid = append(res.Invalid, RowError{Line: line, Value: phone, Reason: "phone must have 10 to 13 digits"})
			continue
		}
		digits := util.NormalizeAddress(phone)
		if seen[digits] {
			res.Duplicates++
			continue
		}
		seen[digits] = true

		c := model.Contact{
			Address:          phone,
			FormattedAddress: digits,
			Var1:             column(rec, 1),
			Var2:             column(rec, 2),
			Status:           model.ContactPending,
		}
		c.Name = phone
		if c.Var1 != nil {
			c.Name = *c.Var1
		}
		out = append(out, c)
	}
	return out, res, nil
}

func column(rec []string, i int) *string {
	if i >= len(rec) {
		return nil
	}
	v := strings.TrimSpace(rec[i])
	if v == "" {
		return nil
	}
	return &v
}

func lineEnd(b []byte) int {
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		return i
	}
	return len(b)
}

// Package records persists analysis results. Records are created once per
// successful run and never modified afterwards.
package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/dvloznov/financio/internal/analysis"
	"github.com/dvloznov/financio/internal/docstore"
	"github.com/dvloznov/financio/internal/domain"
)

// MaxAdviceLength caps the stored advice, in characters.
const MaxAdviceLength = 5000

const (
	fieldUserID       = "userId"
	fieldAnalysisDate = "analysisDate"
	fieldSummary      = "summary"
	fieldAdvice       = "advice"
	fieldPeriodDays   = "periodDays"
)

// ErrNotFound is returned by Get for unknown record ids.
var ErrNotFound = errors.New("records: analysis not found")

// Store writes and reads analysis records.
type Store struct {
	store      docstore.Store
	collection string
	now        func() time.Time
}

// NewStore returns a Store over the analyses collection.
func NewStore(store docstore.Store, collection string) *Store {
	return &Store{store: store, collection: collection, now: time.Now}
}

// Save creates a new record under a fresh id. Advice longer than
// MaxAdviceLength characters is cut without notice.
func (s *Store) Save(ctx context.Context, userID string, summary domain.AnalysisSummary, advice string) (domain.AnalysisRecord, error) {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return domain.AnalysisRecord{}, fmt.Errorf("Save: encode summary: %w", err)
	}

	record := domain.AnalysisRecord{
		UserID:       userID,
		AnalysisDate: s.now().UTC(),
		Summary:      summary,
		Advice:       Truncate(advice, MaxAdviceLength),
		PeriodDays:   analysis.PeriodDays,
	}

	doc, err := s.store.CreateDocument(ctx, s.collection, "", map[string]any{
		fieldUserID:       record.UserID,
		fieldAnalysisDate: docstore.FormatTime(record.AnalysisDate),
		fieldSummary:      string(summaryJSON),
		fieldAdvice:       record.Advice,
		fieldPeriodDays:   record.PeriodDays,
	})
	if err != nil {
		return domain.AnalysisRecord{}, fmt.Errorf("Save: create record: %w", err)
	}

	record.ID = doc.ID
	return record, nil
}

// Get returns one record.
func (s *Store) Get(ctx context.Context, id string) (domain.AnalysisRecord, error) {
	doc, err := s.store.GetDocument(ctx, s.collection, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return domain.AnalysisRecord{}, fmt.Errorf("Get %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return domain.AnalysisRecord{}, fmt.Errorf("Get %s: %w", id, err)
	}
	return Decode(doc)
}

// ListByUser returns the user's records, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]domain.AnalysisRecord, error) {
	docs, err := s.store.ListDocuments(ctx, s.collection, docstore.Query{
		Filters: []docstore.Filter{docstore.Equal(fieldUserID, userID)},
		OrderBy: fieldAnalysisDate,
		Desc:    true,
		Limit:   max(limit, 0),
	})
	if err != nil {
		return nil, fmt.Errorf("ListByUser: list: %w", err)
	}

	out := make([]domain.AnalysisRecord, 0, len(docs))
	for _, doc := range docs {
		rec, err := Decode(doc)
		if err != nil {
			return nil, fmt.Errorf("ListByUser: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Decode validates a stored analysis document.
func Decode(doc docstore.Document) (domain.AnalysisRecord, error) {
	rec := domain.AnalysisRecord{ID: doc.ID}
	var err error

	if rec.UserID, _, err = docstore.String(doc.Fields, fieldUserID); err != nil {
		return rec, fmt.Errorf("analysis %s: %w", doc.ID, err)
	}
	if rec.AnalysisDate, _, err = docstore.Time(doc.Fields, fieldAnalysisDate); err != nil {
		return rec, fmt.Errorf("analysis %s: %w", doc.ID, err)
	}
	if rec.Advice, _, err = docstore.String(doc.Fields, fieldAdvice); err != nil {
		return rec, fmt.Errorf("analysis %s: %w", doc.ID, err)
	}
	if rec.PeriodDays, _, err = docstore.Int(doc.Fields, fieldPeriodDays); err != nil {
		return rec, fmt.Errorf("analysis %s: %w", doc.ID, err)
	}

	raw, ok, err := docstore.String(doc.Fields, fieldSummary)
	if err != nil {
		return rec, fmt.Errorf("analysis %s: %w", doc.ID, err)
	}
	if ok {
		if err := json.Unmarshal([]byte(raw), &rec.Summary); err != nil {
			return rec, fmt.Errorf("analysis %s: %w", doc.ID, err)
		}
	}
	return rec, nil
}

// Truncate returns s cut to at most n characters.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

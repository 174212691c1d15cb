// Package matcher looks for an owner's related documents that agree with a
// source document on the fields they share.
package matcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/tradedocs/constants"
	"github.com/joseph-ayodele/tradedocs/internal/entity"
)

// MatchFields are compared across documents, in this order.
var MatchFields = []string{"hs_code", "consignee", "container_number", "value", "currency", "bol_awb_number", "shipper"}

type DocumentLister interface {
	ListByOwnerAndType(ctx context.Context, ownerID uuid.UUID, docType constants.DocType, excludeID uuid.UUID) ([]*entity.Document, error)
}

type Report struct {
	MatchKeys map[string]string
	Found     map[constants.DocType]entity.TypeMatch
	Missing   []constants.DocType
	Warnings  []string
}

type Matcher struct {
	docs   DocumentLister
	logger *slog.Logger
}

func New(docs DocumentLister, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{docs: docs, logger: logger}
}

// MatchKeys returns the trimmed, non-blank match fields of m.
func MatchKeys(m entity.Metadata) map[string]string {
	keys := make(map[string]string, len(MatchFields))
	for _, f := range MatchFields {
		if v := m.Trimmed(f); v != "" {
			keys[f] = v
		}
	}
	return keys
}

// Match checks every document type. The source's own type always matches
// itself. For the other types the first candidate, oldest first, that
// carries every match key with an equal value wins. A listing error marks
// only that type unmatched and is reported as a warning.
func (m *Matcher) Match(ctx context.Context, doc *entity.Document) (*Report, error) {
	if doc == nil {
		return nil, fmt.Errorf("matcher: nil document")
	}
	rep := &Report{
		MatchKeys: MatchKeys(doc.Metadata),
		Found:     make(map[constants.DocType]entity.TypeMatch, len(constants.AllDocTypes)),
		Missing:   []constants.DocType{},
	}

	for _, dt := range constants.AllDocTypes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if dt == doc.DocType {
			id := doc.ID
			rep.Found[dt] = entity.TypeMatch{Matched: true, DocID: &id}
			continue
		}

		candidates, err := m.docs.ListByOwnerAndType(ctx, doc.OwnerID, dt, doc.ID)
		if err != nil {
			m.logger.Warn("matcher.list.failed", "document_id", doc.ID, "doc_type", dt, "error", err)
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("lookup of %s documents failed: %v", dt, err))
			rep.Found[dt] = entity.TypeMatch{}
			rep.Missing = append(rep.Missing, dt)
			continue
		}

		var hit *entity.Document
		for _, c := range candidates {
			if agrees(c.Metadata, rep.MatchKeys) {
				hit = c
				break
			}
		}
		if hit == nil {
			rep.Found[dt] = entity.TypeMatch{}
			rep.Missing = append(rep.Missing, dt)
			continue
		}
		id := hit.ID
		rep.Found[dt] = entity.TypeMatch{Matched: true, DocID: &id}
	}

	m.logger.Debug("matcher.done",
		"document_id", doc.ID,
		"match_keys", len(rep.MatchKeys),
		"missing", len(rep.Missing))
	return rep, nil
}

func agrees(candidate entity.Metadata, keys map[string]string) bool {
	for k, want := range keys {
		if got := candidate.Trimmed(k); got == "" || got != want {
			return false
		}
	}
	return true
}

package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/tradedocs/constants"
	"github.com/joseph-ayodele/tradedocs/internal/audit"
	"github.com/joseph-ayodele/tradedocs/internal/entity"
	"github.com/joseph-ayodele/tradedocs/internal/extract"
	"github.com/joseph-ayodele/tradedocs/internal/metadata"
)

// MetadataWriter merges into the stored metadata, not into a caller's copy,
// so files of one document can finish in any order.
type MetadataWriter interface {
	MergeMetadata(ctx context.Context, id uuid.UUID, merge func(current entity.Metadata) (entity.Metadata, bool)) (entity.Metadata, error)
}

type ParseStage struct {
	Docs   MetadataWriter
	Parser extract.FieldParser
	Audit  *audit.Sink
	Logger *slog.Logger
}

func NewParseStage(docs MetadataWriter, parser extract.FieldParser, sink *audit.Sink, logger *slog.Logger) *ParseStage {
	if logger == nil {
		logger = slog.Default()
	}
	if parser == nil {
		parser = extract.NewRulesParser(nil)
	}
	return &ParseStage{Docs: docs, Parser: parser, Audit: sink, Logger: logger}
}

// Run parses text and fills the document's blank metadata fields with what
// was found. The merge runs against the metadata as stored at write time,
// so values written while extraction ran are kept. doc.Metadata is replaced
// with the stored result.
func (s *ParseStage) Run(ctx context.Context, doc *entity.Document, text string) (metadata.Fields, []string, error) {
	parsed := metadata.Fields(s.Parser.ParseFields(text))
	if len(parsed) == 0 {
		return parsed, nil, nil
	}

	var changed []string
	stored, err := s.Docs.MergeMetadata(ctx, doc.ID, func(current entity.Metadata) (entity.Metadata, bool) {
		merged, keys := metadata.Merge(current, parsed)
		changed = keys
		return merged, len(keys) > 0
	})
	if err != nil {
		return parsed, nil, fmt.Errorf("update metadata: %w", err)
	}
	doc.Metadata = stored
	if len(changed) == 0 {
		return parsed, nil, nil
	}

	s.Audit.Record(ctx, audit.Entry{
		Action: constants.AuditMetadataAutoExtracted,
		Details: map[string]any{
			"doc_id":  doc.ID.String(),
			"parsed":  map[string]string(parsed),
			"changed": changed,
		},
	})

	s.Logger.Info("processor.parse.merged", "document_id", doc.ID, "changed", changed)
	return parsed, changed, nil
}

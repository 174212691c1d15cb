package repository

import (
	"context"
	"log/slog"
)

// Store bundles the repositories that share one Client.
type Store struct {
	Client       *Client
	Documents    DocumentRepository
	Files        DocumentFileRepository
	Validations  ValidationResultRepository
	AuditLogs    AuditLogRepository
	Comments     CommentRepository
	CurrencyRate CurrencyRateRepository
	logger       *slog.Logger
}

func NewStore(c *Client, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		Client:       c,
		Documents:    NewDocumentRepository(c, logger),
		Files:        NewDocumentFileRepository(c, logger),
		Validations:  NewValidationResultRepository(c, logger),
		AuditLogs:    NewAuditLogRepository(c, logger),
		Comments:     NewCommentRepository(c, logger),
		CurrencyRate: NewCurrencyRateRepository(c, logger),
		logger:       logger,
	}
}

// InTx runs fn with a Store whose repositories share one transaction.
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) error {
	return s.Client.InTx(ctx, func(c *Client) error {
		return fn(NewStore(c, s.logger))
	})
}

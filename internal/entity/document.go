package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/joseph-ayodele/tradedocs/constants"
)

// Document represents a trade document for data transfer between layers.
type Document struct {
	ID             uuid.UUID                `json:"id"`
	DocType        constants.DocType        `json:"doc_type"`
	OwnerID        uuid.UUID                `json:"owner_id"`
	Status         constants.DocumentStatus `json:"status"`
	Metadata       Metadata                 `json:"metadata"`
	LastValidation *ValidationReport        `json:"last_validation,omitempty"`
	CreatedAt      time.Time                `json:"created_at"`
	UpdatedAt      time.Time                `json:"updated_at"`
}

// DocumentFile is one uploaded file bound to a required field of a Document.
type DocumentFile struct {
	ID            uuid.UUID                  `json:"id"`
	DocumentID    uuid.UUID                  `json:"document_id"`
	FieldName     string                     `json:"field_name"`
	FileRef       string                     `json:"file_ref"`
	Status        constants.ExtractionStatus `json:"extraction_status"`
	ExtractedText *string                    `json:"extracted_text,omitempty"`
	ErrorMessage  *string                    `json:"error_message,omitempty"`
	UploadedAt    time.Time                  `json:"uploaded_at"`
	UpdatedAt     time.Time                  `json:"updated_at"`
}

// Comment is a reviewer note attached on approve/reject.
type Comment struct {
	ID         uuid.UUID `json:"id"`
	DocumentID uuid.UUID `json:"document_id"`
	UserID     uuid.UUID `json:"user_id"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

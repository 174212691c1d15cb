package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/joseph-ayodele/tradedocs/constants"
)

// TypeMatch is the matcher outcome for one document type.
type TypeMatch struct {
	Matched bool       `json:"matched"`
	DocID   *uuid.UUID `json:"doc_id,omitempty"`
}

// ValidationReport is the payload of one validation run. It is stored in the
// history table and cached on the document as its last validation.
type ValidationReport struct {
	MissingFiles     []string                        `json:"missing_files"`
	MatchKeys        map[string]string               `json:"match_keys,omitempty"`
	FoundTypes       map[constants.DocType]TypeMatch `json:"found_types,omitempty"`
	MissingTypes     []constants.DocType             `json:"missing_types"`
	ReadyForApproval bool                            `json:"ready_for_approval"`
	Reason           string                          `json:"reason,omitempty"`
	Message          string                          `json:"message"`
	Warnings         []string                        `json:"warnings,omitempty"`
}

// ValidationResult is an immutable history row.
type ValidationResult struct {
	ID         uuid.UUID                   `json:"id"`
	DocumentID uuid.UUID                   `json:"document_id"`
	Report     ValidationReport            `json:"result"`
	RunBy      *uuid.UUID                  `json:"run_by,omitempty"`
	Trigger    constants.ValidationTrigger `json:"trigger"`
	RunAt      time.Time                   `json:"run_at"`
}

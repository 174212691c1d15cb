package constants

// Audit action tags written to audit_logs.action.
const (
	AuditUploadedDocument         = "uploaded_document"
	AuditCurrencyConversionFailed = "currency_conversion_failed"
	AuditMetadataAutoExtracted    = "metadata_auto_extracted"
	AuditExtractionFailed         = "extraction_failed"
	AuditRunValidationAuto        = "run_validation_auto"
	AuditRunValidation            = "run_validation"
	AuditApproveDocument          = "approve_document"
	AuditRejectDocument           = "reject_document"
)

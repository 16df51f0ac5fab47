package config

const (
	// Database errors
	ErrInitializeDatabaseFmt = "Failed to initialize database: %v"
	ErrListDocumentsFmt      = "Failed to list documents: %v"

	// Request errors
	ErrInvalidRequestBody  = "Invalid request body"
	ErrDocumentNotFound    = "Document not found"
	ErrInternalServerError = "Internal server error"
)

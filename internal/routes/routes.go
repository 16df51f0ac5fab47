// Package routes defines HTTP route constants for the application.
package routes

// API Routes
const (
	// Documents
	APIDocuments       = "/api/documents"
	APIDocumentsImport = "/api/documents/import"
	APIDocument        = "/api/documents/{id}"
	APIDocumentExport  = "/api/documents/{id}/export"
	APIDocumentImages  = "/api/documents/{id}/images"

	// Attached images, served to the preview
	Image = "/images/{id}/{name}"

	// Editor session
	Editor         = "/editor"
	EditorNew      = "/editor/new"
	EditorOpen     = "/editor/open/{id}"
	EditorCommands = "/editor/commands/{action}"

	// SSE
	Events = "/events"

	// Stateless rendering and themes
	Render         = "/render"
	SyntaxThemeGet = "/syntax-theme/{theme}"
	SyntaxThemes   = "/syntax-themes"
	Theme          = "/theme"

	Health = "/healthz"
)

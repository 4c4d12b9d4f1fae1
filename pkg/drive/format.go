package drive

// Mime types understood by the mirror.
const (
	MimeFolder = "application/vnd.google-apps.folder"

	MimeNativeDocument     = "application/vnd.google-apps.document"
	MimeNativeSpreadsheet  = "application/vnd.google-apps.spreadsheet"
	MimeNativePresentation = "application/vnd.google-apps.presentation"

	MimeWordprocessing = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeSpreadsheet    = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MimePresentation   = "application/vnd.openxmlformats-officedocument.presentationml.presentation"

	MimePDF       = "application/pdf"
	MimeJSON      = "application/json"
	MimePlainText = "text/plain"
)

// DefaultMimeTypes is the listing allow-list used when none is configured.
var DefaultMimeTypes = []string{
	MimePlainText,
	MimeNativeDocument,
	MimeWordprocessing,
	MimeSpreadsheet,
	MimePDF,
	MimeNativePresentation,
	MimePresentation,
	MimeNativeSpreadsheet,
	MimeJSON,
}

// Format describes how a file is materialised locally.
type Format struct {
	// Extension includes the leading dot.
	Extension string

	// Export is true when the content must be fetched through an export call.
	Export bool

	// ExportMimeType is the export target; empty unless Export is set.
	ExportMimeType string
}

var formats = map[string]Format{
	MimeNativeDocument:     {Extension: ".docx", Export: true, ExportMimeType: MimeWordprocessing},
	MimeNativeSpreadsheet:  {Extension: ".xlsx", Export: true, ExportMimeType: MimeSpreadsheet},
	MimeNativePresentation: {Extension: ".pptx", Export: true, ExportMimeType: MimePresentation},
	MimePDF:                {Extension: ".pdf"},
	MimeWordprocessing:     {Extension: ".docx"},
	MimeSpreadsheet:        {Extension: ".xlsx"},
	MimePresentation:       {Extension: ".pptx"},
	MimeJSON:               {Extension: ".json"},
}

// ResolveFormat returns the local format for mimeType. Unknown types fall back
// to a plain-text extension fetched directly.
func ResolveFormat(mimeType string) Format {
	if f, ok := formats[mimeType]; ok {
		return f
	}
	return Format{Extension: ".txt"}
}

// Package drive defines the contract between the mirror pipeline and a remote
// hierarchical object store.
//
// The store is modelled as folders containing files and other folders, each
// identified by an opaque id. The pipeline never talks to the network itself;
// it asks a [Factory] for a [Client] handle and uses three operations:
//
//   - [Client.ListChildren]: one page of entries under a parent, filtered by a [Query]
//   - [Client.ExportContent]: a proprietary document converted to an open format
//   - [Client.GetContent]: raw file bytes
//
// # Handles
//
// Each concurrent task obtains its own handle from the factory and never shares
// it. A factory error is fatal for the stage that requested the handle.
//
// # Formats
//
// [ResolveFormat] maps a source mime type to the local file extension and, for
// native editor formats, the export target mime type:
//
//	application/vnd.google-apps.document     -> .docx (export)
//	application/vnd.google-apps.spreadsheet  -> .xlsx (export)
//	application/vnd.google-apps.presentation -> .pptx (export)
//	application/pdf                          -> .pdf
//	anything unknown                         -> .txt
//
// # Errors
//
// Implementations signal the export size limit with an error matching
// [ErrExportTooLarge] under errors.Is.
package drive

package drive

import "strings"

// Query selects which children a listing returns.
type Query struct {
	// FoldersOnly restricts the listing to sub-folders. MimeTypes is ignored.
	FoldersOnly bool

	// MimeTypes is the exact-match allow-list for files. Empty matches any file.
	MimeTypes []string
}

// FolderQuery lists sub-folders.
func FolderQuery() Query {
	return Query{FoldersOnly: true}
}

// FileQuery lists files whose mime type is one of mimeTypes.
func FileQuery(mimeTypes []string) Query {
	return Query{MimeTypes: mimeTypes}
}

// Matches reports whether an entry with the given mime type satisfies q.
func (q Query) Matches(mimeType string) bool {
	if q.FoldersOnly {
		return mimeType == MimeFolder
	}
	if mimeType == MimeFolder {
		return false
	}
	if len(q.MimeTypes) == 0 {
		return true
	}
	for _, m := range q.MimeTypes {
		if m == mimeType {
			return true
		}
	}
	return false
}

// Expression renders q for parentID in the remote query language:
//
//	(mimeType='a' or mimeType='b') and 'parent' in parents and trashed=false
func (q Query) Expression(parentID string) string {
	var b strings.Builder
	if q.FoldersOnly {
		b.WriteString("mimeType='" + escape(MimeFolder) + "'")
	} else if len(q.MimeTypes) > 0 {
		b.WriteByte('(')
		for i, m := range q.MimeTypes {
			if i > 0 {
				b.WriteString(" or ")
			}
			b.WriteString("mimeType='" + escape(m) + "'")
		}
		b.WriteByte(')')
	} else {
		b.WriteString("mimeType!='" + escape(MimeFolder) + "'")
	}
	b.WriteString(" and '" + escape(parentID) + "' in parents and trashed=false")
	return b.String()
}

func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

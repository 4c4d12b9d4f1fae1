package lister

import (
	"strings"
	"unicode"

	"github.com/ligustah/drivesync/pkg/drive"
)

// DefaultMaxGroup is the group size at which a base-name group is treated as
// bulk noise and dropped entirely.
const DefaultMaxGroup = 5

// BaseName normalises a file name for duplicate grouping.
//
// The name is split on runs of characters that are neither letters nor
// digits. Tokens that are purely numeric, or at most two characters long and
// containing a digit, are dropped. A digit run trailing a word is trimmed, so
// "Report2" and "Report_1" both reduce to "report".
func BaseName(name string) string {
	tokens := strings.FieldsFunc(name, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	var b strings.Builder
	for _, tok := range tokens {
		if noiseToken(tok) {
			continue
		}
		b.WriteString(strings.TrimRightFunc(tok, unicode.IsDigit))
	}
	return strings.ToLower(b.String())
}

func noiseToken(tok string) bool {
	allDigits := true
	hasDigit := false
	for _, r := range tok {
		if unicode.IsDigit(r) {
			hasDigit = true
		} else {
			allDigits = false
		}
	}
	if allDigits {
		return true
	}
	return hasDigit && len([]rune(tok)) <= 2
}

// Group is a set of records sharing a base name.
type Group struct {
	BaseName string
	Records  []drive.FileRecord
}

// Filter drops every base-name group with maxGroup or more members. The
// relative order of the surviving records is preserved. A maxGroup <= 0 uses
// DefaultMaxGroup.
func Filter(records []drive.FileRecord, maxGroup int) []drive.FileRecord {
	kept, _ := FilterReport(records, maxGroup)
	return kept
}

// FilterReport is Filter that also returns the dropped groups, in order of
// first appearance.
func FilterReport(records []drive.FileRecord, maxGroup int) ([]drive.FileRecord, []Group) {
	if maxGroup <= 0 {
		maxGroup = DefaultMaxGroup
	}

	keys := make([]string, len(records))
	counts := make(map[string]int)
	for i, r := range records {
		keys[i] = BaseName(r.Name)
		counts[keys[i]]++
	}

	kept := make([]drive.FileRecord, 0, len(records))
	var dropped []Group
	index := make(map[string]int)
	for i, r := range records {
		k := keys[i]
		if counts[k] < maxGroup {
			kept = append(kept, r)
			continue
		}
		gi, ok := index[k]
		if !ok {
			gi = len(dropped)
			index[k] = gi
			dropped = append(dropped, Group{BaseName: k})
		}
		dropped[gi].Records = append(dropped[gi].Records, r)
	}
	return kept, dropped
}

// Package filematch resolves requested file names against a bucket listing.
package filematch

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"agent-bff/internal/domain"
)

// DefaultDelimiter separates internal key prefixes (upload IDs, timestamps)
// from the original file name in stored keys, e.g. "uploads/1718000000__report.csv".
const DefaultDelimiter = "__"

// Matcher compares requested file names with the candidate names of stored
// objects. It performs no I/O and never mutates its inputs.
type Matcher struct {
	delimiter string
}

// NewMatcher creates a Matcher. An empty delimiter selects DefaultDelimiter.
func NewMatcher(delimiter string) *Matcher {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}
	return &Matcher{delimiter: delimiter}
}

// CandidateName returns the file name a stored object represents: the
// original-filename metadata when present, else the key suffix after the last
// delimiter, else the full key.
func (m *Matcher) CandidateName(obj domain.StoredObject) string {
	if obj.OriginalFileName != nil && *obj.OriginalFileName != "" {
		return *obj.OriginalFileName
	}
	if i := strings.LastIndex(obj.Key, m.delimiter); i >= 0 {
		return obj.Key[i+len(m.delimiter):]
	}
	return obj.Key
}

// Match resolves each requested name to the first stored object whose NFC
// candidate name equals the NFC requested name (case-sensitive, exact).
// Duplicate requested names collapse to a single entry.
func (m *Matcher) Match(objects []domain.StoredObject, requested []string) *domain.MatchResult {
	candidates := make([]string, len(objects))
	for i, obj := range objects {
		candidates[i] = norm.NFC.String(m.CandidateName(obj))
	}

	res := &domain.MatchResult{
		MatchedKeys:             []string{},
		UnmatchedInputFileNames: []string{},
	}
	seen := make(map[string]struct{}, len(requested))
	for _, name := range requested {
		want := norm.NFC.String(name)
		if _, dup := seen[want]; dup {
			continue
		}
		seen[want] = struct{}{}

		found := -1
		if want != "" {
			for i, c := range candidates {
				if c == want {
					found = i
					break
				}
			}
		}
		if found < 0 {
			res.UnmatchedInputFileNames = append(res.UnmatchedInputFileNames, name)
			continue
		}
		obj := objects[found]
		res.MatchedKeys = append(res.MatchedKeys, obj.Key)
		res.Matches = append(res.Matches, domain.FileMatch{
			RequestedName: name,
			Key:           obj.Key,
			CandidateName: m.CandidateName(obj),
		})
	}
	res.MatchedCount = len(res.MatchedKeys)
	return res
}

// DuplicateCount returns how many requested names collapse onto an earlier
// requested name after normalization.
func DuplicateCount(requested []string) int {
	seen := make(map[string]struct{}, len(requested))
	dups := 0
	for _, name := range requested {
		n := norm.NFC.String(name)
		if _, ok := seen[n]; ok {
			dups++
			continue
		}
		seen[n] = struct{}{}
	}
	return dups
}

// Package filter applies the result-level predicates a query can carry:
// status, type, tag, path and frontmatter-property inclusion and
// exclusion. Inclusive tag/path/property predicates additionally derive
// the allow-list handed to retrieval; exclusions only ever run after
// retrieval. All matching reads the frontmatter already carried in index
// metadata, never the files themselves.
package filter

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/temoa-dev/temoa/internal/dense"
)

// PropertyMatch is one frontmatter predicate: the key must be present and
// its value, or any element of a list value, must render to Value.
type PropertyMatch struct {
	Key   string
	Value string
}

// ParseProperty parses a "key:value" pair.
func ParseProperty(s string) (PropertyMatch, error) {
	key, value, ok := strings.Cut(s, ":")
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if !ok || key == "" || value == "" {
		return PropertyMatch{}, fmt.Errorf("property filter %q must be key:value", s)
	}
	return PropertyMatch{Key: key, Value: value}, nil
}

// Filters bundles every predicate of one query. Values listed within one
// field are alternatives (any may match); across fields, and across
// property predicates, all must hold. The zero value keeps only documents
// with status "active", which is also the behavior when a client sends no
// filters at all.
type Filters struct {
	Statuses     []string // explicit status allow-list; empty keeps active only
	IncludeTypes []string
	ExcludeTypes []string
	IncludeTags  []string
	ExcludeTags  []string
	IncludePaths []string // case-insensitive substrings of the relative path
	ExcludePaths []string
	IncludeProps []PropertyMatch
	ExcludeProps []PropertyMatch
}

// HasInclusive reports whether tag, path or property inclusion predicates
// are present. Only those participate in the retrieval prefilter; type
// and status checks stay post-retrieval.
func (f Filters) HasInclusive() bool {
	return len(f.IncludeTags) > 0 || len(f.IncludePaths) > 0 || len(f.IncludeProps) > 0
}

// AllowedPaths walks indexed metadata and returns the set of relative
// paths satisfying the inclusive predicates, for use as a retrieval
// allow-list. It returns nil when no inclusive predicate is present, so
// retrieval stays unrestricted. An empty non-nil result means nothing
// qualifies.
func (f Filters) AllowedPaths(metas []dense.Meta) map[string]bool {
	if !f.HasInclusive() {
		return nil
	}
	allowed := make(map[string]bool)
	for i := range metas {
		m := &metas[i]
		if allowed[m.Path] {
			continue // chunk rows repeat their parent path
		}
		if f.inclusionsMatch(m) {
			allowed[m.Path] = true
		}
	}
	return allowed
}

// Matches reports whether a result survives every predicate.
func (f Filters) Matches(m dense.Meta) bool {
	if !f.statusOK(m.Status) {
		return false
	}
	if len(f.IncludeTypes) > 0 && !anyEqualFold(m.Type, f.IncludeTypes) {
		return false
	}
	if !f.inclusionsMatch(&m) {
		return false
	}
	if len(f.ExcludeTypes) > 0 && anyEqualFold(m.Type, f.ExcludeTypes) {
		return false
	}
	if len(f.ExcludeTags) > 0 && anyTagMatch(m.Tags, f.ExcludeTags) {
		return false
	}
	if len(f.ExcludePaths) > 0 && anyPathMatch(m.Path, f.ExcludePaths) {
		return false
	}
	for _, p := range f.ExcludeProps {
		if propertyMatches(m.Frontmatter, p) {
			return false
		}
	}
	return true
}

func (f Filters) inclusionsMatch(m *dense.Meta) bool {
	if len(f.IncludeTags) > 0 && !anyTagMatch(m.Tags, f.IncludeTags) {
		return false
	}
	if len(f.IncludePaths) > 0 && !anyPathMatch(m.Path, f.IncludePaths) {
		return false
	}
	for _, p := range f.IncludeProps {
		if !propertyMatches(m.Frontmatter, p) {
			return false
		}
	}
	return true
}

func (f Filters) statusOK(status string) bool {
	s := strings.ToLower(strings.TrimSpace(status))
	if s == "" {
		s = "active"
	}
	if len(f.Statuses) == 0 {
		return s == "active"
	}
	for _, want := range f.Statuses {
		if strings.EqualFold(want, s) {
			return true
		}
	}
	return false
}

func anyEqualFold(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.EqualFold(s, p) {
			return true
		}
	}
	return false
}

func anyTagMatch(tags, patterns []string) bool {
	for _, tag := range tags {
		if anyEqualFold(tag, patterns) {
			return true
		}
	}
	return false
}

func anyPathMatch(path string, patterns []string) bool {
	lower := strings.ToLower(path)
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

func propertyMatches(frontmatter map[string]any, p PropertyMatch) bool {
	if frontmatter == nil {
		return false
	}
	v, ok := frontmatter[p.Key]
	if !ok {
		return false
	}
	return valueRenders(v, p.Value)
}

// valueRenders compares a frontmatter value against its requested string
// form. Frontmatter reaches this point either fresh from the YAML parser
// or after a JSON round trip through metadata.json, so both int and
// float64 spellings of a number must hit.
func valueRenders(v any, want string) bool {
	switch x := v.(type) {
	case string:
		return strings.EqualFold(x, want)
	case bool:
		return strconv.FormatBool(x) == strings.ToLower(want)
	case int:
		return strconv.Itoa(x) == want
	case int64:
		return strconv.FormatInt(x, 10) == want
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64) == want
	case time.Time:
		return x.Format("2006-01-02") == want || x.Format(time.RFC3339) == want
	case []any:
		for _, elem := range x {
			if valueRenders(elem, want) {
				return true
			}
		}
	case []string:
		for _, elem := range x {
			if strings.EqualFold(elem, want) {
				return true
			}
		}
	}
	return false
}

package vault

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// frontmatterClose is the delimiter that ends a frontmatter block. The
// opening delimiter must be the very first line of the file.
const frontmatterClose = "\n---\n"

// inlineTagPattern matches Obsidian-style inline hashtags. The first
// character after # must be a letter, which keeps Markdown headers
// ("# Title") and issue references ("#42") out.
var inlineTagPattern = regexp.MustCompile(`(^|\s)#([a-zA-Z][a-zA-Z0-9_/-]*)`)

// splitFrontmatter separates a file's frontmatter text from its body.
// The parse is tolerant: content that does not start with "---\n", or that
// never closes the block, is treated as having no frontmatter.
func splitFrontmatter(content string) (frontmatter, body string) {
	if !strings.HasPrefix(content, "---\n") {
		return "", content
	}

	rest := content[len("---\n"):]
	end := strings.Index(rest, frontmatterClose)
	if end < 0 {
		// An unclosed block at the very end ("---\n...\n---") still counts.
		if strings.HasSuffix(rest, "\n---") {
			return rest[:len(rest)-len("\n---")], ""
		}
		return "", content
	}

	return rest[:end], rest[end+len(frontmatterClose):]
}

// parseFrontmatter decodes YAML frontmatter into a string-keyed map.
// Malformed YAML yields an empty map and the error for the caller to log;
// the document is still usable.
func parseFrontmatter(text string) (map[string]any, error) {
	fm := map[string]any{}
	if strings.TrimSpace(text) == "" {
		return fm, nil
	}
	if err := yaml.Unmarshal([]byte(text), &fm); err != nil {
		return map[string]any{}, err
	}
	if fm == nil {
		fm = map[string]any{}
	}
	return fm, nil
}

// stringField returns a frontmatter value as a trimmed string, or "".
func stringField(fm map[string]any, key string) string {
	v, ok := fm[key]
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	default:
		return ""
	}
}

// tagsField extracts the frontmatter tags list. Accepts a YAML list, a
// single string, or a comma-separated string.
func tagsField(fm map[string]any) []string {
	v, ok := fm["tags"]
	if !ok {
		return nil
	}

	var raw []string
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	case string:
		raw = strings.Split(t, ",")
	}

	var tags []string
	for _, tag := range raw {
		tag = normalizeTag(tag)
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// inlineTags extracts #hashtags from a document body.
func inlineTags(body string) []string {
	matches := inlineTagPattern.FindAllStringSubmatch(body, -1)
	var tags []string
	for _, m := range matches {
		tag := normalizeTag(m[2])
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// mergeTags unions tag lists, lowercased, deduplicated, sorted.
func mergeTags(lists ...[]string) []string {
	seen := map[string]bool{}
	var merged []string
	for _, list := range lists {
		for _, tag := range list {
			if tag == "" || seen[tag] {
				continue
			}
			seen[tag] = true
			merged = append(merged, tag)
		}
	}
	sort.Strings(merged)
	return merged
}

func normalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(tag, "#")))
}

// dateFormats are tried in order when parsing frontmatter date fields.
var dateFormats = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// dateField parses a frontmatter date under any of the given keys.
// Returns the zero time when no key parses.
func dateField(fm map[string]any, keys ...string) time.Time {
	for _, key := range keys {
		v, ok := fm[key]
		if !ok {
			continue
		}
		switch d := v.(type) {
		case time.Time:
			return d
		case string:
			s := strings.TrimSpace(d)
			for _, layout := range dateFormats {
				if t, err := time.Parse(layout, s); err == nil {
					return t
				}
			}
		}
	}
	return time.Time{}
}

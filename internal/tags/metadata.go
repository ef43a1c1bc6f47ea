package tags

import (
	"encoding/json"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// UniversalTag is the empty tag every non-spam comment is listed under.
const UniversalTag = ""

// Tags that keep a comment out of the universal tag when its net rshares
// are negative.
var unsafeTags = []string{"spam", "nsfw", "test"}

type commentMetadata struct {
	Tags []any `json:"tags"`
}

// NormalizeTag lowercases a tag after NFC normalization so canonically
// equivalent spellings share one entry.
func NormalizeTag(tag string) string {
	return cases.Lower(language.Und).String(norm.NFC.String(strings.TrimSpace(tag)))
}

// ParseTags selects the tags a comment is indexed under.
//
// Candidates are the category plus the string entries of
// json_metadata.tags; malformed metadata contributes nothing. The first
// limit candidates in byte order are normalized, empty ones are dropped, and
// ones longer than maxLength bytes are skipped. The universal tag is added
// unless the comment has negative rshares and carries an unsafe tag. The
// result is sorted and free of duplicates.
func ParseTags(category, jsonMetadata string, netRshares int64, limit, maxLength int) []string {
	candidates := map[string]struct{}{}
	if jsonMetadata != "" {
		var meta commentMetadata
		if err := json.Unmarshal([]byte(jsonMetadata), &meta); err == nil {
			for _, t := range meta.Tags {
				if s, ok := t.(string); ok {
					candidates[s] = struct{}{}
				}
			}
		}
	}
	if category != "" {
		candidates[NormalizeTag(category)] = struct{}{}
	}

	ordered := make([]string, 0, len(candidates))
	for t := range candidates {
		ordered = append(ordered, t)
	}
	slices.Sort(ordered)

	selected := map[string]struct{}{}
	for i, t := range ordered {
		if i >= limit || len(selected) > limit {
			break
		}
		if t == "" {
			continue
		}
		n := NormalizeTag(t)
		if n == "" || len(n) > maxLength {
			continue
		}
		selected[n] = struct{}{}
	}

	safe := true
	for _, u := range unsafeTags {
		if _, ok := selected[u]; ok {
			safe = false
			break
		}
	}
	if netRshares >= 0 || safe {
		selected[UniversalTag] = struct{}{}
	}

	out := make([]string, 0, len(selected))
	for t := range selected {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

package catalog

import (
	"strings"
)

// TagDelimiter joins tags inside PhotoRecord.Tags.
const TagDelimiter = ","

const unknownSource = "Unknown"

// PhotoRecord is one catalog entry as reported by the backend.
type PhotoRecord struct {
	ID          int64   `json:"id"`
	Filename    string  `json:"filename"`
	FileSizeKB  int64   `json:"fileSize"`
	DateTime    string  `json:"dateTime"`
	Location    string  `json:"location"`
	Source      *string `json:"source,omitempty"`
	Description string  `json:"description"`
	Tags        string  `json:"tags"`
	ViewCount   int64   `json:"viewCount"`
}

// SourceOrUnknown returns the originating device or software, or "Unknown".
func (p PhotoRecord) SourceOrUnknown() string {
	if p.Source == nil || strings.TrimSpace(*p.Source) == "" {
		return unknownSource
	}
	return *p.Source
}

// TagList splits the delimiter-joined tags.
func (p PhotoRecord) TagList() []string {
	return SplitTags(p.Tags)
}

// NewPhoto is the add_photo payload.
type NewPhoto struct {
	Filename    string
	Location    string
	DateTime    string
	Description string
	Tags        string
	FileSizeKB  int64
}

// PhotoUpdate is the update_photo payload.
type PhotoUpdate struct {
	Location    string `json:"location"`
	Description string `json:"description"`
	Tags        string `json:"tags"`
}

// SplitTags returns the non-empty, trimmed tags of a delimiter-joined string.
func SplitTags(joined string) []string {
	parts := strings.Split(joined, TagDelimiter)
	tags := make([]string, 0, len(parts))
	for _, part := range parts {
		if tag := strings.TrimSpace(part); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// JoinTags trims each tag, drops empty ones, and joins the rest.
func JoinTags(tags []string) string {
	cleaned := make([]string, 0, len(tags))
	for _, tag := range tags {
		if trimmed := strings.TrimSpace(tag); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return strings.Join(cleaned, TagDelimiter)
}

// SearchKind is the wire value of a search criterion.
type SearchKind string

const (
	SearchLocation    SearchKind = "location"
	SearchTag         SearchKind = "tag"
	SearchDateRange   SearchKind = "date_range"
	SearchDescription SearchKind = "description"
)

var searchLabels = map[string]SearchKind{
	"location":    SearchLocation,
	"tag":         SearchTag,
	"date range":  SearchDateRange,
	"description": SearchDescription,
}

// SearchKindForLabel maps a user-facing label to its wire value, ignoring case.
// Wire values are accepted as-is; anything else falls back to location.
func SearchKindForLabel(label string) SearchKind {
	lowered := strings.ToLower(strings.TrimSpace(label))
	if kind, ok := searchLabels[lowered]; ok {
		return kind
	}
	switch kind := SearchKind(lowered); kind {
	case SearchLocation, SearchTag, SearchDateRange, SearchDescription:
		return kind
	}
	return SearchLocation
}

// SortKind is the wire value of a sort key.
type SortKind string

const (
	SortDate       SortKind = "date"
	SortName       SortKind = "name"
	SortSize       SortKind = "size"
	SortPopularity SortKind = "popularity"
)

// ParseSortKind accepts the four sort keys case-insensitively.
func ParseSortKind(value string) (SortKind, bool) {
	switch kind := SortKind(strings.ToLower(strings.TrimSpace(value))); kind {
	case SortDate, SortName, SortSize, SortPopularity:
		return kind, true
	}
	return "", false
}

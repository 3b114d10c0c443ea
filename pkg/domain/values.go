package domain

import "strings"

// ---------------------------------------------------------------------------
// Shared value objects
// ---------------------------------------------------------------------------

// Tag is a string label for categorization.
type Tag string

// Tags is an ordered set of tags.
type Tags []Tag

// Contains returns true if the tag set includes the given tag.
func (t Tags) Contains(tag Tag) bool {
	for _, tt := range t {
		if tt == tag {
			return true
		}
	}
	return false
}

// Add appends tag unless it is blank or already present.
func (t *Tags) Add(tag Tag) {
	tag = Tag(strings.TrimSpace(string(tag)))
	if tag == "" || t.Contains(tag) {
		return
	}
	*t = append(*t, tag)
}

// ---------------------------------------------------------------------------

// Metadata is a generic key-value map for extensible properties.
type Metadata map[string]string

// Get returns a metadata value, or empty string if not present.
func (m Metadata) Get(key string) string {
	if m == nil {
		return ""
	}
	return m[key]
}

// Set writes a metadata key-value pair. Initializes the map if nil.
func (m *Metadata) Set(key, value string) {
	if *m == nil {
		*m = make(Metadata)
	}
	(*m)[key] = value
}

package model

import (
	"maps"
	"slices"
)

// Metadata holds the fields shared by every entity's metadata.
type Metadata struct {
	SourceURI string            `json:"source_uri,omitempty" yaml:"source_uri,omitempty" msgpack:"source_uri,omitempty"`
	Author    string            `json:"author,omitempty" yaml:"author,omitempty" msgpack:"author,omitempty"`
	Lang      string            `json:"lang,omitempty" yaml:"lang,omitempty" msgpack:"lang,omitempty"`
	MimeType  string            `json:"mime_type,omitempty" yaml:"mime_type,omitempty" msgpack:"mime_type,omitempty"`
	Tags      []string          `json:"tags,omitempty" yaml:"tags,omitempty" msgpack:"tags,omitempty"`
	Custom    map[string]string `json:"custom,omitempty" yaml:"custom,omitempty" msgpack:"custom,omitempty"`
}

// HasTag reports whether tag is one of m's tags.
func (m Metadata) HasTag(tag string) bool {
	return slices.Contains(m.Tags, tag)
}

// HasAnyTag reports whether m carries at least one of tags.
func (m Metadata) HasAnyTag(tags []string) bool {
	for _, t := range tags {
		if m.HasTag(t) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of m.
func (m Metadata) Clone() Metadata {
	m.Tags = slices.Clone(m.Tags)
	m.Custom = maps.Clone(m.Custom)
	return m
}

// ChunkMetadata describes a chunk.
type ChunkMetadata struct {
	Metadata   `yaml:",inline"`
	PageNumber *int   `json:"page_number,omitempty" yaml:"page_number,omitempty" msgpack:"page_number,omitempty"`
	TokenCount *int   `json:"token_count,omitempty" yaml:"token_count,omitempty" msgpack:"token_count,omitempty"`
	SHA256     string `json:"sha256,omitempty" yaml:"sha256,omitempty" msgpack:"sha256,omitempty"`
}

// Clone returns a deep copy of m.
func (m ChunkMetadata) Clone() ChunkMetadata {
	m.Metadata = m.Metadata.Clone()
	m.PageNumber = cloneInt(m.PageNumber)
	m.TokenCount = cloneInt(m.TokenCount)
	return m
}

// DocumentMetadata describes a document.
type DocumentMetadata struct {
	Metadata `yaml:",inline"`
	Title    string `json:"title,omitempty" yaml:"title,omitempty" msgpack:"title,omitempty"`
	Summary  string `json:"summary,omitempty" yaml:"summary,omitempty" msgpack:"summary,omitempty"`
	SHA256   string `json:"sha256,omitempty" yaml:"sha256,omitempty" msgpack:"sha256,omitempty"`
}

// Clone returns a deep copy of m.
func (m DocumentMetadata) Clone() DocumentMetadata {
	m.Metadata = m.Metadata.Clone()
	return m
}

// LibraryMetadata describes a library.
type LibraryMetadata struct {
	Metadata    `yaml:",inline"`
	Description string `json:"description,omitempty" yaml:"description,omitempty" msgpack:"description,omitempty"`
}

// Clone returns a deep copy of m.
func (m LibraryMetadata) Clone() LibraryMetadata {
	m.Metadata = m.Metadata.Clone()
	return m
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

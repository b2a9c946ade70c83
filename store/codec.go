package store

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/hupe1980/vecdb/model"
)

// Encode serializes a record with msgpack.
func Encode(v any) ([]byte, error) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("store: encode: %w", err)
	}
	return b, nil
}

// DecodeLibrary deserializes a library record.
func DecodeLibrary(b []byte) (*model.Library, error) {
	var lib model.Library
	if err := msgpack.Unmarshal(b, &lib); err != nil {
		return nil, fmt.Errorf("store: decode library: %w", err)
	}
	lib.CreatedAt = lib.CreatedAt.UTC()
	lib.UpdatedAt = lib.UpdatedAt.UTC()
	return &lib, nil
}

// DecodeDocument deserializes a document record.
func DecodeDocument(b []byte) (*model.Document, error) {
	var doc model.Document
	if err := msgpack.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("store: decode document: %w", err)
	}
	doc.CreatedAt = doc.CreatedAt.UTC()
	doc.UpdatedAt = doc.UpdatedAt.UTC()
	return &doc, nil
}

// DecodeChunk deserializes a chunk record.
func DecodeChunk(b []byte) (*model.Chunk, error) {
	var c model.Chunk
	if err := msgpack.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("store: decode chunk: %w", err)
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}

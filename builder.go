// Package vecdb provides an embedded multi-library vector database.
//
// This file implements an immutable fluent builder for creating libraries.
package vecdb

import (
	"context"

	"github.com/google/uuid"

	"github.com/hupe1980/vecdb/index"
	"github.com/hupe1980/vecdb/model"
)

// LibraryBuilder is an immutable fluent builder for creating libraries.
// Each method returns a new builder with the updated configuration.
type LibraryBuilder struct {
	db *DB
	in CreateLibrary
}

// NewLibrary starts a builder for a library of dimension-sized embeddings.
// The index defaults to the DB's default index (see WithDefaultIndex).
//
// Example:
//
//	lib, err := db.NewLibrary("papers", 768).
//	    LSH(8, 16).
//	    Description("arXiv abstracts").
//	    Tags("ml", "nlp").
//	    Create(ctx)
func (db *DB) NewLibrary(name string, dimension int) LibraryBuilder {
	return LibraryBuilder{
		db: db,
		in: CreateLibrary{
			Name:         name,
			EmbeddingDim: dimension,
			IndexConfig:  db.defaultIndex.Clone(),
		},
	}
}

// ID sets the library id instead of generating one.
func (b LibraryBuilder) ID(id uuid.UUID) LibraryBuilder {
	b.in.ID = id
	return b
}

// Flat selects the exact index.
func (b LibraryBuilder) Flat() LibraryBuilder {
	b.in.IndexConfig = index.FlatConfig()
	return b
}

// LSH selects a random hyperplane LSH index. Zero parameters take the
// defaults.
func (b LibraryBuilder) LSH(numTables, hyperplanesPerTable int) LibraryBuilder {
	b.in.IndexConfig = index.LSHConfig(numTables, hyperplanesPerTable)
	return b
}

// IVF selects an inverted file index. Zero parameters take the defaults.
func (b LibraryBuilder) IVF(numCentroids, nprobe int) LibraryBuilder {
	b.in.IndexConfig = index.IVFConfig(numCentroids, nprobe)
	return b
}

// Index sets the index configuration directly.
func (b LibraryBuilder) Index(cfg index.Config) LibraryBuilder {
	b.in.IndexConfig = cfg.Clone()
	return b
}

// Description sets the library description.
func (b LibraryBuilder) Description(s string) LibraryBuilder {
	b.in.Metadata.Description = s
	return b
}

// Author sets the library author.
func (b LibraryBuilder) Author(s string) LibraryBuilder {
	b.in.Metadata.Author = s
	return b
}

// Tags replaces the library tags.
func (b LibraryBuilder) Tags(tags ...string) LibraryBuilder {
	b.in.Metadata.Tags = append([]string(nil), tags...)
	return b
}

// Create validates the configuration and stores the library.
func (b LibraryBuilder) Create(ctx context.Context) (*model.Library, error) {
	return b.db.services.Libraries.Create(ctx, b.in)
}

// MustCreate is like Create but panics on error.
func (b LibraryBuilder) MustCreate(ctx context.Context) *model.Library {
	lib, err := b.Create(ctx)
	if err != nil {
		panic(err)
	}
	return lib
}

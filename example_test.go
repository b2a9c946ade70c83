package vecdb_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/vecdb"
	"github.com/hupe1980/vecdb/model"
)

func Example() {
	ctx := context.Background()

	db, err := vecdb.New()
	if err != nil {
		panic(err)
	}
	defer db.Close()

	lib := db.NewLibrary("animals", 3).MustCreate(ctx)

	_, err = db.Documents().CreateWithChunks(ctx, lib.ID, []*model.Chunk{
		{Text: "cat", Embedding: []float32{1, 0, 0}},
		{Text: "dog", Embedding: []float32{0.8, 0.2, 0}},
		{Text: "fish", Embedding: []float32{0, 0, 1}},
	}, model.DocumentMetadata{Title: "pets"})
	if err != nil {
		panic(err)
	}

	hits := db.Search(lib.ID, []float32{1, 0.1, 0}).KNN(2).MustExecute(ctx)
	for _, h := range hits {
		fmt.Println(h.Text)
	}
	// Output:
	// cat
	// dog
}

func ExampleDB_Upsert() {
	ctx := context.Background()

	db, _ := vecdb.New()
	defer db.Close()

	lib := db.NewLibrary("notes", 2).MustCreate(ctx)
	doc, _ := db.Documents().Create(ctx, lib.ID, model.DocumentMetadata{})

	c, _ := db.Upsert(ctx, &model.Chunk{
		LibraryID:  lib.ID,
		DocumentID: doc.ID,
		Text:       "first draft",
		Embedding:  []float32{1, 0},
	})
	fmt.Println(c.Version)

	c.Text = "second draft"
	c, _ = db.Upsert(ctx, c, vecdb.WithExpectedVersion(c.Version))
	fmt.Println(c.Version)

	_, err := db.Upsert(ctx, c, vecdb.WithExpectedVersion(1))
	fmt.Println(errors.Is(err, vecdb.ErrConflict))
	// Output:
	// 1
	// 2
	// true
}

func ExampleSearchBuilder_Stream() {
	ctx := context.Background()

	db, _ := vecdb.New()
	defer db.Close()

	lib := db.NewLibrary("numbers", 2).MustCreate(ctx)
	_, _ = db.Documents().CreateWithChunks(ctx, lib.ID, []*model.Chunk{
		{Text: "one", Embedding: []float32{1, 0}},
		{Text: "two", Embedding: []float32{1, 1}},
		{Text: "three", Embedding: []float32{0, 1}},
	}, model.DocumentMetadata{})

	for hit, err := range db.Search(lib.ID, []float32{1, 0}).KNN(3).Stream(ctx) {
		if err != nil || hit.Score < 0.5 {
			break
		}
		fmt.Printf("%s %.2f\n", hit.Text, hit.Score)
	}
	// Output:
	// one 1.00
	// two 0.71
}

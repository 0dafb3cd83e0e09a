package ingest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"bookdex/pkg/database"
	"bookdex/pkg/models"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.MigrateFrom(db, filepath.Join("..", "..", "docs", "schema.sql")); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func count(t *testing.T, db *sql.DB, query string, args ...any) int {
	t.Helper()
	var n int
	if err := db.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("count %q: %v", query, err)
	}
	return n
}

func sampleRecord() *models.BookRecord {
	return &models.BookRecord{
		ID:    1,
		Title: strPtr("Alpha"),
		Authors: []models.PersonRef{
			{Name: "A, B", Birth: intPtr(1800), Death: intPtr(1850)},
		},
		Subjects:    []string{"X"},
		Bookshelves: []string{"Shelf"},
		Languages:   []string{"en"},
		Formats:     map[string]string{"text/plain": "u1"},
		Summaries:   []string{"About alpha."},
		Downloads:   intPtr(10),
	}
}

func TestReconcileIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	rec := NewReconciler(db)
	if err := rec.ReconcileBook(ctx, sampleRecord()); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	if err := rec.ReconcileBook(ctx, sampleRecord()); err != nil {
		t.Fatalf("second reconcile: %v", err)
	}

	checks := map[string]int{
		`SELECT COUNT(*) FROM books`:         1,
		`SELECT COUNT(*) FROM persons`:       1,
		`SELECT COUNT(*) FROM subjects`:      1,
		`SELECT COUNT(*) FROM bookshelves`:   1,
		`SELECT COUNT(*) FROM languages`:     1,
		`SELECT COUNT(*) FROM formats`:       1,
		`SELECT COUNT(*) FROM summaries`:     1,
		`SELECT COUNT(*) FROM book_authors`:  1,
		`SELECT COUNT(*) FROM book_subjects`: 1,
	}
	for q, want := range checks {
		if got := count(t, db, q); got != want {
			t.Errorf("%s = %d, want %d", q, got, want)
		}
	}

	var title string
	if err := db.QueryRow(`SELECT title FROM books WHERE gutenberg_id = 1`).Scan(&title); err != nil {
		t.Fatal(err)
	}
	if title != "Alpha" {
		t.Errorf("title = %q", title)
	}
}

func TestReconcileUpdatesScalars(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	rec := NewReconciler(db)
	if err := rec.ReconcileBook(ctx, sampleRecord()); err != nil {
		t.Fatal(err)
	}

	updated := sampleRecord()
	updated.Title = strPtr("Alpha, Revised")
	updated.Downloads = intPtr(42)
	v := true
	updated.Copyright = &v
	if err := rec.ReconcileBook(ctx, updated); err != nil {
		t.Fatal(err)
	}

	var (
		title     string
		downloads int
		copyright bool
	)
	err := db.QueryRow(`SELECT title, download_count, copyright FROM books WHERE gutenberg_id = 1`).
		Scan(&title, &downloads, &copyright)
	if err != nil {
		t.Fatal(err)
	}
	if title != "Alpha, Revised" || downloads != 42 || copyright != true {
		t.Errorf("got (%q, %d, %v)", title, downloads, copyright)
	}
	if got := count(t, db, `SELECT COUNT(*) FROM books`); got != 1 {
		t.Errorf("books = %d, want 1 (upsert keyed on identifier only)", got)
	}
}

func TestReplaceVsPrune(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	first := sampleRecord()
	first.Subjects = []string{"X", "Y"}
	first.Formats = map[string]string{"text/plain": "u1", "text/html": "u2"}

	rec := NewReconciler(db)
	if err := rec.ReconcileBook(ctx, first); err != nil {
		t.Fatal(err)
	}

	var keptFormatID int64
	err := db.QueryRow(`SELECT id FROM formats WHERE mime_type = 'text/plain'`).Scan(&keptFormatID)
	if err != nil {
		t.Fatal(err)
	}

	second := sampleRecord()
	second.Subjects = []string{"Z"}
	second.Formats = map[string]string{"text/plain": "u1"}
	if err := rec.ReconcileBook(ctx, second); err != nil {
		t.Fatal(err)
	}

	// tag relation fully replaced; reference rows themselves stay
	names := []string{}
	rows, err := db.Query(`
		SELECT s.name FROM book_subjects bs
		JOIN subjects s ON s.id = bs.subject_id`)
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			t.Fatal(err)
		}
		names = append(names, n)
	}
	if len(names) != 1 || names[0] != "Z" {
		t.Errorf("book subjects = %v, want [Z]", names)
	}
	if got := count(t, db, `SELECT COUNT(*) FROM subjects`); got != 3 {
		t.Errorf("subject rows = %d, want 3 (reference data never deleted)", got)
	}

	// owned relation pruned: orphan gone, matching row keeps its id
	if got := count(t, db, `SELECT COUNT(*) FROM formats`); got != 1 {
		t.Errorf("formats = %d, want 1", got)
	}
	var afterID int64
	if err := db.QueryRow(`SELECT id FROM formats WHERE mime_type = 'text/plain'`).Scan(&afterID); err != nil {
		t.Fatal(err)
	}
	if afterID != keptFormatID {
		t.Errorf("format surrogate id changed: %d -> %d", keptFormatID, afterID)
	}
}

func TestPersonReuseAcrossRoles(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	p := models.PersonRef{Name: "A, B", Birth: intPtr(1800), Death: intPtr(1850)}

	one := &models.BookRecord{ID: 1, Title: strPtr("One"), Authors: []models.PersonRef{p}, Formats: map[string]string{}}
	two := &models.BookRecord{ID: 2, Title: strPtr("Two"), Translators: []models.PersonRef{p}, Formats: map[string]string{}}

	rec := NewReconciler(db)
	if err := rec.ReconcileBook(ctx, one); err != nil {
		t.Fatal(err)
	}
	if err := rec.ReconcileBook(ctx, two); err != nil {
		t.Fatal(err)
	}

	if got := count(t, db, `SELECT COUNT(*) FROM persons`); got != 1 {
		t.Errorf("persons = %d, want 1 shared row", got)
	}
	if got := count(t, db, `SELECT COUNT(*) FROM book_authors`); got != 1 {
		t.Errorf("book_authors = %d", got)
	}
	if got := count(t, db, `SELECT COUNT(*) FROM book_translators`); got != 1 {
		t.Errorf("book_translators = %d", got)
	}
}

func TestPersonNullYearsMatch(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	p := models.PersonRef{Name: "Anonymous"}
	one := &models.BookRecord{ID: 1, Authors: []models.PersonRef{p}, Formats: map[string]string{}}
	two := &models.BookRecord{ID: 2, Authors: []models.PersonRef{p}, Formats: map[string]string{}}

	rec := NewReconciler(db)
	if err := rec.ReconcileBook(ctx, one); err != nil {
		t.Fatal(err)
	}
	if err := rec.ReconcileBook(ctx, two); err != nil {
		t.Fatal(err)
	}
	if got := count(t, db, `SELECT COUNT(*) FROM persons`); got != 1 {
		t.Errorf("persons = %d, want 1 (NULL years must match their row)", got)
	}
}

func TestDeleteStale(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	seed := NewReconciler(db)
	for id := 1; id <= 3; id++ {
		r := sampleRecord()
		r.ID = id
		if err := seed.ReconcileBook(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	// a book without an identifier must survive every prune
	if _, err := db.Exec(`INSERT INTO books (gutenberg_id, title) VALUES (NULL, 'Orphan')`); err != nil {
		t.Fatal(err)
	}

	run := NewReconciler(db)
	r := sampleRecord()
	if err := run.ReconcileBook(ctx, r); err != nil {
		t.Fatal(err)
	}

	deleted, err := run.DeleteStale(ctx)
	if err != nil {
		t.Fatalf("DeleteStale: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}
	if got := count(t, db, `SELECT COUNT(*) FROM books`); got != 2 {
		t.Errorf("books = %d, want surviving book + null-id book", got)
	}
	if got := count(t, db, `SELECT COUNT(*) FROM books WHERE title = 'Orphan'`); got != 1 {
		t.Error("null-identifier book was deleted")
	}
	// cascade removed the stale books' owned rows, person rows stay
	if got := count(t, db, `SELECT COUNT(*) FROM formats`); got != 1 {
		t.Errorf("formats = %d, want 1", got)
	}
	if got := count(t, db, `SELECT COUNT(*) FROM persons`); got != 1 {
		t.Errorf("persons = %d, want reference data intact", got)
	}
}

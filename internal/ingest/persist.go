package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bookdex/pkg/models"
)

// Reconciler merges extracted book records into the database and tracks
// which identifiers the current run has seen. Each record reconciles in its
// own transaction, so one bad record rolls back only its own writes.
//
// The store is single-writer during a run; find-or-create needs no
// unique-constraint race handling.
type Reconciler struct {
	db   *sql.DB
	seen map[int]struct{}
}

func NewReconciler(db *sql.DB) *Reconciler {
	return &Reconciler{db: db, seen: make(map[int]struct{})}
}

// SeenCount reports how many distinct identifiers this run has encountered.
func (r *Reconciler) SeenCount() int { return len(r.seen) }

// MarkSeen records an identifier as present in the current archive without
// reconciling it. Stale deletion keys off presence in the archive, not off a
// successful merge, so records that fail extraction or reconciliation still
// must be marked: deleting a live book because one run could not process its
// member would turn a transient failure into data loss.
func (r *Reconciler) MarkSeen(id int) { r.seen[id] = struct{}{} }

// ReconcileBook upserts the book keyed strictly on its identifier, resolves
// every related entity by natural key, replaces the tag-style relation sets
// wholesale and prunes orphaned owned rows (formats, summaries).
func (r *Reconciler) ReconcileBook(ctx context.Context, rec *models.BookRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return &ReconcileError{BookID: rec.ID, Err: fmt.Errorf("begin tx: %w", err)}
	}
	defer tx.Rollback()

	if err := reconcileBookTx(ctx, tx, rec); err != nil {
		return &ReconcileError{BookID: rec.ID, Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &ReconcileError{BookID: rec.ID, Err: fmt.Errorf("commit: %w", err)}
	}

	r.seen[rec.ID] = struct{}{}
	return nil
}

func reconcileBookTx(ctx context.Context, tx *sql.Tx, rec *models.BookRecord) error {
	bookID, err := upsertBook(ctx, tx, rec)
	if err != nil {
		return err
	}

	roles := []struct {
		table string
		refs  []models.PersonRef
	}{
		{"book_authors", rec.Authors},
		{"book_translators", rec.Translators},
		{"book_editors", rec.Editors},
	}
	for _, role := range roles {
		if err := replacePersons(ctx, tx, role.table, bookID, role.refs); err != nil {
			return fmt.Errorf("%s: %w", role.table, err)
		}
	}

	if err := replaceTags(ctx, tx, "book_subjects", "subject_id",
		`SELECT id FROM subjects WHERE name = ?`,
		`INSERT INTO subjects (name) VALUES (?)`,
		bookID, rec.Subjects); err != nil {
		return fmt.Errorf("subjects: %w", err)
	}
	if err := replaceTags(ctx, tx, "book_bookshelves", "bookshelf_id",
		`SELECT id FROM bookshelves WHERE name = ?`,
		`INSERT INTO bookshelves (name) VALUES (?)`,
		bookID, rec.Bookshelves); err != nil {
		return fmt.Errorf("bookshelves: %w", err)
	}
	if err := replaceTags(ctx, tx, "book_languages", "language_id",
		`SELECT id FROM languages WHERE code = ?`,
		`INSERT INTO languages (code) VALUES (?)`,
		bookID, rec.Languages); err != nil {
		return fmt.Errorf("languages: %w", err)
	}

	if err := pruneFormats(ctx, tx, bookID, rec.Formats); err != nil {
		return fmt.Errorf("formats: %w", err)
	}
	if err := pruneSummaries(ctx, tx, bookID, rec.Summaries); err != nil {
		return fmt.Errorf("summaries: %w", err)
	}
	return nil
}

// upsertBook creates or updates the book row for rec's identifier and
// returns the surrogate id. Scalar attributes are overwritten in place on
// every sighting.
func upsertBook(ctx context.Context, tx *sql.Tx, rec *models.BookRecord) (int64, error) {
	var bookID int64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM books WHERE gutenberg_id = ?`, rec.ID).Scan(&bookID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.ExecContext(ctx, `
			INSERT INTO books (gutenberg_id, title, media_type, copyright, download_count)
			VALUES (?, ?, ?, ?, ?)
		`, rec.ID, rec.Title, rec.MediaType, rec.Copyright, rec.Downloads)
		if err != nil {
			return 0, fmt.Errorf("insert book: %w", err)
		}
		return res.LastInsertId()
	case err != nil:
		return 0, fmt.Errorf("select book: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE books
		SET title = ?, media_type = ?, copyright = ?, download_count = ?
		WHERE id = ?
	`, rec.Title, rec.MediaType, rec.Copyright, rec.Downloads, bookID); err != nil {
		return 0, fmt.Errorf("update book: %w", err)
	}
	return bookID, nil
}

// getOrCreate is the generic find-or-create on a natural key. The select
// and insert statements must take the same arguments in the same order.
func getOrCreate(ctx context.Context, tx *sql.Tx, selectSQL, insertSQL string, args ...any) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, selectSQL, args...).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, insertSQL, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// replacePersons swaps the book's entire association set for one role with
// the resolved person rows. The person lookup uses IS so that NULL birth or
// death years still match their existing row.
func replacePersons(ctx context.Context, tx *sql.Tx, table string, bookID int64, refs []models.PersonRef) error {
	ids := make([]int64, 0, len(refs))
	for _, p := range refs {
		id, err := getOrCreate(ctx, tx,
			`SELECT id FROM persons WHERE name = ? AND birth_year IS ? AND death_year IS ?`,
			`INSERT INTO persons (name, birth_year, death_year) VALUES (?, ?, ?)`,
			p.Name, p.Birth, p.Death)
		if err != nil {
			return fmt.Errorf("person %q: %w", p.Name, err)
		}
		ids = append(ids, id)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM `+table+` WHERE book_id = ?`, bookID); err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO `+table+` (book_id, person_id) VALUES (?, ?)`,
			bookID, id); err != nil {
			return err
		}
	}
	return nil
}

// replaceTags is the full-replace pattern for subject/bookshelf/language
// style relations: resolve each value by natural key, then swap the join
// set wholesale.
func replaceTags(ctx context.Context, tx *sql.Tx, joinTable, refCol, selectSQL, insertSQL string, bookID int64, values []string) error {
	ids := make([]int64, 0, len(values))
	for _, v := range values {
		id, err := getOrCreate(ctx, tx, selectSQL, insertSQL, v)
		if err != nil {
			return fmt.Errorf("%q: %w", v, err)
		}
		ids = append(ids, id)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM `+joinTable+` WHERE book_id = ?`, bookID); err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO `+joinTable+` (book_id, `+refCol+`) VALUES (?, ?)`,
			bookID, id); err != nil {
			return err
		}
	}
	return nil
}

// pruneFormats keeps or creates a row per (mime type, url) and deletes
// previously persisted formats the current record no longer carries.
// Matching rows keep their surrogate identity.
func pruneFormats(ctx context.Context, tx *sql.Tx, bookID int64, formats map[string]string) error {
	kept := make(map[int64]struct{}, len(formats))
	for mime, url := range formats {
		id, err := getOrCreate(ctx, tx,
			`SELECT id FROM formats WHERE book_id = ? AND mime_type = ? AND url = ?`,
			`INSERT INTO formats (book_id, mime_type, url) VALUES (?, ?, ?)`,
			bookID, mime, url)
		if err != nil {
			return fmt.Errorf("%s: %w", mime, err)
		}
		kept[id] = struct{}{}
	}
	return pruneOrphans(ctx, tx, "formats", bookID, kept)
}

func pruneSummaries(ctx context.Context, tx *sql.Tx, bookID int64, summaries []string) error {
	kept := make(map[int64]struct{}, len(summaries))
	for _, text := range summaries {
		id, err := getOrCreate(ctx, tx,
			`SELECT id FROM summaries WHERE book_id = ? AND text = ?`,
			`INSERT INTO summaries (book_id, text) VALUES (?, ?)`,
			bookID, text)
		if err != nil {
			return err
		}
		kept[id] = struct{}{}
	}
	return pruneOrphans(ctx, tx, "summaries", bookID, kept)
}

func pruneOrphans(ctx context.Context, tx *sql.Tx, table string, bookID int64, kept map[int64]struct{}) error {
	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM `+table+` WHERE book_id = ?`, bookID)
	if err != nil {
		return err
	}
	defer rows.Close()

	var stale []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return err
		}
		if _, ok := kept[id]; !ok {
			stale = append(stale, id)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range stale {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM `+table+` WHERE id = ?`, id); err != nil {
			return err
		}
	}
	return nil
}

// DeleteStale removes every book whose identifier was not seen during this
// run. Books with a NULL identifier cannot be matched against an archive
// and are never auto-deleted. Owned formats and summaries cascade; shared
// reference entities stay even if now unreferenced.
func (r *Reconciler) DeleteStale(ctx context.Context) (int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, gutenberg_id FROM books WHERE gutenberg_id IS NOT NULL`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var stale []int64
	for rows.Next() {
		var id int64
		var gid int
		if err := rows.Scan(&id, &gid); err != nil {
			return 0, err
		}
		if _, ok := r.seen[gid]; !ok {
			stale = append(stale, id)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	for _, id := range stale {
		if _, err := tx.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, id); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(stale), nil
}

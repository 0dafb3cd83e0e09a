package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"bookdex/pkg/models"
)

type Repo struct {
	DB *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

// ListQuery is the filter surface of GET /books.
type ListQuery struct {
	IDs             []int    // gutenberg ids
	Languages       []string // language codes, any-match
	Copyright       []string // csv of "true", "false", "null"
	MimeType        string   // format MIME type prefix
	Search          string   // terms matched against title and author names
	Topic           string   // matched against subjects and bookshelves
	AuthorYearStart *int
	AuthorYearEnd   *int
	Limit           int
	Offset          int
}

func (r *Repo) Count(ctx context.Context, q ListQuery) (int, error) {
	sqlStr, args := buildListSQL(q, true)
	row := r.DB.QueryRowContext(ctx, sqlStr, args...)
	var total int
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("count scan: %w", err)
	}
	return total, nil
}

func (r *Repo) List(ctx context.Context, q ListQuery) ([]models.BookDB, error) {
	sqlStr, args := buildListSQL(q, false)

	rows, err := r.DB.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list query: %w", err)
	}
	defer rows.Close()

	type bookRow struct {
		rowID int64
		book  models.BookDB
	}
	var page []bookRow
	for rows.Next() {
		var br bookRow
		if err := scanBook(rows, &br.rowID, &br.book); err != nil {
			return nil, fmt.Errorf("list scan: %w", err)
		}
		page = append(page, br)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}

	out := make([]models.BookDB, 0, len(page))
	for _, br := range page {
		if err := r.loadRelations(ctx, br.rowID, &br.book); err != nil {
			return nil, err
		}
		out = append(out, br.book)
	}
	return out, nil
}

// GetByID fetches one book by its gutenberg id. Returns nil when absent.
func (r *Repo) GetByID(ctx context.Context, gutenbergID int) (*models.BookDB, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT id, gutenberg_id, title, media_type, copyright, download_count
		FROM books
		WHERE gutenberg_id = ?
	`, gutenbergID)

	var rowID int64
	var b models.BookDB
	if err := scanBook(row, &rowID, &b); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan getByID: %w", err)
	}
	if err := r.loadRelations(ctx, rowID, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBook(s scanner, rowID *int64, b *models.BookDB) error {
	var (
		gid       sql.NullInt64
		title     sql.NullString
		mediaType sql.NullString
		copyright sql.NullBool
		downloads sql.NullInt64
	)
	if err := s.Scan(rowID, &gid, &title, &mediaType, &copyright, &downloads); err != nil {
		return err
	}
	if gid.Valid {
		b.ID = int(gid.Int64)
	}
	if title.Valid {
		b.Title = &title.String
	}
	if mediaType.Valid {
		b.MediaType = &mediaType.String
	}
	if copyright.Valid {
		b.Copyright = &copyright.Bool
	}
	if downloads.Valid {
		n := int(downloads.Int64)
		b.Downloads = &n
	}
	return nil
}

func (r *Repo) loadRelations(ctx context.Context, rowID int64, b *models.BookDB) error {
	var err error
	if b.Authors, err = r.personsFor(ctx, "book_authors", rowID); err != nil {
		return err
	}
	if b.Translators, err = r.personsFor(ctx, "book_translators", rowID); err != nil {
		return err
	}
	if b.Editors, err = r.personsFor(ctx, "book_editors", rowID); err != nil {
		return err
	}

	if b.Subjects, err = r.namesFor(ctx, `
		SELECT s.name FROM book_subjects bs
		JOIN subjects s ON s.id = bs.subject_id
		WHERE bs.book_id = ?`, rowID); err != nil {
		return err
	}
	if b.Bookshelves, err = r.namesFor(ctx, `
		SELECT bsf.name FROM book_bookshelves bb
		JOIN bookshelves bsf ON bsf.id = bb.bookshelf_id
		WHERE bb.book_id = ?`, rowID); err != nil {
		return err
	}
	if b.Languages, err = r.namesFor(ctx, `
		SELECT l.code FROM book_languages bl
		JOIN languages l ON l.id = bl.language_id
		WHERE bl.book_id = ?`, rowID); err != nil {
		return err
	}
	if b.Summaries, err = r.namesFor(ctx, `
		SELECT text FROM summaries WHERE book_id = ?`, rowID); err != nil {
		return err
	}

	b.Formats = map[string]string{}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT mime_type, url FROM formats WHERE book_id = ?`, rowID)
	if err != nil {
		return fmt.Errorf("formats query: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var mime, url string
		if err := rows.Scan(&mime, &url); err != nil {
			return fmt.Errorf("formats scan: %w", err)
		}
		b.Formats[mime] = url
	}
	return rows.Err()
}

func (r *Repo) personsFor(ctx context.Context, joinTable string, rowID int64) ([]models.PersonDB, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT p.name, p.birth_year, p.death_year
		FROM `+joinTable+` j
		JOIN persons p ON p.id = j.person_id
		WHERE j.book_id = ?
		ORDER BY p.name
	`, rowID)
	if err != nil {
		return nil, fmt.Errorf("%s query: %w", joinTable, err)
	}
	defer rows.Close()

	out := []models.PersonDB{}
	for rows.Next() {
		var p models.PersonDB
		var birth, death sql.NullInt64
		if err := rows.Scan(&p.Name, &birth, &death); err != nil {
			return nil, fmt.Errorf("%s scan: %w", joinTable, err)
		}
		if birth.Valid {
			n := int(birth.Int64)
			p.Birth = &n
		}
		if death.Valid {
			n := int(death.Int64)
			p.Death = &n
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repo) namesFor(ctx context.Context, query string, rowID int64) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, query, rowID)
	if err != nil {
		return nil, fmt.Errorf("names query: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("names scan: %w", err)
		}
		out = append(out, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// buildListSQL builds either COUNT(*) or the SELECT page. Relation filters
// go through EXISTS subqueries so the page never needs DISTINCT.
func buildListSQL(q ListQuery, countOnly bool) (string, []any) {
	baseSelect := `
		SELECT id, gutenberg_id, title, media_type, copyright, download_count
		FROM books
	`
	if countOnly {
		baseSelect = `SELECT COUNT(*) FROM books`
	}

	// listings only show books with a known download count
	where := []string{"download_count IS NOT NULL"}
	var args []any

	if len(q.IDs) > 0 {
		ph := make([]string, len(q.IDs))
		for i, id := range q.IDs {
			ph[i] = "?"
			args = append(args, id)
		}
		where = append(where, "gutenberg_id IN ("+strings.Join(ph, ",")+")")
	}

	if len(q.Languages) > 0 {
		ph := make([]string, len(q.Languages))
		for i, code := range q.Languages {
			ph[i] = "?"
			args = append(args, strings.ToLower(strings.TrimSpace(code)))
		}
		where = append(where, `EXISTS (
			SELECT 1 FROM book_languages bl
			JOIN languages l ON l.id = bl.language_id
			WHERE bl.book_id = books.id AND l.code IN (`+strings.Join(ph, ",")+`))`)
	}

	// copyright=true,false,null keeps only the listed states
	if len(q.Copyright) > 0 {
		allowed := map[string]bool{}
		for _, v := range q.Copyright {
			allowed[strings.ToLower(strings.TrimSpace(v))] = true
		}
		if !allowed["true"] {
			where = append(where, "copyright IS NOT 1")
		}
		if !allowed["false"] {
			where = append(where, "copyright IS NOT 0")
		}
		if !allowed["null"] {
			where = append(where, "copyright IS NOT NULL")
		}
	}

	if strings.TrimSpace(q.MimeType) != "" {
		where = append(where, `EXISTS (
			SELECT 1 FROM formats f
			WHERE f.book_id = books.id AND f.mime_type LIKE ?)`)
		args = append(args, strings.TrimSpace(q.MimeType)+"%")
	}

	// every search term must hit the title or an author name
	for _, term := range strings.Fields(q.Search) {
		kw := "%" + strings.ToLower(term) + "%"
		where = append(where, `(LOWER(title) LIKE ? OR EXISTS (
			SELECT 1 FROM book_authors ba
			JOIN persons p ON p.id = ba.person_id
			WHERE ba.book_id = books.id AND LOWER(p.name) LIKE ?))`)
		args = append(args, kw, kw)
	}

	if strings.TrimSpace(q.Topic) != "" {
		kw := "%" + strings.ToLower(strings.TrimSpace(q.Topic)) + "%"
		where = append(where, `(EXISTS (
			SELECT 1 FROM book_subjects bs
			JOIN subjects s ON s.id = bs.subject_id
			WHERE bs.book_id = books.id AND LOWER(s.name) LIKE ?)
		OR EXISTS (
			SELECT 1 FROM book_bookshelves bb
			JOIN bookshelves bsf ON bsf.id = bb.bookshelf_id
			WHERE bb.book_id = books.id AND LOWER(bsf.name) LIKE ?))`)
		args = append(args, kw, kw)
	}

	if q.AuthorYearStart != nil {
		where = append(where, `EXISTS (
			SELECT 1 FROM book_authors ba
			JOIN persons p ON p.id = ba.person_id
			WHERE ba.book_id = books.id
			AND (p.birth_year >= ? OR p.death_year >= ?))`)
		args = append(args, *q.AuthorYearStart, *q.AuthorYearStart)
	}
	if q.AuthorYearEnd != nil {
		where = append(where, `EXISTS (
			SELECT 1 FROM book_authors ba
			JOIN persons p ON p.id = ba.person_id
			WHERE ba.book_id = books.id
			AND (p.birth_year <= ? OR p.death_year <= ?))`)
		args = append(args, *q.AuthorYearEnd, *q.AuthorYearEnd)
	}

	sqlStr := baseSelect + " WHERE " + strings.Join(where, " AND ")

	if !countOnly {
		sqlStr += " ORDER BY download_count DESC, gutenberg_id ASC"
		sqlStr += " LIMIT ? OFFSET ?"
		limit := q.Limit
		if limit <= 0 || limit > 100 {
			limit = 32
		}
		offset := q.Offset
		if offset < 0 {
			offset = 0
		}
		args = append(args, limit, offset)
	}

	return sqlStr, args
}

package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"bookdex/pkg/models"
)

// PageQuery paginates the reference-entity listings.
type PageQuery struct {
	Limit  int
	Offset int
}

func (q PageQuery) clamp() (int, int) {
	limit := q.Limit
	if limit <= 0 || limit > 100 {
		limit = 32
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (r *Repo) ListPersons(ctx context.Context, q PageQuery) ([]models.PersonDB, int, error) {
	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM persons`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("persons count: %w", err)
	}

	limit, offset := q.clamp()
	rows, err := r.DB.QueryContext(ctx, `
		SELECT name, birth_year, death_year
		FROM persons
		ORDER BY birth_year, name
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("persons query: %w", err)
	}
	defer rows.Close()

	out := []models.PersonDB{}
	for rows.Next() {
		var p models.PersonDB
		var birth, death sql.NullInt64
		if err := rows.Scan(&p.Name, &birth, &death); err != nil {
			return nil, 0, fmt.Errorf("persons scan: %w", err)
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
	return out, total, rows.Err()
}

func (r *Repo) ListSubjects(ctx context.Context, q PageQuery) ([]string, int, error) {
	return r.listNames(ctx, "subjects", "name", q)
}

func (r *Repo) ListBookshelves(ctx context.Context, q PageQuery) ([]string, int, error) {
	return r.listNames(ctx, "bookshelves", "name", q)
}

func (r *Repo) ListLanguages(ctx context.Context, q PageQuery) ([]string, int, error) {
	return r.listNames(ctx, "languages", "code", q)
}

func (r *Repo) listNames(ctx context.Context, table, col string, q PageQuery) ([]string, int, error) {
	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%s count: %w", table, err)
	}

	limit, offset := q.clamp()
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+col+` FROM `+table+` ORDER BY `+col+` LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("%s query: %w", table, err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, 0, fmt.Errorf("%s scan: %w", table, err)
		}
		out = append(out, name)
	}
	return out, total, rows.Err()
}

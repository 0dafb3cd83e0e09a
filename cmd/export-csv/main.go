package main

import (
	"context"
	"database/sql"
	"encoding/csv"
	"flag"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"bookdex/pkg/database"
)

func main() {
	var booksOut = flag.String("books", "data/books.csv", "output CSV path for books")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	db := database.MustOpen(database.DefaultConfig())
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("db migrate failed: %v", err)
	}

	if err := exportBooks(ctx, db, *booksOut); err != nil {
		log.Fatalf("export books failed: %v", err)
	}

	log.Printf("exported books to %s", *booksOut)
}

func exportBooks(ctx context.Context, db *sql.DB, outPath string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}

	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"gutenberg_id", "title", "authors", "languages", "media_type", "copyright", "download_count"}
	if err := w.Write(header); err != nil {
		return err
	}

	rows, err := db.QueryContext(ctx, `
        SELECT b.id, b.gutenberg_id, b.title, b.media_type, b.copyright, b.download_count
        FROM books b
        ORDER BY b.gutenberg_id
    `)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rowID     int64
			gid       sql.NullInt64
			title     sql.NullString
			mediaType sql.NullString
			copyright sql.NullBool
			downloads sql.NullInt64
		)
		if err := rows.Scan(&rowID, &gid, &title, &mediaType, &copyright, &downloads); err != nil {
			return err
		}

		authors, err := joinedNames(ctx, db, `
			SELECT p.name FROM book_authors ba
			JOIN persons p ON p.id = ba.person_id
			WHERE ba.book_id = ? ORDER BY p.name`, rowID)
		if err != nil {
			return err
		}
		languages, err := joinedNames(ctx, db, `
			SELECT l.code FROM book_languages bl
			JOIN languages l ON l.id = bl.language_id
			WHERE bl.book_id = ? ORDER BY l.code`, rowID)
		if err != nil {
			return err
		}

		id := ""
		if gid.Valid {
			id = strconv.FormatInt(gid.Int64, 10)
		}
		cr := ""
		if copyright.Valid {
			cr = strconv.FormatBool(copyright.Bool)
		}
		dl := ""
		if downloads.Valid {
			dl = strconv.FormatInt(downloads.Int64, 10)
		}

		record := []string{id, title.String, authors, languages, mediaType.String, cr, dl}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	w.Flush()
	return w.Error()
}

func joinedNames(ctx context.Context, db *sql.DB, query string, rowID int64) (string, error) {
	rows, err := db.QueryContext(ctx, query, rowID)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return "", err
		}
		names = append(names, name)
	}
	return strings.Join(names, "; "), rows.Err()
}

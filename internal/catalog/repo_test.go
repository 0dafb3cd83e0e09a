package catalog

import (
	"context"
	"database/sql"
	"path/filepath"
	"reflect"
	"testing"

	"bookdex/internal/ingest"
	"bookdex/pkg/database"
	"bookdex/pkg/models"
)

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }
func boolPtr(v bool) *bool    { return &v }

// seedCatalog reconciles a small fixture catalog through the real pipeline:
//
//	1 "Moby Dick"   en  public domain  author Melville (1819-1891)  subject Whaling  100 downloads
//	2 "Faust"       de  public domain  author Goethe (1749-1832)    shelf Drama      50 downloads
//	3 "Modern Book" en  copyrighted    author Recent (1950-)        subject Whaling  10 downloads
func seedCatalog(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.MigrateFrom(db, filepath.Join("..", "..", "docs", "schema.sql")); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	records := []*models.BookRecord{
		{
			ID:        1,
			Title:     strPtr("Moby Dick"),
			Copyright: boolPtr(false),
			Downloads: intPtr(100),
			Authors: []models.PersonRef{
				{Name: "Melville, Herman", Birth: intPtr(1819), Death: intPtr(1891)},
			},
			Subjects:  []string{"Whaling"},
			Languages: []string{"en"},
			Formats:   map[string]string{"text/plain": "u1", "text/html": "u2"},
		},
		{
			ID:        2,
			Title:     strPtr("Faust"),
			Copyright: boolPtr(false),
			Downloads: intPtr(50),
			Authors: []models.PersonRef{
				{Name: "Goethe, Johann Wolfgang von", Birth: intPtr(1749), Death: intPtr(1832)},
			},
			Bookshelves: []string{"Drama"},
			Languages:   []string{"de"},
			Formats:     map[string]string{"application/epub+zip": "u3"},
		},
		{
			ID:        3,
			Title:     strPtr("Modern Book"),
			Copyright: boolPtr(true),
			Downloads: intPtr(10),
			Authors: []models.PersonRef{
				{Name: "Recent, Author", Birth: intPtr(1950)},
			},
			Subjects:  []string{"Whaling"},
			Languages: []string{"en"},
			Formats:   map[string]string{},
		},
	}

	rec := ingest.NewReconciler(db)
	for _, r := range records {
		if err := rec.ReconcileBook(context.Background(), r); err != nil {
			t.Fatalf("seed book %d: %v", r.ID, err)
		}
	}
	return db
}

func listIDs(t *testing.T, repo *Repo, q ListQuery) []int {
	t.Helper()
	books, err := repo.List(context.Background(), q)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	ids := make([]int, len(books))
	for i, b := range books {
		ids[i] = b.ID
	}
	return ids
}

func TestListOrderAndPagination(t *testing.T) {
	repo := NewRepo(seedCatalog(t))

	// download count descending
	if ids := listIDs(t, repo, ListQuery{}); !reflect.DeepEqual(ids, []int{1, 2, 3}) {
		t.Errorf("ids = %v", ids)
	}
	if ids := listIDs(t, repo, ListQuery{Limit: 1, Offset: 1}); !reflect.DeepEqual(ids, []int{2}) {
		t.Errorf("page ids = %v", ids)
	}

	total, err := repo.Count(context.Background(), ListQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 {
		t.Errorf("total = %d", total)
	}
}

func TestListFilters(t *testing.T) {
	repo := NewRepo(seedCatalog(t))

	cases := []struct {
		name string
		q    ListQuery
		want []int
	}{
		{"ids", ListQuery{IDs: []int{2, 3}}, []int{2, 3}},
		{"languages", ListQuery{Languages: []string{"de"}}, []int{2}},
		{"copyright true", ListQuery{Copyright: []string{"true"}}, []int{3}},
		{"copyright false", ListQuery{Copyright: []string{"false"}}, []int{1, 2}},
		{"mime prefix", ListQuery{MimeType: "text"}, []int{1}},
		{"search title", ListQuery{Search: "moby"}, []int{1}},
		{"search author", ListQuery{Search: "goethe"}, []int{2}},
		{"search both terms", ListQuery{Search: "moby melville"}, []int{1}},
		{"topic subject", ListQuery{Topic: "whaling"}, []int{1, 3}},
		{"topic bookshelf", ListQuery{Topic: "drama"}, []int{2}},
		{"author year start", ListQuery{AuthorYearStart: intPtr(1900)}, []int{3}},
		{"author year end", ListQuery{AuthorYearEnd: intPtr(1800)}, []int{2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if ids := listIDs(t, repo, tc.q); !reflect.DeepEqual(ids, tc.want) {
				t.Errorf("ids = %v, want %v", ids, tc.want)
			}
		})
	}
}

func TestGetByID(t *testing.T) {
	repo := NewRepo(seedCatalog(t))

	b, err := repo.GetByID(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if b == nil {
		t.Fatal("book 1 not found")
	}
	if b.Title == nil || *b.Title != "Moby Dick" {
		t.Errorf("title = %v", b.Title)
	}
	if len(b.Authors) != 1 || b.Authors[0].Name != "Melville, Herman" {
		t.Errorf("authors = %+v", b.Authors)
	}
	if b.Authors[0].Birth == nil || *b.Authors[0].Birth != 1819 {
		t.Errorf("author birth = %v", b.Authors[0].Birth)
	}
	want := map[string]string{"text/plain": "u1", "text/html": "u2"}
	if !reflect.DeepEqual(b.Formats, want) {
		t.Errorf("formats = %v", b.Formats)
	}
	if !reflect.DeepEqual(b.Subjects, []string{"Whaling"}) {
		t.Errorf("subjects = %v", b.Subjects)
	}
	if b.Copyright == nil || *b.Copyright != false {
		t.Errorf("copyright = %v", b.Copyright)
	}

	missing, err := repo.GetByID(context.Background(), 999)
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Error("want nil for unknown id")
	}
}

func TestReferenceListings(t *testing.T) {
	repo := NewRepo(seedCatalog(t))
	ctx := context.Background()

	persons, total, err := repo.ListPersons(ctx, PageQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || len(persons) != 3 {
		t.Errorf("persons total=%d len=%d", total, len(persons))
	}
	// ordered by birth year
	if persons[0].Name != "Goethe, Johann Wolfgang von" {
		t.Errorf("first person = %q", persons[0].Name)
	}

	subjects, _, err := repo.ListSubjects(ctx, PageQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(subjects, []string{"Whaling"}) {
		t.Errorf("subjects = %v", subjects)
	}

	langs, _, err := repo.ListLanguages(ctx, PageQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(langs, []string{"de", "en"}) {
		t.Errorf("languages = %v", langs)
	}
}

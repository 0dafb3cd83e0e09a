package models

// PersonDB is the API shape of a persisted person.
type PersonDB struct {
	Name  string `json:"name"`
	Birth *int   `json:"birth_year"`
	Death *int   `json:"death_year"`
}

// BookDB is the API shape of a persisted book with all relations resolved.
type BookDB struct {
	ID          int               `json:"id"` // gutenberg id
	Title       *string           `json:"title"`
	Authors     []PersonDB        `json:"authors"`
	Translators []PersonDB        `json:"translators"`
	Editors     []PersonDB        `json:"editors"`
	Subjects    []string          `json:"subjects"`
	Bookshelves []string          `json:"bookshelves"`
	Languages   []string          `json:"languages"`
	Summaries   []string          `json:"summaries"`
	Copyright   *bool             `json:"copyright"`
	MediaType   *string           `json:"media_type"`
	Formats     map[string]string `json:"formats"`
	Downloads   *int              `json:"download_count"`
}

package models

// PersonRef is one creator/contributor entry as extracted from a catalog
// record. Birth and death are nil when the source omits them.
type PersonRef struct {
	Name  string `json:"name"`
	Birth *int   `json:"birth_year"`
	Death *int   `json:"death_year"`
}

// BookRecord is the normalized, internal form of one book extracted from
// one archive member.
//
// Every member is mapped into this structure first, then the reconciler
// writes to the DB from this representation. Pointer fields distinguish
// "absent in the source" from a zero value; Copyright is tri-state
// (nil = unknown, false = public domain, true = copyrighted).
type BookRecord struct {
	ID          int               `json:"id"`
	Title       *string           `json:"title"`
	MediaType   *string           `json:"media_type"`
	Copyright   *bool             `json:"copyright"`
	Downloads   *int              `json:"download_count"`
	Authors     []PersonRef       `json:"authors"`
	Translators []PersonRef       `json:"translators"`
	Editors     []PersonRef       `json:"editors"`
	Subjects    []string          `json:"subjects"`
	Bookshelves []string          `json:"bookshelves"`
	Languages   []string          `json:"languages"`
	Summaries   []string          `json:"summaries"`
	Formats     map[string]string `json:"formats"`
}

package ingest

import (
	"encoding/xml"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"bookdex/pkg/models"
)

// The feed's remaining namespaces appear only in struct tags below.
const (
	nsDC = "http://purl.org/dc/terms/"

	lcshResource = nsDC + "LCSH"
)

type rdfDoc struct {
	XMLName xml.Name  `xml:"http://www.w3.org/1999/02/22-rdf-syntax-ns# RDF"`
	Ebook   *ebookXML `xml:"http://www.gutenberg.org/2009/pgterms/ ebook"`
}

type ebookXML struct {
	Title       *string       `xml:"http://purl.org/dc/terms/ title"`
	Creators    []agentHolder `xml:"http://purl.org/dc/terms/ creator"`
	Translators []agentHolder `xml:"http://id.loc.gov/vocabulary/relators/ trl"`
	Editors     []agentHolder `xml:"http://id.loc.gov/vocabulary/relators/ edt"`
	Subjects    []subjectXML  `xml:"http://purl.org/dc/terms/ subject"`
	Bookshelves []valueHolder `xml:"http://www.gutenberg.org/2009/pgterms/ bookshelf"`
	Rights      *string       `xml:"http://purl.org/dc/terms/ rights"`
	HasFormats  []fileHolder  `xml:"http://purl.org/dc/terms/ hasFormat"`
	Type        *valueHolder  `xml:"http://purl.org/dc/terms/ type"`
	Languages   []valueHolder `xml:"http://purl.org/dc/terms/ language"`
	Downloads   *string       `xml:"http://www.gutenberg.org/2009/pgterms/ downloads"`
	Summaries   []string      `xml:"http://www.gutenberg.org/2009/pgterms/ marc520"`
}

type agentHolder struct {
	Agent *agentXML `xml:"agent"`
}

type agentXML struct {
	Name  string  `xml:"name"`
	Birth *string `xml:"birthdate"`
	Death *string `xml:"deathdate"`
}

type subjectXML struct {
	Description struct {
		MemberOf struct {
			Resource string `xml:"resource,attr"`
		} `xml:"memberOf"`
		Value string `xml:"value"`
	} `xml:"Description"`
}

type valueHolder struct {
	Value string `xml:"Description>value"`
}

type fileHolder struct {
	File struct {
		About   string       `xml:"about,attr"`
		Formats []fileFormat `xml:"format"`
	} `xml:"file"`
}

type fileFormat struct {
	Value string `xml:"Description>value"`
}

var lineBreakRun = regexp.MustCompile(`[ \t]*[\r\n]+[ \t]*`)

// fixSubtitles collapses a multi-line title into one line of subtitle
// punctuation: the first line-break run becomes ": ", every later one "; ".
//
//	"First Across ...\r\nThe Story of ...\r\nBeing an investigation ..."
//	→ "First Across ...: The Story of ...; Being an investigation ..."
func fixSubtitles(title string) string {
	first := true
	return lineBreakRun.ReplaceAllStringFunc(title, func(string) string {
		if first {
			first = false
			return ": "
		}
		return "; "
	})
}

// ExtractBook parses one archive member into a normalized book record.
// Malformed XML yields a ParseError; a document without an ebook node is
// treated as an empty record, not an error. Missing optional fields are
// left nil.
func ExtractBook(id int, member string, raw []byte) (*models.BookRecord, error) {
	var doc rdfDoc
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, &ParseError{Member: member, Err: err}
	}

	rec := &models.BookRecord{
		ID:      id,
		Formats: map[string]string{},
	}
	ebook := doc.Ebook
	if ebook == nil {
		return rec, nil
	}

	// Title
	if ebook.Title != nil {
		title := fixSubtitles(*ebook.Title)
		rec.Title = &title
	}

	// Persons by role. Dedup happens at reconciliation time, not here.
	rec.Authors = extractPersons(ebook.Creators)
	rec.Translators = extractPersons(ebook.Translators)
	rec.Editors = extractPersons(ebook.Editors)

	// Subjects: Library of Congress subject headings only, sorted for
	// deterministic output. Other classification schemes in the same node
	// list are ignored.
	subjects := map[string]struct{}{}
	for _, s := range ebook.Subjects {
		if s.Description.MemberOf.Resource != lcshResource {
			continue
		}
		if v := s.Description.Value; v != "" {
			subjects[v] = struct{}{}
		}
	}
	for v := range subjects {
		rec.Subjects = append(rec.Subjects, v)
	}
	sort.Strings(rec.Subjects)

	// Bookshelves: deduplicated, order not significant.
	shelves := map[string]struct{}{}
	for _, b := range ebook.Bookshelves {
		if b.Value == "" {
			continue
		}
		if _, ok := shelves[b.Value]; !ok {
			shelves[b.Value] = struct{}{}
			rec.Bookshelves = append(rec.Bookshelves, b.Value)
		}
	}

	// Copyright: classified by the literal prefix of the rights statement.
	if ebook.Rights != nil {
		switch {
		case strings.HasPrefix(*ebook.Rights, "Public domain in the USA."):
			v := false
			rec.Copyright = &v
		case strings.HasPrefix(*ebook.Rights, "Copyrighted."):
			v := true
			rec.Copyright = &v
		}
	}

	// Formats: one URL per MIME type, preferring the illustrated variant
	// over a "noimages" one when both appear.
	for _, hf := range ebook.HasFormats {
		mime := ""
		for _, f := range hf.File.Formats {
			if f.Value != "" {
				mime = f.Value
				break
			}
		}
		if mime == "" {
			continue
		}
		if cur, ok := rec.Formats[mime]; !ok || strings.Contains(cur, "noimages") {
			rec.Formats[mime] = hf.File.About
		}
	}

	// Type
	if ebook.Type != nil && ebook.Type.Value != "" {
		v := ebook.Type.Value
		rec.MediaType = &v
	}

	// Languages: source order, no dedup.
	for _, l := range ebook.Languages {
		if l.Value != "" {
			rec.Languages = append(rec.Languages, l.Value)
		}
	}

	// Download count
	if ebook.Downloads != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(*ebook.Downloads)); err == nil {
			rec.Downloads = &n
		}
	}

	// Summaries: deduplicated free-text blocks.
	seen := map[string]struct{}{}
	for _, s := range ebook.Summaries {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			rec.Summaries = append(rec.Summaries, s)
		}
	}

	return rec, nil
}

func extractPersons(holders []agentHolder) []models.PersonRef {
	var out []models.PersonRef
	for _, h := range holders {
		if h.Agent == nil || h.Agent.Name == "" {
			continue
		}
		p := models.PersonRef{Name: h.Agent.Name}
		p.Birth = parseYear(h.Agent.Birth)
		p.Death = parseYear(h.Agent.Death)
		out = append(out, p)
	}
	return out
}

func parseYear(s *string) *int {
	if s == nil {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(*s))
	if err != nil {
		return nil
	}
	return &n
}

package catalog

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	Repo *Repo
}

func NewHandler(repo *Repo) *Handler {
	return &Handler{Repo: repo}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/books", h.listBooks)
	r.GET("/books/:id", h.getBook)
	r.GET("/persons", h.listPersons)
	r.GET("/subjects", h.listSubjects)
	r.GET("/bookshelves", h.listBookshelves)
	r.GET("/languages", h.listLanguages)
}

func (h *Handler) listBooks(c *gin.Context) {
	q := ListQuery{
		MimeType: c.Query("mime_type"),
		Search:   c.Query("search"),
		Topic:    c.Query("topic"),
		Limit:    parseInt(c.Query("limit"), 32),
		Offset:   parseInt(c.Query("offset"), 0),
	}

	// ids=1,2,3
	if s := c.Query("ids"); s != "" {
		for _, part := range strings.Split(s, ",") {
			if id, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
				q.IDs = append(q.IDs, id)
			}
		}
	}

	// languages=en,fr OR languages=en&languages=fr
	langs := c.QueryArray("languages")
	if len(langs) == 1 && strings.Contains(langs[0], ",") {
		langs = strings.Split(langs[0], ",")
	}
	q.Languages = langs

	// copyright=true,false,null
	if s := c.Query("copyright"); s != "" {
		q.Copyright = strings.Split(s, ",")
	}

	if s := c.Query("author_year_start"); s != "" {
		if y, err := strconv.Atoi(s); err == nil {
			q.AuthorYearStart = &y
		}
	}
	if s := c.Query("author_year_end"); s != "" {
		if y, err := strconv.Atoi(s); err == nil {
			q.AuthorYearEnd = &y
		}
	}

	total, err := h.Repo.Count(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count failed"})
		return
	}

	items, err := h.Repo.List(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total":  total,
		"limit":  q.Limit,
		"offset": q.Offset,
		"items":  items,
	})
}

func (h *Handler) getBook(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	b, err := h.Repo.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get failed"})
		return
	}
	if b == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *Handler) listPersons(c *gin.Context) {
	q := pageQuery(c)
	items, total, err := h.Repo.ListPersons(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "limit": q.Limit, "offset": q.Offset, "items": items})
}

func (h *Handler) listSubjects(c *gin.Context) {
	listRef(c, h.Repo.ListSubjects)
}

func (h *Handler) listBookshelves(c *gin.Context) {
	listRef(c, h.Repo.ListBookshelves)
}

func (h *Handler) listLanguages(c *gin.Context) {
	listRef(c, h.Repo.ListLanguages)
}

func listRef(c *gin.Context, list func(ctx context.Context, q PageQuery) ([]string, int, error)) {
	q := pageQuery(c)
	items, total, err := list(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "limit": q.Limit, "offset": q.Offset, "items": items})
}

func pageQuery(c *gin.Context) PageQuery {
	return PageQuery{
		Limit:  parseInt(c.Query("limit"), 32),
		Offset: parseInt(c.Query("offset"), 0),
	}
}

func parseInt(s string, def int) int {
	if strings.TrimSpace(s) == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

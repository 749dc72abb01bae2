package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicvoice/backend/internal/pages"
)

func TestPages(t *testing.T) {
	e := newEnv(t)

	for _, slug := range []string{"about", "faq", "privacy", "terms", "conduct", "support", "updates"} {
		rec := e.do(http.MethodGet, "/pages/"+slug, nil, nil)
		require.Equal(t, http.StatusOK, rec.Code, slug)
		var page pages.Page
		decode(t, rec, &page)
		assert.Equal(t, slug, page.Slug)
		assert.Contains(t, page.HTML, "<h1>")
	}

	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/pages/nope", nil, nil).Code)
}

func TestHealth(t *testing.T) {
	e := newEnv(t)
	rec := e.do(http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

// Package pages renders the site's static informational pages from embedded
// markdown.
package pages

import (
	"bytes"
	"embed"
	"errors"
	"io/fs"
	"regexp"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

//go:embed content/*.md
var content embed.FS

var ErrNotFound = errors.New("page not found")

var slugPattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

type Page struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
	HTML  string `json:"html"`
}

// Renderer converts embedded markdown to HTML once per page.
type Renderer struct {
	md    goldmark.Markdown
	files fs.FS

	mu    sync.Mutex
	cache map[string]*Page
}

func NewRenderer() *Renderer {
	sub, _ := fs.Sub(content, "content")
	return &Renderer{
		md:    goldmark.New(goldmark.WithExtensions(extension.GFM)),
		files: sub,
		cache: map[string]*Page{},
	}
}

// Slugs lists the available pages.
func (r *Renderer) Slugs() []string {
	matches, _ := fs.Glob(r.files, "*.md")
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimSuffix(m, ".md"))
	}
	return out
}

func (r *Renderer) Render(slug string) (*Page, error) {
	if !slugPattern.MatchString(slug) {
		return nil, ErrNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.cache[slug]; ok {
		return p, nil
	}

	src, err := fs.ReadFile(r.files, slug+".md")
	if err != nil {
		return nil, ErrNotFound
	}
	var buf bytes.Buffer
	if err := r.md.Convert(src, &buf); err != nil {
		return nil, err
	}

	p := &Page{Slug: slug, Title: title(src, slug), HTML: buf.String()}
	r.cache[slug] = p
	return p, nil
}

// title is the first level-one heading, or the slug.
func title(src []byte, slug string) string {
	for _, line := range strings.Split(string(src), "\n") {
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}
	return slug
}

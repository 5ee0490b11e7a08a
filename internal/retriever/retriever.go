// Package retriever turns a user query into grounding text for the prompt.
package retriever

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// NoMatch is returned when nothing in the knowledge base matches a query.
const NoMatch = "No specific NDIS documents found for this query. Advise the user to check the portal."

// Retriever never fails and never returns an empty string.
type Retriever interface {
	RetrieveContext(ctx context.Context, query string) string
}

// Func adapts an ordinary function to Retriever.
type Func func(ctx context.Context, query string) string

func (f Func) RetrieveContext(ctx context.Context, query string) string {
	return f(ctx, query)
}

type DocumentCategory string

const (
	CategoryPricing              DocumentCategory = "pricing"
	CategoryOperationalGuideline DocumentCategory = "operational_guideline"
	CategoryLegislation          DocumentCategory = "legislation"
)

type Document struct {
	ID            string
	Title         string
	Category      DocumentCategory
	Version       string
	EffectiveDate string
	URL           string
}

type Chunk struct {
	ID            string
	DocumentID    string
	Page          int
	SectionHeader string
	Content       string
}

// KeywordRetriever matches chunks by case-insensitive substring on content
// and section header. Queries mentioning price also match every chunk of
// the pricing documents.
type KeywordRetriever struct {
	mu        sync.RWMutex
	documents map[string]Document
	chunks    map[string]Chunk
	order     []string
}

func NewKeywordRetriever() *KeywordRetriever {
	return &KeywordRetriever{
		documents: make(map[string]Document),
		chunks:    make(map[string]Chunk),
	}
}

// NewSeeded returns a retriever loaded with the reference knowledge base.
func NewSeeded() *KeywordRetriever {
	r := NewKeywordRetriever()
	for _, d := range seedDocuments {
		r.UpsertDocument(d)
	}
	for _, c := range seedChunks {
		r.UpsertChunk(c)
	}
	return r
}

func (r *KeywordRetriever) UpsertDocument(doc Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.documents[doc.ID] = doc
}

// UpsertChunk keeps the position of an existing chunk with the same id.
func (r *KeywordRetriever) UpsertChunk(chunk Chunk) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.chunks[chunk.ID]; !ok {
		r.order = append(r.order, chunk.ID)
	}
	r.chunks[chunk.ID] = chunk
}

func (r *KeywordRetriever) RetrieveContext(ctx context.Context, query string) string {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return NoMatch
	}
	wantsPricing := strings.Contains(q, "price")

	r.mu.RLock()
	defer r.mu.RUnlock()

	var parts []string
	for _, id := range r.order {
		c := r.chunks[id]
		doc, ok := r.documents[c.DocumentID]

		matched := strings.Contains(strings.ToLower(c.Content), q) ||
			strings.Contains(strings.ToLower(c.SectionHeader), q) ||
			(wantsPricing && ok && doc.Category == CategoryPricing)
		if !matched {
			continue
		}

		title := c.DocumentID
		if ok {
			title = doc.Title
		}
		parts = append(parts, fmt.Sprintf("[Source: %s, Page %d]\n%s", title, c.Page, c.Content))
	}

	if len(parts) == 0 {
		return NoMatch
	}
	return strings.Join(parts, "\n\n")
}

// Documents lists the loaded documents ordered by id.
func (r *KeywordRetriever) Documents() []Document {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Document, 0, len(r.documents))
	for _, d := range r.documents {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

package retrieval

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode"
)

// ChunkOptions controls how text is split before embedding.
type ChunkOptions struct {
	Size    int
	Overlap int
}

// DefaultChunkOptions matches the splitter used for the learning corpus.
func DefaultChunkOptions() ChunkOptions {
	return ChunkOptions{Size: 1000, Overlap: 400}
}

// SplitPages splits text on form feeds, the page separator emitted by
// pdftotext. Text without form feeds is a single page.
func SplitPages(text string) []string {
	pages := strings.Split(text, "\f")
	// pdftotext ends the last page with a form feed.
	if len(pages) > 1 && strings.TrimSpace(pages[len(pages)-1]) == "" {
		pages = pages[:len(pages)-1]
	}
	return pages
}

// Chunk splits text into pieces of at most opts.Size runes, each starting
// opts.Overlap runes before the previous one ended. Breaks prefer
// whitespace so words stay whole.
func Chunk(text string, opts ChunkOptions) []string {
	if opts.Size <= 0 {
		opts = DefaultChunkOptions()
	}
	if opts.Overlap < 0 || opts.Overlap >= opts.Size {
		opts.Overlap = 0
	}

	runes := []rune(strings.TrimSpace(text))
	var chunks []string
	for start := 0; start < len(runes); {
		end := start + opts.Size
		if end >= len(runes) {
			end = len(runes)
		} else if brk := lastSpace(runes[start:end]); brk > opts.Size/2 {
			end = start + brk
		}
		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(runes) {
			break
		}
		next := end - opts.Overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

func lastSpace(rs []rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if unicode.IsSpace(rs[i]) {
			return i
		}
	}
	return -1
}

// DocumentsFromText splits text into pages and chunks, labelling each
// chunk with its 1-based page number and source.
func DocumentsFromText(text, source string, opts ChunkOptions) []Document {
	var docs []Document
	for i, page := range SplitPages(text) {
		for _, chunk := range Chunk(page, opts) {
			docs = append(docs, Document{
				Content:   chunk,
				PageLabel: strconv.Itoa(i + 1),
				Source:    source,
			})
		}
	}
	return docs
}

// Ingest reads the text file at path and stores its chunks in collection.
// It returns the number of chunks stored.
func Ingest(ctx context.Context, store *Store, collection, path string, opts ChunkOptions) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}
	docs := DocumentsFromText(string(data), path, opts)
	if len(docs) == 0 {
		return 0, nil
	}
	if err := store.Add(ctx, collection, docs); err != nil {
		return 0, fmt.Errorf("ingesting %s: %w", path, err)
	}
	return len(docs), nil
}

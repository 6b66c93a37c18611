package chunker

import (
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"

	"knowledge-rag/internal/models"
)

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 200
)

// separators is the split priority order, coarsest first. The empty string
// is the raw-character fallback and must stay last.
var separators = []string{
	"\n\n\n",
	"\n\n",
	"\n",
	". ",
	"? ",
	"! ",
	"; ",
	", ",
	" ",
	"",
}

// Chunker splits documents into bounded, overlapping retrieval units.
// Structured (markdown) documents are first cut along header boundaries,
// then every segment goes through the recursive separator splitter.
// Chunking is deterministic: identical input always yields identical output.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// New creates a Chunker. Non-positive arguments fall back to defaults, and
// an overlap at or above the chunk size is halved to keep forward progress.
func New(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = defaultChunkOverlap
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 2
	}
	return &Chunker{chunkSize: chunkSize, chunkOverlap: chunkOverlap}
}

// Chunk splits text into chunks carrying base metadata. Empty or
// whitespace-only text yields zero chunks; callers must treat that as a
// failed ingestion, not an empty success.
func (c *Chunker) Chunk(text string, base map[string]string) []models.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var chunks []models.Chunk
	if isStructured(text) {
		for _, sec := range splitHeaders([]byte(text)) {
			meta := mergeMeta(base, sec.headers)
			for _, piece := range c.splitText(sec.content) {
				chunks = append(chunks, models.Chunk{
					Content:    piece,
					Metadata:   copyMeta(meta),
					ChunkIndex: len(chunks),
				})
			}
		}
	} else {
		for _, piece := range c.splitText(text) {
			chunks = append(chunks, models.Chunk{
				Content:    piece,
				Metadata:   copyMeta(base),
				ChunkIndex: len(chunks),
			})
		}
	}

	total := strconv.Itoa(len(chunks))
	for i := range chunks {
		chunks[i].Metadata[models.MetaChunkIndex] = strconv.Itoa(chunks[i].ChunkIndex)
		chunks[i].Metadata[models.MetaTotalChunks] = total
	}

	log.Debug().
		Int("input_length", len(text)).
		Int("num_chunks", len(chunks)).
		Int("chunk_size", c.chunkSize).
		Msg("chunking complete")

	return chunks
}

// isStructured reports whether text looks like a markdown document worth
// splitting along headers first.
func isStructured(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "#") || strings.Contains(text, "\n## ")
}

// splitText cuts text into pieces of at most chunkSize characters, trying
// the coarsest separator first and recursing into finer ones, then merges
// adjacent pieces back together with a trailing overlap carried between
// consecutive chunks.
func (c *Chunker) splitText(text string) []string {
	pieces := c.split(text, separators)
	return c.merge(pieces)
}

// split produces pieces each at most chunkSize long. Pieces keep their
// separator attached so merging reconstructs the original text exactly.
func (c *Chunker) split(text string, seps []string) []string {
	if len(text) <= c.chunkSize {
		return []string{text}
	}

	// Pick the coarsest separator present; "" always matches.
	sep := ""
	var finer []string
	for i, s := range seps {
		if s == "" {
			sep = ""
			break
		}
		if strings.Contains(text, s) {
			sep = s
			finer = seps[i+1:]
			break
		}
	}

	if sep == "" {
		return hardSplit(text, c.chunkSize)
	}

	var out []string
	for _, part := range strings.SplitAfter(text, sep) {
		if part == "" {
			continue
		}
		if len(part) <= c.chunkSize {
			out = append(out, part)
			continue
		}
		out = append(out, c.split(part, finer)...)
	}
	return out
}

// hardSplit is the raw-character fallback for runs with no usable
// separator. This is the one case allowed to produce a chunk exactly at the
// size limit with no structural boundary.
func hardSplit(text string, size int) []string {
	var out []string
	for len(text) > size {
		out = append(out, text[:size])
		text = text[size:]
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}

// merge joins adjacent pieces into chunks bounded by chunkSize, keeping a
// trailing window of at most chunkOverlap characters from the end of each
// emitted chunk as the start of the next one.
func (c *Chunker) merge(pieces []string) []string {
	var docs []string
	var window []string
	total := 0

	flush := func() {
		doc := strings.TrimSpace(strings.Join(window, ""))
		if doc != "" {
			docs = append(docs, doc)
		}
	}

	for _, piece := range pieces {
		if total+len(piece) > c.chunkSize && len(window) > 0 {
			flush()
			// Drop leading pieces until what remains fits the overlap
			// budget and leaves room for the incoming piece.
			for len(window) > 0 && (total > c.chunkOverlap || total+len(piece) > c.chunkSize) {
				total -= len(window[0])
				window = window[1:]
			}
		}
		window = append(window, piece)
		total += len(piece)
	}
	flush()

	return docs
}

func copyMeta(m map[string]string) map[string]string {
	out := make(map[string]string, len(m)+2)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func mergeMeta(base, extra map[string]string) map[string]string {
	out := copyMeta(base)
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// section is a header-delimited slice of a markdown document.
type section struct {
	content string
	headers map[string]string
}

// headerMark records where a heading starts in the source.
type headerMark struct {
	offset int
	level  int
	title  string
}

var headerKeys = [...]string{1: "header_1", 2: "header_2", 3: "header_3"}

// splitHeaders cuts a markdown document along level 1-3 headings, carrying
// the header path into each resulting section. Headers stay in the content.
// Goldmark does the heading detection, so headings inside fenced code
// blocks are not treated as boundaries.
func splitHeaders(src []byte) []section {
	parser := goldmark.New().Parser()
	doc := parser.Parse(gmtext.NewReader(src))

	var marks []headerMark
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok || h.Level > 3 || h.Lines().Len() == 0 {
			return ast.WalkContinue, nil
		}
		seg := h.Lines().At(0)
		// Walk back from the text to the line start: spaces after the
		// marker, the "#" run, then up to three spaces of indentation.
		// Setext headings have no marker run and are skipped.
		offset := seg.Start
		for offset > 0 && src[offset-1] == ' ' {
			offset--
		}
		hashes := 0
		for offset > 0 && src[offset-1] == '#' {
			offset--
			hashes++
		}
		if hashes != h.Level {
			return ast.WalkContinue, nil
		}
		for offset > 0 && src[offset-1] == ' ' {
			offset--
		}
		marks = append(marks, headerMark{
			offset: offset,
			level:  h.Level,
			title:  strings.TrimSpace(string(src[seg.Start:seg.Stop])),
		})
		return ast.WalkContinue, nil
	})

	if len(marks) == 0 {
		return []section{{content: string(src), headers: map[string]string{}}}
	}

	var sections []section
	if pre := string(src[:marks[0].offset]); strings.TrimSpace(pre) != "" {
		sections = append(sections, section{content: pre, headers: map[string]string{}})
	}

	path := map[int]string{}
	for i, mark := range marks {
		end := len(src)
		if i+1 < len(marks) {
			end = marks[i+1].offset
		}

		path[mark.level] = mark.title
		for lvl := mark.level + 1; lvl < len(headerKeys); lvl++ {
			delete(path, lvl)
		}

		headers := make(map[string]string, len(path))
		for lvl, title := range path {
			headers[headerKeys[lvl]] = title
		}
		sections = append(sections, section{
			content: string(src[mark.offset:end]),
			headers: headers,
		})
	}
	return sections
}

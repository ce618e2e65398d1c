package chunker

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

const (
	// DefaultWindowLines is the sliding-window size used when no span
	// provider covers a file's language.
	DefaultWindowLines = 60

	// DefaultWindowOverlap is the fraction of a window shared with its
	// predecessor.
	DefaultWindowOverlap = 0.10
)

// ErrUnsupportedLanguage is returned by a SpanProvider that has no grammar
// for the requested language. The chunker falls back to sliding windows.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Span is a 1-based inclusive line range within a file.
type Span struct {
	StartLine int
	EndLine   int
}

// SpanProvider computes language-aware chunk boundaries. It is an external
// collaborator; implementations typically wrap a parser or grammar.
type SpanProvider interface {
	Spans(content []byte, language string) ([]Span, error)
}

// SourceKind distinguishes how a file's spans were obtained.
type SourceKind int

const (
	// SourceGrammar means spans came from the language-aware provider.
	SourceGrammar SourceKind = iota
	// SourceSlidingWindow means spans came from fixed-size windows.
	SourceSlidingWindow
)

// SpanSource records the boundary strategy resolved for one file.
type SpanSource struct {
	Kind        SourceKind
	Language    string  // set for SourceGrammar
	WindowLines int     // set for SourceSlidingWindow
	Overlap     float64 // set for SourceSlidingWindow
}

// Chunk is a hashed, line-ranged unit of source text ready for indexing.
type Chunk struct {
	FilePath  string
	StartLine int
	EndLine   int
	Hash      [32]byte
	Content   string
}

// Hash returns the SHA-256 digest of data. It is the chunk identity used
// for change detection: identical bytes always hash identically regardless
// of surrounding context.
func Hash(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// Chunker splits file content into hashed chunks, preferring the span
// provider and falling back to sliding windows.
type Chunker struct {
	provider    SpanProvider
	windowLines int
	overlap     float64
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithWindow overrides the sliding-window size and overlap fraction.
func WithWindow(lines int, overlap float64) Option {
	return func(c *Chunker) {
		if lines > 0 {
			c.windowLines = lines
		}
		if overlap >= 0 && overlap < 1 {
			c.overlap = overlap
		}
	}
}

// New creates a Chunker. provider may be nil, in which case every file uses
// sliding windows.
func New(provider SpanProvider, opts ...Option) *Chunker {
	c := &Chunker{
		provider:    provider,
		windowLines: DefaultWindowLines,
		overlap:     DefaultWindowOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ChunkFile splits content into chunks and reports which span source was
// used. Binary content is rejected so callers can skip and report the file.
func (c *Chunker) ChunkFile(filePath string, content []byte) ([]Chunk, SpanSource, error) {
	if IsBinary(content) {
		return nil, SpanSource{}, fmt.Errorf("binary content in %s", filePath)
	}

	lines := splitLines(content)
	source := c.resolveSource(filePath)

	var spans []Span
	switch source.Kind {
	case SourceGrammar:
		var err error
		spans, err = c.provider.Spans(content, source.Language)
		if err != nil {
			// Parse failure at chunking time; windows still cover the file.
			source = c.windowSource()
			spans = slidingWindows(len(lines), c.windowLines, c.overlap)
		}
	default:
		spans = slidingWindows(len(lines), c.windowLines, c.overlap)
	}

	chunks := make([]Chunk, 0, len(spans))
	for _, span := range spans {
		chunk, ok := buildChunk(filePath, lines, span)
		if !ok {
			continue
		}
		chunks = append(chunks, chunk)
	}
	return chunks, source, nil
}

// resolveSource picks the span strategy for a file exactly once.
func (c *Chunker) resolveSource(filePath string) SpanSource {
	if c.provider == nil {
		return c.windowSource()
	}
	lang := DetectLanguage(filePath)
	if lang == "" {
		return c.windowSource()
	}
	// Probe with empty content to learn whether the grammar exists; the
	// full parse happens in ChunkFile.
	if _, err := c.provider.Spans(nil, lang); errors.Is(err, ErrUnsupportedLanguage) {
		return c.windowSource()
	}
	return SpanSource{Kind: SourceGrammar, Language: lang}
}

func (c *Chunker) windowSource() SpanSource {
	return SpanSource{Kind: SourceSlidingWindow, WindowLines: c.windowLines, Overlap: c.overlap}
}

// slidingWindows produces fixed-size windows covering every line of a file.
// Consecutive windows share overlap*window lines; the final window is
// clipped to the file end.
func slidingWindows(lineCount, window int, overlap float64) []Span {
	if lineCount <= 0 {
		return nil
	}
	if window <= 0 {
		window = DefaultWindowLines
	}
	step := window - int(float64(window)*overlap)
	if step < 1 {
		step = 1
	}

	var spans []Span
	for start := 1; start <= lineCount; start += step {
		end := start + window - 1
		if end > lineCount {
			end = lineCount
		}
		spans = append(spans, Span{StartLine: start, EndLine: end})
		if end == lineCount {
			break
		}
	}
	return spans
}

// buildChunk extracts the span's text and hashes it. Spans outside file
// bounds are clipped; fully out-of-range spans are dropped.
func buildChunk(filePath string, lines []string, span Span) (Chunk, bool) {
	if span.StartLine < 1 {
		span.StartLine = 1
	}
	if span.EndLine > len(lines) {
		span.EndLine = len(lines)
	}
	if span.StartLine > span.EndLine || span.StartLine > len(lines) {
		return Chunk{}, false
	}

	content := strings.Join(lines[span.StartLine-1:span.EndLine], "\n")
	return Chunk{
		FilePath:  filePath,
		StartLine: span.StartLine,
		EndLine:   span.EndLine,
		Hash:      Hash([]byte(content)),
		Content:   content,
	}, true
}

// IsBinary reports whether content looks like binary data (contains a NUL
// byte in its first KiB).
func IsBinary(content []byte) bool {
	probe := content
	if len(probe) > 1024 {
		probe = probe[:1024]
	}
	return bytes.IndexByte(probe, 0) >= 0
}

// DetectLanguage maps a file extension to a language hint for the span
// provider. An empty result means no known grammar.
func DetectLanguage(filePath string) string {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".go":
		return "go"
	case ".py":
		return "python"
	case ".js", ".jsx":
		return "javascript"
	case ".ts", ".tsx":
		return "typescript"
	case ".java":
		return "java"
	case ".rs":
		return "rust"
	case ".c", ".h":
		return "c"
	case ".cpp", ".cc", ".hpp":
		return "cpp"
	case ".rb":
		return "ruby"
	default:
		return ""
	}
}

// splitLines splits content on newlines without keeping terminators. A
// trailing newline does not produce a phantom empty last line.
func splitLines(content []byte) []string {
	s := strings.TrimSuffix(string(content), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

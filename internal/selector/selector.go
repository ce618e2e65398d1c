package selector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/dshills/diffcontext/internal/embedder"
	"github.com/dshills/diffcontext/internal/storage"
	"github.com/dshills/diffcontext/internal/vectorstore"
	"github.com/dshills/diffcontext/pkg/types"
)

const (
	// DefaultTier1Window is the proximity expansion in lines.
	DefaultTier1Window = 20

	// DefaultTierK is the semantic neighbor count per query.
	DefaultTierK = 3

	// DefaultTokenBudget bounds the serialized bundle size.
	DefaultTokenBudget = 8000

	// DefaultSearchTimeout bounds the Tier-2 embed + search calls.
	DefaultSearchTimeout = 5 * time.Second

	// tier01Share is the fraction of the budget reserved for direct and
	// proximity context; the remainder goes to semantic neighbors.
	tier01Share = 0.70
)

// FileSource supplies current file content for bundle serialization.
type FileSource interface {
	ReadFile(path string) ([]byte, error)
}

// DirSource reads files relative to a repository root.
type DirSource struct {
	Root string
}

func (d DirSource) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(filepath.Join(d.Root, filepath.FromSlash(path)))
}

// MapSource serves file content from an in-memory snapshot.
type MapSource map[string][]byte

func (m MapSource) ReadFile(path string) ([]byte, error) {
	content, ok := m[path]
	if !ok {
		return nil, fmt.Errorf("%s: file not in snapshot", path)
	}
	return content, nil
}

// Config contains tuning for context selection.
type Config struct {
	Tier1Window   int           // Proximity expansion in lines (default: 20)
	TierK         int           // Semantic neighbors per query (default: 3)
	TokenBudget   int           // Bundle size bound (default: 8000)
	Probes        int           // Vector search effort (default: store's own)
	SearchTimeout time.Duration // Tier-2 deadline (default: 5s)
}

// Selector executes the three-tier retrieval algorithm against one
// repository's store pair. It is read-only and safe for concurrent use,
// including while a reconcile or sweep is running.
type Selector struct {
	repoID   string
	store    storage.Store
	vectors  *vectorstore.Index
	embedder embedder.Embedder
	files    FileSource
	cfg      Config
}

// New creates a Selector. embedder may be nil, which disables Tier 2.
func New(repoID string, store storage.Store, vectors *vectorstore.Index, emb embedder.Embedder, files FileSource, cfg Config) *Selector {
	if cfg.Tier1Window <= 0 {
		cfg.Tier1Window = DefaultTier1Window
	}
	if cfg.TierK <= 0 {
		cfg.TierK = DefaultTierK
	}
	if cfg.TokenBudget <= 0 {
		cfg.TokenBudget = DefaultTokenBudget
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = DefaultSearchTimeout
	}
	return &Selector{
		repoID:   repoID,
		store:    store,
		vectors:  vectors,
		embedder: emb,
		files:    files,
		cfg:      cfg,
	}
}

// Select runs the three retrieval tiers for the given hunks and returns a
// deduplicated, token-budgeted bundle. prText is optional surrounding pull
// request text folded into the Tier-2 query. Missing data degrades the
// result (fewer or no semantic items); only store failure is an error.
func (s *Selector) Select(ctx context.Context, hunks []types.Hunk, prText string) (*types.ContextBundle, error) {
	for _, hunk := range hunks {
		if err := hunk.Validate(); err != nil {
			return nil, fmt.Errorf("invalid hunk for %q: %w", hunk.FilePath, err)
		}
	}

	bundle := &types.ContextBundle{}
	covered := coverage{}

	tier0, err := s.tierOverlap(ctx, hunks)
	if err != nil {
		return nil, err
	}
	tier1, err := s.tierProximity(ctx, hunks)
	if err != nil {
		return nil, err
	}

	budget := s.cfg.TokenBudget
	cap01 := int(float64(budget) * tier01Share)
	used := 0

	// Tier 0 is always fully referenced. If it alone overruns the total
	// budget, item content is trimmed but no reference is dropped.
	for _, item := range tier0 {
		if covered.contains(item) {
			continue
		}
		covered.add(item)

		cost := item.Tokens()
		if used+cost > budget {
			item.Content = trimToTokens(item.Content, budget-used)
			bundle.Truncated = true
			cost = item.Tokens()
		}
		used += cost
		bundle.Items = append(bundle.Items, item)
	}

	// Tier 1 competes with Tier 0 for the 70% share. The first item that
	// does not fit truncates the bundle, dropping the rest of this tier
	// and all of Tier 2.
	if !bundle.Truncated {
		for _, item := range tier1 {
			if covered.contains(item) {
				continue
			}
			if used+item.Tokens() > cap01 {
				bundle.Truncated = true
				break
			}
			covered.add(item)
			used += item.Tokens()
			bundle.Items = append(bundle.Items, item)
		}
	}

	if bundle.Truncated {
		return bundle, nil
	}

	for _, item := range s.tierSemantic(ctx, hunks, prText, covered) {
		if used+item.Tokens() > budget {
			bundle.Truncated = true
			break
		}
		covered.add(item)
		used += item.Tokens()
		bundle.Items = append(bundle.Items, item)
	}

	return bundle, nil
}

// coverage tracks included line ranges per file. An item whose range is
// fully contained in an already-included range of the same file is a
// duplicate: its text is already in the bundle.
type coverage map[string][][2]int

func (cv coverage) add(item types.ContextItem) {
	cv[item.FilePath] = append(cv[item.FilePath], [2]int{item.StartLine, item.EndLine})
}

func (cv coverage) contains(item types.ContextItem) bool {
	for _, r := range cv[item.FilePath] {
		if item.StartLine >= r[0] && item.EndLine <= r[1] {
			return true
		}
	}
	return false
}

// tierOverlap builds one item per hunk covering the exact changed range
// widened to its immediate chunk boundaries.
func (s *Selector) tierOverlap(ctx context.Context, hunks []types.Hunk) ([]types.ContextItem, error) {
	items := make([]types.ContextItem, 0, len(hunks))
	for _, hunk := range hunks {
		start, end := hunk.NewRange()

		chunks, err := s.store.Overlapping(ctx, s.repoID, hunk.FilePath, start, end, 0)
		if err != nil {
			return nil, fmt.Errorf("overlap query failed: %w", err)
		}
		for _, c := range chunks {
			if c.StartLine < start {
				start = c.StartLine
			}
			if c.EndLine > end {
				end = c.EndLine
			}
		}

		items = append(items, s.makeItem(hunk.FilePath, start, end, types.TierOverlap, 0))
	}
	return items, nil
}

// tierProximity returns chunks overlapping each hunk's window-expanded
// range, in hunk order then line order.
func (s *Selector) tierProximity(ctx context.Context, hunks []types.Hunk) ([]types.ContextItem, error) {
	var items []types.ContextItem
	for _, hunk := range hunks {
		start, end := hunk.NewRange()
		chunks, err := s.store.Overlapping(ctx, s.repoID, hunk.FilePath, start, end, s.cfg.Tier1Window)
		if err != nil {
			return nil, fmt.Errorf("proximity query failed: %w", err)
		}
		for _, c := range chunks {
			items = append(items, s.makeItem(c.FilePath, c.StartLine, c.EndLine, types.TierProximity, 0))
		}
	}
	return items, nil
}

// tierSemantic embeds the diff text and finds nearest stored neighbors.
// Every failure path degrades to zero items.
func (s *Selector) tierSemantic(ctx context.Context, hunks []types.Hunk, prText string, covered coverage) []types.ContextItem {
	if s.embedder == nil || s.vectors == nil || len(hunks) == 0 {
		return nil
	}

	query := s.queryText(hunks, prText)
	if query == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.SearchTimeout)
	defer cancel()

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		log.Debug().Err(err).Msg("semantic tier skipped: embedding failed")
		return nil
	}

	hits, err := s.vectors.Search(vec, s.cfg.TierK, s.cfg.Probes)
	if err != nil || len(hits) == 0 {
		return nil
	}

	ids := make([]int64, len(hits))
	scores := make(map[int64]float64, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
		scores[h.ID] = h.Score
	}

	chunks, err := s.store.ByVectorIDs(ctx, s.repoID, ids)
	if err != nil {
		log.Debug().Err(err).Msg("semantic tier skipped: resolve failed")
		return nil
	}

	var items []types.ContextItem
	for _, c := range chunks {
		// A hit swept between search and resolve is simply absent from
		// chunks; one present in an earlier tier is dropped here.
		item := s.makeItem(c.FilePath, c.StartLine, c.EndLine, types.TierSemantic, scores[*c.VectorID])
		if covered.contains(item) {
			continue
		}
		items = append(items, item)
	}

	// Descending score; ties broken by ascending vector id, which is the
	// order ByVectorIDs already returned.
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Score > items[j].Score
	})
	return items
}

// queryText concatenates the changed spans and PR text into the Tier-2
// embedding query.
func (s *Selector) queryText(hunks []types.Hunk, prText string) string {
	var b strings.Builder
	for _, hunk := range hunks {
		start, end := hunk.NewRange()
		excerpt := s.readLines(hunk.FilePath, start, end)
		if excerpt == "" {
			continue
		}
		fmt.Fprintf(&b, "%s:%d-%d\n%s\n", hunk.FilePath, start, end, excerpt)
	}
	if prText != "" {
		b.WriteString(prText)
	}
	return strings.TrimSpace(b.String())
}

// makeItem builds a context item, filling content from the file source.
// Unreadable files yield an item with empty content, keeping the location
// reference intact.
func (s *Selector) makeItem(path string, start, end int, tier types.Tier, score float64) types.ContextItem {
	return types.ContextItem{
		FilePath:  path,
		StartLine: start,
		EndLine:   end,
		Tier:      tier,
		Score:     score,
		Content:   s.readLines(path, start, end),
	}
}

// readLines returns the 1-based inclusive line range of a file, clipped to
// file bounds, or "" when the file cannot be read.
func (s *Selector) readLines(path string, start, end int) string {
	if s.files == nil {
		return ""
	}
	content, err := s.files.ReadFile(path)
	if err != nil {
		return ""
	}

	lines := strings.Split(strings.TrimSuffix(string(content), "\n"), "\n")
	if start < 1 {
		start = 1
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start > end || start > len(lines) {
		return ""
	}
	return strings.Join(lines[start-1:end], "\n")
}

// trimToTokens cuts content to approximately the given token allowance,
// backing off to a rune boundary so the result stays valid UTF-8.
func trimToTokens(content string, tokens int) string {
	if tokens <= 0 {
		return ""
	}
	cut := tokens * types.TokensPerChar
	if len(content) <= cut {
		return content
	}
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut]
}

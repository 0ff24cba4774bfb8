package answering

import (
	"sort"
	"unicode"

	"github.com/waqedi/platform/engine/chunking"
	"github.com/waqedi/platform/engine/retrieval"
)

// dedupeSimilarityFloor is the §4.7c near-duplicate threshold.
const dedupeSimilarityFloor = 0.95

// rerankConfig bounds context assembly (§4.7c).
type rerankConfig struct {
	TopK              int
	MaxChunksPerQuery int
	MaxContextTokens  int
}

// defaultRerankConfig returns the documented default context budget.
func defaultRerankConfig(topK int) rerankConfig {
	return rerankConfig{TopK: topK, MaxChunksPerQuery: 10, MaxContextTokens: 3000}
}

// assembledChunk is one chunk selected into the final context window,
// carrying the rank it earned after reranking (§4.7c).
type assembledChunk struct {
	chunk retrieval.RetrievedChunk
	rank  int
}

// assembleContext runs §4.7c: dedupe near-identical chunks, score by
// relevance+diversity, sort, then greedily select within the chunk-count
// and token budgets.
func assembleContext(chunks []retrieval.RetrievedChunk, cfg rerankConfig) []assembledChunk {
	deduped := dedupeSimilar(chunks)

	sort.SliceStable(deduped, func(i, j int) bool { return deduped[i].Score > deduped[j].Score })

	type scored struct {
		chunk retrieval.RetrievedChunk
		final float64
	}
	seenDocs := make(map[string]bool, len(deduped))
	scoredChunks := make([]scored, len(deduped))
	for i, c := range deduped {
		diversity := 1.0
		if seenDocs[c.DocumentID] {
			diversity = 0.7
		}
		seenDocs[c.DocumentID] = true
		final := 0.7*float64(c.Score) + 0.3*diversity
		scoredChunks[i] = scored{chunk: c, final: final}
	}

	sort.SliceStable(scoredChunks, func(i, j int) bool { return scoredChunks[i].final > scoredChunks[j].final })

	limit := cfg.TopK
	if cfg.MaxChunksPerQuery > 0 && cfg.MaxChunksPerQuery < limit {
		limit = cfg.MaxChunksPerQuery
	}

	selected := make([]assembledChunk, 0, limit)
	tokens := 0
	for _, sc := range scoredChunks {
		if limit > 0 && len(selected) >= limit {
			break
		}
		t := chunking.EstimatedTokens(sc.chunk.Text)
		if cfg.MaxContextTokens > 0 && tokens+t > cfg.MaxContextTokens && len(selected) > 0 {
			break
		}
		selected = append(selected, assembledChunk{chunk: sc.chunk, rank: len(selected) + 1})
		tokens += t
	}
	return selected
}

// dedupeSimilar drops chunks whose text is a near-duplicate (≥0.95
// similarity) of one already kept, preferring the higher-scoring copy by
// scanning in descending-score order first.
func dedupeSimilar(chunks []retrieval.RetrievedChunk) []retrieval.RetrievedChunk {
	ordered := make([]retrieval.RetrievedChunk, len(chunks))
	copy(ordered, chunks)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Score > ordered[j].Score })

	kept := make([]retrieval.RetrievedChunk, 0, len(ordered))
	for _, c := range ordered {
		isDup := false
		for _, k := range kept {
			if textSimilarity(c.Text, k.Text) >= dedupeSimilarityFloor {
				isDup = true
				break
			}
		}
		if !isDup {
			kept = append(kept, c)
		}
	}
	return kept
}

// textSimilarity is a Jaccard ratio over lowercased word sets. No
// text-similarity library appears anywhere in the example pack (see
// DESIGN.md), so this is a small, self-contained heuristic in the same
// spirit as pkg/langdetect's stopword-frequency detector.
func textSimilarity(a, b string) float64 {
	wa := wordSet(a)
	wb := wordSet(b)
	if len(wa) == 0 && len(wb) == 0 {
		return 1
	}
	inter := 0
	for w := range wa {
		if wb[w] {
			inter++
		}
	}
	union := len(wa) + len(wb) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	var current []rune
	flush := func() {
		if len(current) > 0 {
			set[string(current)] = true
			current = nil
		}
	}
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			current = append(current, unicode.ToLower(r))
		} else {
			flush()
		}
	}
	flush()
	return set
}

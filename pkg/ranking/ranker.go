// Package ranking implements the approximate strategy used by the resolver's
// last catalog layer. It is the only place in the pipeline allowed to guess.
package ranking

import (
	"math"
	"sort"
	"strings"

	"github.com/hbollon/go-edlib"

	"github.com/menkyo-prep/sign-engine/pkg/models"
)

// Scored pairs a candidate with its ranking score.
type Scored struct {
	Record *models.SignImageRecord
	Score  float64
}

// Ranker orders catalog candidates for a free-text query, best first.
// Candidates that do not resemble the query at all are omitted.
type Ranker interface {
	Rank(query string, category models.SignCategory, candidates []*models.SignImageRecord) []Scored
}

// Weights for the individual signals of TokenOverlapRanker.
const (
	overlapWeight     = 1.0
	nameWeight        = 0.5
	categoryBonus     = 0.1
	maxUsageBonus     = 0.1
	usageBonusPerLog  = 0.02
	minNameSimilarity = 0.85
)

// TokenOverlapRanker scores candidates by the fraction of query tokens found
// in the candidate's text, plus Jaro-Winkler similarity of the query to the
// candidate's names. Usage count and a matching category hint nudge the order.
type TokenOverlapRanker struct {
	tokenizer *Tokenizer
}

// NewTokenOverlapRanker creates a ranker sharing the given tokenizer.
func NewTokenOverlapRanker(t *Tokenizer) *TokenOverlapRanker {
	return &TokenOverlapRanker{tokenizer: t}
}

var _ Ranker = (*TokenOverlapRanker)(nil)

// Rank scores every eligible candidate and returns the survivors sorted by
// score, then usage count, then id.
func (r *TokenOverlapRanker) Rank(query string, category models.SignCategory, candidates []*models.SignImageRecord) []Scored {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" || len(candidates) == 0 {
		return nil
	}

	queryTokens := r.tokenizer.Tokenize(query)

	var scored []Scored
	for _, c := range candidates {
		if !c.IsEligible() {
			continue
		}

		overlap := r.overlap(queryTokens, c)
		name := nameSimilarity(query, c)
		if overlap == 0 && name < minNameSimilarity {
			continue
		}

		score := overlapWeight*overlap + nameWeight*name + usageBonus(c.UsageCount)
		if category != "" && c.Category == category {
			score += categoryBonus
		}
		scored = append(scored, Scored{Record: c, Score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Record.UsageCount != b.Record.UsageCount {
			return a.Record.UsageCount > b.Record.UsageCount
		}
		return a.Record.ID.String() < b.Record.ID.String()
	})

	return scored
}

// overlap is the fraction of query tokens present in the candidate's text.
func (r *TokenOverlapRanker) overlap(queryTokens map[string]struct{}, c *models.SignImageRecord) float64 {
	if len(queryTokens) == 0 {
		return 0
	}

	text := strings.Join(append([]string{c.NameEn, c.NameJp, c.MeaningText}, c.FileNames()...), " ")
	candidateTokens := r.tokenizer.Tokenize(text)

	hits := 0
	for tok := range queryTokens {
		if _, ok := candidateTokens[tok]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(queryTokens))
}

func nameSimilarity(query string, c *models.SignImageRecord) float64 {
	var best float32
	for _, name := range []string{c.NameEn, c.NameJp} {
		if name == "" {
			continue
		}
		if s := edlib.JaroWinklerSimilarity(query, strings.ToLower(name)); s > best {
			best = s
		}
	}
	return float64(best)
}

func usageBonus(count int64) float64 {
	if count <= 0 {
		return 0
	}
	return math.Min(maxUsageBonus, usageBonusPerLog*math.Log1p(float64(count)))
}

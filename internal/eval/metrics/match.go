// Package metrics scores extracted menu items against a labelled transcription.
package metrics

import (
	"regexp"
	"sort"
	"strings"

	"github.com/bistro-cms/menuimport/internal/eval/dataset"
	"github.com/bistro-cms/menuimport/internal/models"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

// MatchThreshold is the lowest name score counted as the same item
const MatchThreshold = 0.7

// NameMatch pairs an expected item with the extracted item it was matched to
type NameMatch struct {
	Expected string
	Actual   string
	Score    float64
	Method   string // exact, substring, fuzzy_high, fuzzy_medium, no_match
	// PriceChecked is set when the transcription has a price to compare
	PriceChecked bool
	PriceCorrect bool
}

// MenuComparison is the outcome of scoring one record
type MenuComparison struct {
	Matches        []NameMatch
	Missing        []string // expected names nothing matched
	Extra          []string // extracted names matching nothing
	ExpectedCount  int
	ExtractedCount int
	PriceCompared  int
	PriceCorrect   int
	Calibration    []Bucket
}

// Precision is the share of extracted items that match an expected one
func (c *MenuComparison) Precision() float64 {
	return ratio(len(c.Matches), c.ExtractedCount)
}

// Recall is the share of expected items that were extracted
func (c *MenuComparison) Recall() float64 {
	return ratio(len(c.Matches), c.ExpectedCount)
}

func (c *MenuComparison) F1() float64 {
	return f1(c.Precision(), c.Recall())
}

// PriceAccuracy is the share of matched, priced items whose price was read correctly
func (c *MenuComparison) PriceAccuracy() float64 {
	return ratio(c.PriceCorrect, c.PriceCompared)
}

type pair struct {
	exp, act int
	match    NameMatch
}

// CompareMenu matches extracted candidates to the expected items one to one,
// taking the highest scoring pairs first.
func CompareMenu(expected []dataset.ExpectedItem, extracted []models.CandidateItem) *MenuComparison {
	cmp := &MenuComparison{
		ExpectedCount:  len(expected),
		ExtractedCount: len(extracted),
	}

	var pairs []pair
	for i, e := range expected {
		for j, c := range extracted {
			m := compareName(e.Name, c.Name)
			if m.Score >= MatchThreshold {
				pairs = append(pairs, pair{exp: i, act: j, match: m})
			}
		}
	}
	sort.SliceStable(pairs, func(a, b int) bool {
		return pairs[a].match.Score > pairs[b].match.Score
	})

	usedExp := make([]bool, len(expected))
	usedAct := make([]bool, len(extracted))
	var chosen []pair
	for _, p := range pairs {
		if usedExp[p.exp] || usedAct[p.act] {
			continue
		}
		usedExp[p.exp], usedAct[p.act] = true, true
		chosen = append(chosen, p)
	}
	sort.Slice(chosen, func(a, b int) bool { return chosen[a].exp < chosen[b].exp })

	for _, p := range chosen {
		m := p.match
		if want := expected[p.exp].PriceValue(); want != nil {
			m.PriceChecked = true
			got := extracted[p.act].Price
			m.PriceCorrect = got != nil && got.Equal(*want)
			cmp.PriceCompared++
			if m.PriceCorrect {
				cmp.PriceCorrect++
			}
		}
		cmp.Matches = append(cmp.Matches, m)
	}

	for i, e := range expected {
		if !usedExp[i] {
			cmp.Missing = append(cmp.Missing, e.Name)
		}
	}
	for j, c := range extracted {
		if !usedAct[j] {
			cmp.Extra = append(cmp.Extra, c.Name)
		}
	}
	cmp.Calibration = calibrate(extracted, usedAct)
	return cmp
}

// compareName scores two item names between 0 and 1
func compareName(expected, actual string) NameMatch {
	match := NameMatch{Expected: expected, Actual: actual}

	expNorm := normalizeForComparison(expected)
	actNorm := normalizeForComparison(actual)
	if expNorm == "" || actNorm == "" {
		match.Method = "no_match"
		return match
	}

	if expNorm == actNorm {
		match.Score = 1.0
		match.Method = "exact"
		return match
	}

	// "Caesar" read as "Caesar Salad", or the reverse
	if strings.Contains(actNorm, expNorm) || strings.Contains(expNorm, actNorm) {
		match.Score = 0.8
		match.Method = "substring"
		return match
	}

	similarity := calculateSimilarity(expNorm, actNorm)
	match.Score = similarity
	switch {
	case similarity > 0.7:
		match.Method = "fuzzy_high"
	case similarity > 0.4:
		match.Method = "fuzzy_medium"
	default:
		match.Method = "no_match"
	}
	return match
}

var punctuation = regexp.MustCompile(`[^\p{L}\p{N}\s]`)

func normalizeForComparison(text string) string {
	text = strings.ToLower(text)
	text = punctuation.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(text), " ")
}

// calculateSimilarity converts edit distance into a 0..1 ratio
func calculateSimilarity(s1, s2 string) float64 {
	if s1 == s2 {
		return 1.0
	}
	r1, r2 := []rune(s1), []rune(s2)
	maxLen := max(len(r1), len(r2))
	if len(r1) == 0 || len(r2) == 0 {
		return 0.0
	}
	distance := fuzzy.LevenshteinDistance(s1, s2)
	return 1.0 - float64(distance)/float64(maxLen)
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

func f1(p, r float64) float64 {
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

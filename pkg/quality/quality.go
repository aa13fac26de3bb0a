// Package quality implements the deterministic transcript quality filter. The
// assessment is a pure function of the text and the configured thresholds; no
// I/O, no randomness.
package quality

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/contentlens/contentlens/pkg/config"
)

// Assessment is the quality verdict for one transcript.
type Assessment struct {
	WordCount            int     `json:"word_count"`
	SentenceCount        int     `json:"sentence_count"`
	AvgSentenceLength    float64 `json:"avg_sentence_length"`
	CoherenceScore       float64 `json:"coherence_score"`
	TopicClarityScore    float64 `json:"topic_clarity_score"`
	LanguageQualityScore float64 `json:"language_quality_score"`
	OverallScore         float64 `json:"overall_score"`
	ShouldProcessFully   bool    `json:"should_process_fully"`
	BypassReason         string  `json:"bypass_reason,omitempty"`
	MetricsPassed        int     `json:"metrics_passed"`
}

// Overall score weights and normalization ceilings.
const (
	weightWordCount     = 0.25
	weightSentenceCount = 0.15
	weightCoherence     = 0.25
	weightTopicClarity  = 0.20
	weightLanguage      = 0.15

	wordCountCeiling     = 2000
	sentenceCountCeiling = 40
)

// Sentences of this length range count toward language quality.
const (
	minGoodSentenceLen = 5
	maxGoodSentenceLen = 40
)

// abbreviations whose trailing period does not end a sentence.
var abbreviations = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true,
	"sr": true, "jr": true, "st": true, "no": true, "vs": true,
	"etc": true, "inc": true, "ltd": true, "co": true,
	"e.g": true, "i.e": true, "a.m": true, "p.m": true, "u.s": true,
}

// stopwords excluded from topic-clarity content words.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "had": true,
	"her": true, "was": true, "one": true, "our": true, "out": true,
	"has": true, "have": true, "this": true, "that": true, "with": true,
	"they": true, "them": true, "then": true, "than": true, "its": true,
	"will": true, "would": true, "there": true, "their": true, "what": true,
	"which": true, "when": true, "where": true, "from": true, "been": true,
	"were": true, "said": true, "into": true, "about": true, "your": true,
	"just": true, "like": true, "also": true, "very": true, "some": true,
	"more": true, "most": true, "over": true, "such": true, "only": true,
}

// Assess scores a transcript against the configured thresholds.
func Assess(text string, cfg config.QualityConfig) Assessment {
	sentences := SplitSentences(text)
	words := splitWords(text)

	a := Assessment{
		WordCount:     len(words),
		SentenceCount: len(sentences),
	}
	a.AvgSentenceLength = float64(a.WordCount) / math.Max(1, float64(a.SentenceCount))

	sentenceLens := make([]float64, len(sentences))
	for i, s := range sentences {
		sentenceLens[i] = float64(len(splitWords(s)))
	}

	a.CoherenceScore = coherence(words, sentenceLens)
	a.TopicClarityScore = topicClarity(words)
	a.LanguageQualityScore = languageQuality(sentenceLens)

	a.OverallScore = clamp01(
		weightWordCount*clamp01(float64(a.WordCount)/wordCountCeiling) +
			weightSentenceCount*clamp01(float64(a.SentenceCount)/sentenceCountCeiling) +
			weightCoherence*a.CoherenceScore +
			weightTopicClarity*a.TopicClarityScore +
			weightLanguage*a.LanguageQualityScore)

	var failed []string
	if a.WordCount >= cfg.MinWordCount {
		a.MetricsPassed++
	} else {
		failed = append(failed, fmt.Sprintf("words (%d<%d)", a.WordCount, cfg.MinWordCount))
	}
	if a.SentenceCount >= cfg.MinSentenceCount {
		a.MetricsPassed++
	} else {
		failed = append(failed, fmt.Sprintf("sentences (%d<%d)", a.SentenceCount, cfg.MinSentenceCount))
	}
	if a.CoherenceScore >= cfg.MinCoherence {
		a.MetricsPassed++
	} else {
		failed = append(failed, fmt.Sprintf("coherence (%.2f<%.2f)", a.CoherenceScore, cfg.MinCoherence))
	}
	if a.OverallScore >= cfg.MinOverall {
		a.MetricsPassed++
	} else {
		failed = append(failed, fmt.Sprintf("overall (%.2f<%.2f)", a.OverallScore, cfg.MinOverall))
	}

	a.ShouldProcessFully = a.MetricsPassed >= 3
	if !a.ShouldProcessFully {
		a.BypassReason = strings.Join(failed, ", ")
	}
	return a
}

// coherence blends lexical diversity with sentence-length consistency, 0.5
// each, clipped to [0,1].
func coherence(words []string, sentenceLens []float64) float64 {
	if len(words) == 0 {
		return 0
	}

	unique := make(map[string]bool, len(words))
	for _, w := range words {
		unique[strings.ToLower(w)] = true
	}
	diversity := float64(len(unique)) / float64(len(words))

	consistency := 1.0
	if mean := meanOf(sentenceLens); mean > 0 {
		consistency = 1 - clamp01(stdevOf(sentenceLens, mean)/mean)
	}

	return clamp01(0.5*diversity + 0.5*consistency)
}

// topicClarity is the frequency mass of the five most common content words
// relative to all content-word mass. Focused transcripts concentrate mass in
// few terms.
func topicClarity(words []string) float64 {
	freq := make(map[string]int)
	total := 0
	for _, w := range words {
		w = strings.ToLower(w)
		if len(w) <= 2 || stopwords[w] {
			continue
		}
		freq[w]++
		total++
	}
	if total == 0 {
		return 0
	}

	counts := make([]int, 0, len(freq))
	for _, n := range freq {
		counts = append(counts, n)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(counts)))

	top := 0
	for i := 0; i < len(counts) && i < 5; i++ {
		top += counts[i]
	}
	return clamp01(float64(top) / float64(total))
}

// languageQuality is the fraction of sentences with a well-formed length.
func languageQuality(sentenceLens []float64) float64 {
	if len(sentenceLens) == 0 {
		return 0
	}
	good := 0
	for _, l := range sentenceLens {
		if l >= minGoodSentenceLen && l <= maxGoodSentenceLen {
			good++
		}
	}
	return float64(good) / float64(len(sentenceLens))
}

// SplitSentences tokenizes text on .!? boundaries, treating known
// abbreviations' periods as non-terminal.
func SplitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		current.WriteRune(r)

		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if r == '.' && isAbbreviation(current.String()) {
			continue
		}
		// Consume trailing terminators ("...", "?!").
		for i+1 < len(runes) && (runes[i+1] == '.' || runes[i+1] == '!' || runes[i+1] == '?') {
			i++
			current.WriteRune(runes[i])
		}
		if s := strings.TrimSpace(current.String()); s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}

	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// isAbbreviation reports whether the text ends in a known abbreviation plus
// its period.
func isAbbreviation(text string) bool {
	trimmed := strings.TrimSuffix(text, ".")
	idx := strings.LastIndexFunc(trimmed, unicode.IsSpace)
	last := strings.ToLower(trimmed[idx+1:])
	if abbreviations[last] {
		return true
	}
	// Single letters ("J. Smith") never terminate.
	return len(last) == 1 && unicode.IsLetter([]rune(last)[0])
}

// splitWords splits on whitespace and strips surrounding punctuation.
func splitWords(text string) []string {
	fields := strings.Fields(text)
	words := fields[:0:0]
	for _, f := range fields {
		w := strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if w != "" {
			words = append(words, w)
		}
	}
	return words
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func meanOf(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func stdevOf(vals []float64, mean float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var ss float64
	for _, v := range vals {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(vals)))
}

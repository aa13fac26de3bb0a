package quality

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contentlens/contentlens/pkg/config"
)

func defaultThresholds() config.QualityConfig {
	return config.DefaultSettings().Quality
}

func TestLowQualityTranscriptBypasses(t *testing.T) {
	a := Assess("Um. Yeah. Not sure. Ok.", defaultThresholds())

	assert.Equal(t, 4, a.SentenceCount)
	assert.False(t, a.ShouldProcessFully)
	assert.Contains(t, a.BypassReason, "words")
	assert.Contains(t, a.BypassReason, "sentences")
	assert.Less(t, a.MetricsPassed, 3)
}

func TestRichTranscriptPasses(t *testing.T) {
	// ~1100 words across 80 even sentences with varied vocabulary, so both
	// lexical diversity and sentence-length consistency score well.
	var b strings.Builder
	for i := 0; i < 80; i++ {
		fmt.Fprintf(&b,
			"Speaker alpha%d described concept%d and framework%d while reviewing module%d with detail%d and example%d today. ",
			i, i, i, i, i, i)
	}

	a := Assess(b.String(), defaultThresholds())
	assert.GreaterOrEqual(t, a.WordCount, 500)
	assert.GreaterOrEqual(t, a.SentenceCount, 10)
	assert.GreaterOrEqual(t, a.CoherenceScore, 0.6)
	assert.True(t, a.ShouldProcessFully)
	assert.Empty(t, a.BypassReason)
}

func TestAssessmentIsDeterministic(t *testing.T) {
	text := "The quick brown fox jumps over the lazy dog. Dr. Smith disagreed strongly. " +
		"Nevertheless the experiment continued for several weeks without interruption."
	first := Assess(text, defaultThresholds())
	for i := 0; i < 3; i++ {
		assert.Equal(t, first, Assess(text, defaultThresholds()))
	}
}

func TestScoresStayInRange(t *testing.T) {
	inputs := []string{
		"",
		"word",
		"One sentence here.",
		strings.Repeat("repeat repeat repeat. ", 500),
		"!!! ??? ...",
		strings.Repeat("a b c d e f g h i j k l m n o p q r s t u v w x y z. ", 100),
	}
	for _, text := range inputs {
		a := Assess(text, defaultThresholds())
		for name, score := range map[string]float64{
			"coherence": a.CoherenceScore,
			"topic":     a.TopicClarityScore,
			"language":  a.LanguageQualityScore,
			"overall":   a.OverallScore,
		} {
			assert.GreaterOrEqual(t, score, 0.0, "%s for %q", name, text)
			assert.LessOrEqual(t, score, 1.0, "%s for %q", name, text)
		}
	}
}

func TestSentenceSplittingHonoursAbbreviations(t *testing.T) {
	sentences := SplitSentences("Dr. Smith met Mr. Jones at 9 a.m. sharp. They talked for hours. It went well!")
	require.Len(t, sentences, 3)
	assert.Contains(t, sentences[0], "Dr. Smith")
	assert.Contains(t, sentences[0], "sharp.")
}

func TestSentenceSplittingCollapsesRepeatTerminators(t *testing.T) {
	sentences := SplitSentences("Really?! I had no idea... That changes everything.")
	assert.Len(t, sentences, 3)
}

func TestEmptyTranscript(t *testing.T) {
	a := Assess("", defaultThresholds())
	assert.Zero(t, a.WordCount)
	assert.Zero(t, a.SentenceCount)
	assert.False(t, a.ShouldProcessFully)
	assert.NotEmpty(t, a.BypassReason)
}

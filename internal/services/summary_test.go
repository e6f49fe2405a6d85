package services

import (
	"context"
	"strings"
	"testing"

	"github.com/bobarin/docucast/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSummarizer struct {
	name       string
	configured bool
	content    string
	err        error
	styles     []string
}

func (f *fakeSummarizer) Name() string     { return f.name }
func (f *fakeSummarizer) Configured() bool { return f.configured }

func (f *fakeSummarizer) Summarize(ctx context.Context, text, style string) (string, error) {
	f.styles = append(f.styles, style)
	return f.content, f.err
}

const article = "Go is a programming language. It was designed at Google. It has goroutines! " +
	"Channels connect them. Interfaces are implicit. The toolchain is fast. Modules manage dependencies. " +
	"Tests live beside the code. Errors are values. Formatting is automatic."

func TestSummaryChainFirstConfiguredWins(t *testing.T) {
	skipped := &fakeSummarizer{name: "gemini", configured: false}
	broken := &fakeSummarizer{name: "openai", configured: true, err: apperr.New(apperr.KindProviderUnavailable, "no quota")}
	working := &fakeSummarizer{name: "other", configured: true, content: "A short summary."}

	content, provider, err := NewSummaryChain(skipped, broken, working).Summarize(context.Background(), article, "unknown-style")
	require.NoError(t, err)
	assert.Equal(t, "A short summary.", content)
	assert.Equal(t, "other", provider)
	assert.Empty(t, skipped.styles)
	assert.Equal(t, []string{StylePodcast}, broken.styles)
}

func TestSummaryChainFallsBackToExtractive(t *testing.T) {
	failing := &fakeSummarizer{name: "gemini", configured: true, err: apperr.New(apperr.KindProviderFailure, "500")}

	content, provider, err := NewSummaryChain(failing).Summarize(context.Background(), article, StyleBrief)
	require.NoError(t, err)
	assert.Equal(t, ExtractiveProvider, provider)
	assert.Equal(t, "Go is a programming language. It was designed at Google. It has goroutines!", content)
}

func TestSummaryChainRejectsEmptyText(t *testing.T) {
	_, _, err := NewSummaryChain().Summarize(context.Background(), "  \n ", StyleBrief)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestExtractiveSummaryLengths(t *testing.T) {
	count := func(s string) int { return len(splitSentences(s)) }

	assert.Equal(t, 3, count(ExtractiveSummary(article, StyleBrief)))
	assert.Equal(t, 8, count(ExtractiveSummary(article, StylePodcast)))
	assert.Equal(t, 10, count(ExtractiveSummary(article, StyleDetailed)))
	assert.False(t, strings.Contains(ExtractiveSummary("one\n\ntwo.", StyleBrief), "\n"))
}

package services

import (
	"context"
	"strings"

	"github.com/bobarin/docucast/internal/apperr"
	log "github.com/sirupsen/logrus"
)

// Summary styles.
const (
	StyleBrief    = "brief"
	StyleDetailed = "detailed"
	StylePodcast  = "podcast"
)

// ExtractiveProvider names summaries built without a model.
const ExtractiveProvider = "extractive"

// Summarizer condenses document text.
type Summarizer interface {
	Name() string
	Configured() bool
	Summarize(ctx context.Context, text, style string) (string, error)
}

// DurationProbe measures the length of an audio sample in seconds.
type DurationProbe interface {
	Configured() bool
	Duration(ctx context.Context, fileName string, data []byte) (float64, error)
}

// SummaryChain tries each configured summarizer in order and ends with an
// extractive summary, so Summarize always produces content for non-empty text.
type SummaryChain struct {
	summarizers []Summarizer
}

func NewSummaryChain(summarizers ...Summarizer) *SummaryChain {
	return &SummaryChain{summarizers: summarizers}
}

// Summarize returns the summary and the name of the summarizer that produced it.
func (c *SummaryChain) Summarize(ctx context.Context, text, style string) (string, string, error) {
	if strings.TrimSpace(text) == "" {
		return "", "", apperr.Validation("document has no text to summarize")
	}
	style = NormalizeStyle(style)

	for _, s := range c.summarizers {
		if s == nil || !s.Configured() {
			continue
		}
		content, err := s.Summarize(ctx, text, style)
		if err == nil {
			return content, s.Name(), nil
		}
		if apperr.KindOf(err) == apperr.KindProviderUnavailable {
			log.Infof("[Summary] %s unavailable, trying next: %v", s.Name(), err)
		} else {
			log.Errorf("[Summary] %s failed, trying next: %v", s.Name(), err)
		}
	}

	return ExtractiveSummary(text, style), ExtractiveProvider, nil
}

// NormalizeStyle maps unknown styles to the podcast style.
func NormalizeStyle(style string) string {
	switch style {
	case StyleBrief, StyleDetailed, StylePodcast:
		return style
	}
	return StylePodcast
}

// ExtractiveSummary keeps the leading sentences of the text: 3 for brief, 12
// for detailed and 8 for the podcast style.
func ExtractiveSummary(text, style string) string {
	limit := 8
	switch style {
	case StyleBrief:
		limit = 3
	case StyleDetailed:
		limit = 12
	}

	sentences := splitSentences(strings.Join(strings.Fields(text), " "))
	if len(sentences) > limit {
		sentences = sentences[:limit]
	}
	return strings.Join(sentences, " ")
}

func summaryInstructions(style string) string {
	switch style {
	case StyleBrief:
		return "Summarize the document in one short paragraph of plain prose. Keep only the central ideas."
	case StyleDetailed:
		return "Write a detailed summary of the document in plain prose, covering each major section in order."
	default:
		return "Rewrite the document as a script for a single narrator podcast episode. Use plain spoken prose without headings, lists or stage directions, and open with a one sentence introduction of the topic."
	}
}

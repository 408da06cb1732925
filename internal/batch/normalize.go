package batch

import (
	"context"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/rotisserie/eris"

	"github.com/libroscan/catalog-cli/internal/resilience"
	"github.com/libroscan/catalog-cli/pkg/anthropic"
)

// HeuristicNormalizer infers a series name by stripping volume markers from a
// title: trailing numbers, "Vol. N" suffixes, Korean volume counters, and
// trailing bracketed segments. A title that loses nothing has no inferable
// series.
type HeuristicNormalizer struct{}

var volumeMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\s*vol(?:ume)?\.?\s*\d+\s*$`),
	regexp.MustCompile(`\s*제?\s*\d+\s*권\s*$`),
	regexp.MustCompile(`\s*[(\[][^()\[\]]*[)\]]\s*$`),
	regexp.MustCompile(`\s*[-:.]?\s*\d+\s*$`),
}

// SeriesName strips volume markers from the title. It returns "" when no
// marker was found, since a bare title gives no evidence of a series.
func (HeuristicNormalizer) SeriesName(_ context.Context, title string) (string, error) {
	name := strings.TrimSpace(title)
	stripped := false
	for changed := true; changed; {
		changed = false
		for _, re := range volumeMarkers {
			if next := re.ReplaceAllString(name, ""); next != name {
				name = strings.TrimSpace(next)
				stripped = true
				changed = true
			}
		}
	}
	if !stripped || name == "" {
		return "", nil
	}
	return name, nil
}

const seriesPrompt = `You are a book catalog assistant. Given a book title, ` +
	`reply with the series name the book belongs to, with volume numbers and ` +
	`subtitle decorations removed. Reply with the series name only, no ` +
	`explanation. If the title does not look like part of a series, reply ` +
	`with the single word NONE.`

// ModelNormalizer infers series names with a language model, for titles the
// heuristics cannot handle (renamed volumes, irregular numbering). Token
// usage is accumulated across calls so a run can report its API spend.
type ModelNormalizer struct {
	client anthropic.Client
	model  string
	retry  resilience.Config

	inputTokens  atomic.Int64
	outputTokens atomic.Int64
}

// NewModelNormalizer creates a ModelNormalizer using the given model id.
func NewModelNormalizer(client anthropic.Client, model string) *ModelNormalizer {
	retry := resilience.DefaultConfig()
	retry.OnRetry = resilience.Logger("anthropic", "series_name")
	return &ModelNormalizer{client: client, model: model, retry: retry}
}

// Usage reports the accumulated input and output token counts.
func (n *ModelNormalizer) Usage() anthropic.TokenUsage {
	return anthropic.TokenUsage{
		InputTokens:  n.inputTokens.Load(),
		OutputTokens: n.outputTokens.Load(),
	}
}

func (n *ModelNormalizer) SeriesName(ctx context.Context, title string) (string, error) {
	resp, err := resilience.Do(ctx, n.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return n.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     n.model,
			MaxTokens: 128,
			System:    []anthropic.SystemBlock{{Text: seriesPrompt}},
			Messages:  []anthropic.Message{{Role: "user", Content: title}},
		})
	})
	if err != nil {
		return "", eris.Wrap(err, "batch: normalize title")
	}
	n.inputTokens.Add(resp.Usage.InputTokens)
	n.outputTokens.Add(resp.Usage.OutputTokens)

	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	name := strings.TrimSpace(out.String())
	if name == "" || strings.EqualFold(name, "NONE") {
		return "", nil
	}
	return name, nil
}

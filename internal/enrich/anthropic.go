package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/vitae-dev/vitae/internal/record"
)

const systemPrompt = `You refine entries in a professional history. Given one entry,
return a JSON object with exactly these keys:
  "description": a refined one-to-three sentence description (string),
  "tags": general topic labels (array of strings),
  "skills": capability labels such as "Leadership" or "API Design" (array of strings),
  "technologies": concrete technology names such as "Go" or "PostgreSQL" (array of strings).
Keep the description factual; never invent accomplishments. Suggest only
labels clearly supported by the entry. Respond with the JSON object only.`

// AnthropicEnricher refines records through the Anthropic Messages API.
type AnthropicEnricher struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	logger    *log.Logger
}

// NewAnthropic builds an enricher for the given model. maxTokens <= 0
// falls back to a sane default.
func NewAnthropic(apiKey, model string, maxTokens int, logger *log.Logger) *AnthropicEnricher {
	if logger == nil {
		logger = log.New(os.Stderr, "[enrich] ", log.LstdFlags)
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &AnthropicEnricher{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: int64(maxTokens),
		logger:    logger,
	}
}

// Enrich sends one record to the model and parses its suggestions.
func (e *AnthropicEnricher) Enrich(ctx context.Context, rec *record.Record) (*Result, error) {
	msg, err := e.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(e.model),
		MaxTokens: e.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildPrompt(rec))),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("messages request: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	res, err := parseResult(text.String())
	if err != nil {
		return nil, err
	}
	res.Model = e.model
	return res, nil
}

func buildPrompt(rec *record.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\nKind: %s", rec.Title, rec.Flavor)
	if rec.Category != "" {
		fmt.Fprintf(&b, " (%s)", rec.Category)
	}
	if rec.Organization != "" {
		fmt.Fprintf(&b, "\nOrganization: %s", rec.Organization)
	}
	if rec.StartDate != "" || rec.EndDate != "" {
		fmt.Fprintf(&b, "\nPeriod: %s to %s", rec.StartDate, rec.EndDate)
	}
	if rec.Description != "" {
		fmt.Fprintf(&b, "\nCurrent description: %s", rec.Description)
	}
	if labels := append(append(append([]string{}, rec.Tags...), rec.Skills...), rec.Technologies...); len(labels) > 0 {
		fmt.Fprintf(&b, "\nExisting labels: %s", strings.Join(labels, ", "))
	}
	return b.String()
}

// parseResult extracts the JSON object from a model reply, tolerating
// markdown code fences around it.
func parseResult(text string) (*Result, error) {
	text = strings.TrimSpace(text)
	if i := strings.Index(text, "{"); i >= 0 {
		if j := strings.LastIndex(text, "}"); j > i {
			text = text[i : j+1]
		}
	}
	var res Result
	if err := json.Unmarshal([]byte(text), &res); err != nil {
		return nil, fmt.Errorf("parse enrichment reply: %w", err)
	}
	return &res, nil
}

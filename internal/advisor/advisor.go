package advisor

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"pact-verifier/internal/logger"
	"pact-verifier/internal/types"
)

// Client produces a remediation hint for one failing interaction.
type Client interface {
	Suggest(ctx context.Context, interaction *types.Interaction, violations []types.Violation) (string, error)
}

// Annotate asks client for a suggestion for each interaction with at least
// one error and attaches the answers to result. At most limit interactions are
// sent; limit <= 0 means no limit. Failed calls are logged and skipped, they
// never change the outcome of the run.
func Annotate(ctx context.Context, client Client, result *types.VerificationResult, interactions []types.Interaction, limit int, log logrus.FieldLogger) {
	byIndex := make(map[int][]types.Violation)
	var order []int
	for _, v := range result.Violations {
		if v.Severity != types.SeverityError {
			continue
		}
		if _, seen := byIndex[v.InteractionIndex]; !seen {
			order = append(order, v.InteractionIndex)
		}
		byIndex[v.InteractionIndex] = append(byIndex[v.InteractionIndex], v)
	}

	lookup := make(map[int]*types.Interaction, len(interactions))
	for i := range interactions {
		lookup[interactions[i].Index] = &interactions[i]
	}

	sent := 0
	for _, idx := range order {
		if limit > 0 && sent >= limit {
			log.WithField("skipped", len(order)-sent).Info("advisor suggestion limit reached")
			break
		}
		if ctx.Err() != nil {
			return
		}
		interaction, ok := lookup[idx]
		if !ok {
			continue
		}
		sent++

		text, err := client.Suggest(ctx, interaction, byIndex[idx])
		logger.LogAdvisorCall(log, "suggest", interaction.Location(), text, err)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		result.Suggestions = append(result.Suggestions, types.Suggestion{
			InteractionIndex: idx,
			Text:             text,
		})
	}
}

// BuildPrompt describes an interaction and its violations for the model.
func BuildPrompt(interaction *types.Interaction, violations []types.Violation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A consumer contract interaction failed verification against the provider's OpenAPI document.\n\n")
	fmt.Fprintf(&b, "Interaction %q (%s)\n", interaction.Description, interaction.Location())
	if interaction.ProviderState != "" {
		fmt.Fprintf(&b, "Provider state: %s\n", interaction.ProviderState)
	}
	fmt.Fprintf(&b, "Request: %s %s\n", interaction.Request.Method, interaction.Request.Path)
	fmt.Fprintf(&b, "Expected response status: %d\n\n", interaction.Response.Status)
	b.WriteString("Violations:\n")
	for _, v := range violations {
		fmt.Fprintf(&b, "- [%s] %s", v.Code, v.Message)
		if v.SpecLocation != "" {
			fmt.Fprintf(&b, " (spec: %s)", v.SpecLocation)
		}
		b.WriteString("\n")
	}
	b.WriteString("\nIn two or three sentences, say whether the consumer contract or the provider document should change and how.")
	return b.String()
}

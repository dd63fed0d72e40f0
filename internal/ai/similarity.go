package ai

import (
	"context"
	"fmt"
	"strings"
)

// NewTask is the minimal projection of a task being checked for similarity.
type NewTask struct {
	Name        string
	Description string
}

// Candidate is the minimal projection of a canonical task passed to the
// oracle. Never persisted.
type Candidate struct {
	ID          string
	Name        string
	Description string
}

// Verdict is the oracle's judgment for one comparison: whether the new task
// matches any enumerated candidate, which one, and how confidently.
type Verdict struct {
	MatchFound             bool    `json:"matchFound"`
	MatchedCanonicalTaskID string  `json:"matchedCanonicalTaskId,omitempty"`
	Confidence             float64 `json:"confidence"`
	Reasoning              string  `json:"reasoning,omitempty"`
}

const similaritySystemInstruction = `You are a task similarity analyzer. Determine if a new task matches any existing canonical tasks.

Return JSON with this structure:
{
  "matchFound": true/false,
  "matchedCanonicalTaskId": "id or null",
  "confidence": 0.0-1.0,
  "reasoning": "Brief explanation"
}

Confidence scale:
- 0.9-1.0: Very high (same activity, different wording)
- 0.75-0.89: High (similar activity)
- 0.5-0.74: Medium (related but different)
- 0.0-0.49: Low (different activities)

IMPORTANT: Respond with ONLY raw JSON. Do NOT wrap it in markdown code fences.`

// JudgeSimilarity asks the oracle whether a new task is a repeat occurrence
// of any existing canonical task in its domain. One combined call covers the
// whole candidate list, bounding external-call cost to one per task creation.
//
// Errors are returned, never swallowed: a malformed response, transport
// failure, or timeout is the matcher's cue to fall back to exact matching.
func (c *Client) JudgeSimilarity(ctx context.Context, task NewTask, domainName string, candidates []Candidate) (*Verdict, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no candidates to compare against")
	}

	prompt := buildSimilarityPrompt(task, domainName, candidates)

	responseText, err := c.Generate(ctx, "similarity_check", GenerateRequest{
		Prompt:      prompt,
		System:      similaritySystemInstruction,
		Temperature: 0.2,
		MaxTokens:   300,
	})
	if err != nil {
		return nil, err
	}

	parseResult := Parse[Verdict](responseText, ParseOptions{
		Context: "similarity verdict",
	})
	if !parseResult.Success {
		return nil, fmt.Errorf("failed to parse similarity verdict: %s (response: %s)",
			parseResult.Error, truncate(responseText, 200))
	}
	verdict := parseResult.Data

	if verdict.Confidence < 0.0 || verdict.Confidence > 1.0 {
		return nil, fmt.Errorf("invalid confidence score: %.2f (must be 0.0-1.0)", verdict.Confidence)
	}
	if verdict.MatchFound {
		if verdict.MatchedCanonicalTaskID == "" {
			return nil, fmt.Errorf("verdict reports a match but no canonical task id")
		}
		found := false
		for _, cand := range candidates {
			if cand.ID == verdict.MatchedCanonicalTaskID {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("verdict references unknown canonical task id: %s", verdict.MatchedCanonicalTaskID)
		}
	}

	return &verdict, nil
}

// buildSimilarityPrompt enumerates the candidate list in a single prompt
func buildSimilarityPrompt(task NewTask, domainName string, candidates []Candidate) string {
	var b strings.Builder

	fmt.Fprintf(&b, `New Task:
Name: %s
Description: %s
Domain: %s

Existing Canonical Tasks in this domain:
`, task.Name, orNoDescription(task.Description), domainName)

	for _, cand := range candidates {
		fmt.Fprintf(&b, "- [id: %s] %s: %s\n", cand.ID, cand.Name, orNoDescription(cand.Description))
	}

	b.WriteString(`
Determine if the new task matches any existing canonical task. Use the bracketed id of the matched candidate as matchedCanonicalTaskId.`)

	return b.String()
}

func orNoDescription(s string) string {
	if s == "" {
		return "No description"
	}
	return s
}

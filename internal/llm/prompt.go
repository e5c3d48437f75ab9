package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/jask/subsentry/internal/alert"
)

const (
	strictSystem = "You are a careful assistant explaining outputs from a local personal finance app. " +
		"Write in plain English. Be concise and specific. " +
		"Do not output JSON, tables, code blocks, or schemas. Avoid curly-brace syntax entirely. " +
		"Do not invent transactions or numbers; use only the provided evidence."
	analystSystem = "You are a thoughtful finance analyst for a local personal finance app. " +
		"Write in clear, plain English. You may draw conclusions and highlight trends, but " +
		"ground every numeric claim in the provided evidence, label speculation as a hypothesis, " +
		"and do not output JSON, code blocks, or schemas."
)

// maxExamples bounds the charge history sent to the model.
const maxExamples = 6

var codeFence = regexp.MustCompile("```[a-zA-Z0-9]*\n?")

func systemPrompt(m Mode) string {
	if m == ModeAnalyst {
		return analystSystem
	}
	return strictSystem
}

func userPrompt(req ExplainRequest) (string, error) {
	ev, err := json.MarshalIndent(ShrinkEvidence(req.Evidence), "", "  ")
	if err != nil {
		return "", fmt.Errorf("llm: encode evidence: %w", err)
	}
	var b strings.Builder
	b.WriteString("Explain this alert for a non-technical user.\n")
	b.WriteString("Output format (plain text only, no JSON, no tables):\n")
	b.WriteString("- 1 short headline sentence\n")
	b.WriteString("- 2-4 bullet points: what happened, why it was flagged, and any confidence or threshold if present\n")
	b.WriteString("- 1 suggested next step (what the user should check or do)\n\n")
	fmt.Fprintf(&b, "Alert title: %s\n", req.Title)
	fmt.Fprintf(&b, "Alert type: %s\n\n", req.Type)
	b.WriteString("Evidence (compact JSON):\n")
	b.Write(ev)
	return b.String(), nil
}

// ShrinkEvidence trims charge histories to the most recent few entries so the
// prompt stays small.
func ShrinkEvidence(ev alert.Evidence) alert.Evidence {
	switch e := ev.(type) {
	case alert.NewSubscription:
		e.LastN = lastPoints(e.LastN)
		return e
	case alert.PriceChange:
		e.LastN = lastPoints(e.LastN)
		return e
	case alert.Burst:
		if len(e.TxnIDs) > maxExamples {
			e.TxnIDs = e.TxnIDs[len(e.TxnIDs)-maxExamples:]
		}
		return e
	}
	return ev
}

func lastPoints(p []alert.Point) []alert.Point {
	if len(p) <= maxExamples {
		return p
	}
	return p[len(p)-maxExamples:]
}

// cleanText strips code fences the model may wrap its answer in.
func cleanText(s string) string {
	s = codeFence.ReplaceAllString(strings.TrimSpace(s), "")
	return strings.TrimSpace(strings.ReplaceAll(s, "```", ""))
}

// Package extract builds the extraction prompt sent to the model and
// decodes its reply into ExtractedData.
package extract

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultMaxInputChars caps the page text placed in a prompt.
const DefaultMaxInputChars = 15000

const schema = `{
  "company_name_mentioned": "string, the company named in the text if any",
  "summary": "string, a brief summary of the text's key points about the company",
  "metrics": [
    {"metric_type": "revenue | funding | employees | growth_rate | ...", "value": 0, "unit": "USD | percent | count | ...", "period": "e.g. FY2023", "raw_mention": "verbatim sentence"}
  ],
  "events": [
    {"event_type": "funding_round | acquisition | partnership | product_launch | key_hire | ...", "details": "string", "date": "YYYY-MM-DD or as written", "raw_mention": "verbatim sentence"}
  ]
}`

// BuildPrompt renders the extraction prompt for content. companyContext,
// when set, focuses the model on one company. Content longer than
// maxInputChars runes is cut; maxInputChars <= 0 uses the default.
func BuildPrompt(content, companyContext string, maxInputChars int) string {
	if maxInputChars <= 0 {
		maxInputChars = DefaultMaxInputChars
	}
	content = Truncate(content, maxInputChars)

	focus := ""
	if companyContext != "" {
		focus = fmt.Sprintf(" focusing on information relevant to the company %s", companyContext)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Please analyze the following text%s and extract relevant information.\n", focus)
	b.WriteString("Your goal is to populate a JSON object matching the following schema.\n")
	b.WriteString("Only output the JSON object, with no introductory text or explanations.\n\n")
	b.WriteString("Schema:\n```json\n")
	b.WriteString(schema)
	b.WriteString("\n```\n\n")
	b.WriteString("Focus on financial metrics (revenue, funding, employee count, growth rates) and key company\n")
	b.WriteString("events (funding rounds, acquisitions, partnerships, product launches, key hires).\n")
	b.WriteString("Use a plain number for each metric value. Identify the company name only if explicitly mentioned.\n\n")
	b.WriteString("Text to analyze:\n\n")
	b.WriteString(content)
	b.WriteString("\n\nJSON Output:\n")
	return b.String()
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n < 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

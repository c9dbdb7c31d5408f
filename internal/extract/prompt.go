package extract

import (
	"strings"

	"jobboard-engine/internal/scrape/util"
)

// SystemPrompt is the fixed instruction block sent with every extraction.
// The evidence-quote contract here is what the verify package checks against.
const SystemPrompt = `You are a job posting data extractor. Extract structured information from job posting text.

CRITICAL RULES:
1. Only extract information that is EXPLICITLY stated in the provided text
2. Do NOT infer, guess, or make up any information
3. For each field, provide the exact text evidence (a direct quote) from the source
4. If a field is not explicitly mentioned, set both value and evidence to null
5. Keep evidence quotes short but complete enough to prove the value

Extract these fields:
- title: The job title/position name
- company: The company/organization name
- location: Where the job is located (city, state, remote, etc.)
- employment_type: Full-time, Part-time, Contract, etc.
- due_date: Application deadline or closing date. IMPORTANT:
  - If a specific date is mentioned, format as YYYY-MM-DD
  - If the posting EXPLICITLY states "rolling basis", "rolling admissions", "no deadline", "open until filled", or similar phrases indicating there is no fixed deadline, set value to "rolling"
  - Only set to "rolling" if the text explicitly mentions this - do NOT assume rolling if no date is mentioned
- notes: Any other notable information (salary, benefits, requirements summary)

Return ONLY valid JSON in this exact format:
{
  "title": { "value": "string or null", "evidence": "string or null" },
  "company": { "value": "string or null", "evidence": "string or null" },
  "location": { "value": "string or null", "evidence": "string or null" },
  "employment_type": { "value": "string or null", "evidence": "string or null" },
  "due_date": { "value": "string or null or 'rolling'", "evidence": "string or null" },
  "notes": { "value": "string or null", "evidence": "string or null" }
}`

// BuildUserPrompt renders the per-page message. text is cut to budget characters.
func BuildUserPrompt(text string, title *string, finalURL string, budget int) string {
	t := "Unknown"
	if title != nil && *title != "" {
		t = *title
	}

	var b strings.Builder
	b.WriteString("Page title: ")
	b.WriteString(t)
	b.WriteString("\nURL: ")
	b.WriteString(finalURL)
	b.WriteString("\n\nJob posting text:\n")
	b.WriteString(util.Truncate(text, budget))
	return b.String()
}

package client

import (
	"context"

	"auditlens/internal/domain/entity"

	"google.golang.org/genai"
)

// intentInstruction describes the finding schema to the model. Inputs are
// already masked; placeholders like [ID_1] must be copied verbatim.
const intentInstruction = `You classify questions about internal audit findings.
Each finding has: code, title, area, description, department, project, project_type, year, severity (Critical, High, Medium, Low), status (Open, In Progress, Closed), owner, identified_at.

Return ONLY a JSON object with this shape:
{"intent": string, "confidence": number 0..1, "requires_analysis": boolean,
 "filters": {"severity": string, "status": string, "department": string, "year": string,
             "project_type": string, "keywords": [string], "date_range": {"start": "YYYY-MM-DD", "end": "YYYY-MM-DD"}}}

Rules:
- Omit filters that the question does not state.
- "requires_analysis" is true when the question asks for trends, causes, comparisons, summaries, risks or recommendations; false for plain listings or counts.
- "keywords" are topic words that are not already captured by another filter.
- Keep placeholders such as [ID_1] or [NAME_2] exactly as written.

Examples:
"critical findings department IT year 2024" -> {"intent":"List critical IT findings from 2024","confidence":0.95,"requires_analysis":false,"filters":{"severity":"Critical","department":"IT","year":"2024"}}
"analyze risk trends in finance" -> {"intent":"Analyze risk trends in Finance findings","confidence":0.9,"requires_analysis":true,"filters":{"department":"Finance"}}
"open findings about password policy" -> {"intent":"Open findings about password policy","confidence":0.85,"requires_analysis":false,"filters":{"status":"Open","keywords":["password","policy"]}}
"why do procurement audits keep failing?" -> {"intent":"Explain recurring procurement audit failures","confidence":0.8,"requires_analysis":true,"filters":{"keywords":["procurement"]}}`

type GeminiExtractor struct {
	client *genai.Client
	model  string
}

func NewGeminiExtractor(client *genai.Client, model string) *GeminiExtractor {
	return &GeminiExtractor{client: client, model: model}
}

// Extract returns the model's raw answer; parsing is the caller's job.
func (e *GeminiExtractor) Extract(ctx context.Context, maskedQuery string) (string, error) {
	cfg := completionConfig(entity.CompletionRequest{
		SystemPrompt:   intentInstruction,
		ThinkingEffort: entity.ThinkingNone,
		JSON:           true,
	})
	resp, err := e.client.Models.GenerateContent(ctx, e.model, genai.Text("Question: "+maskedQuery), cfg)
	if err != nil {
		return "", classifyGenaiError(err)
	}
	return resp.Text(), nil
}

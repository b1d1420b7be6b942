package usecase

import (
	"fmt"
	"strings"
)

const analysisSystemPrompt = `You are an internal audit analyst. Answer the user's question using only the audit findings provided in the context.
- Cite findings by their number or code when you rely on them.
- If the findings do not contain enough information, say so plainly.
- Placeholders such as [NAME_1] or PERSON_ab12cd34 stand for real values; repeat them exactly as written and never guess what they hide.
- Answer in the language of the question.`

// buildAnalysisPrompt assembles the user prompt. All inputs must already be
// masked.
func buildAnalysisPrompt(intentText, question, context string, total, shown int) string {
	var b strings.Builder
	if intentText != "" && intentText != question {
		fmt.Fprintf(&b, "Interpreted request: %s\n\n", intentText)
	}
	fmt.Fprintf(&b, "Question: %s\n\n", question)
	fmt.Fprintf(&b, "Context: %d of %d matching findings, most relevant first.\n\n", shown, total)
	b.WriteString(context)
	return b.String()
}

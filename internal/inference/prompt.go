package inference

import (
	"strings"

	"german-ocr/ocr"
)

// BuildImagePrompt returns the prompt for an image request, falling back to
// DefaultPrompt and appending a format instruction.
func BuildImagePrompt(prompt string, format ocr.OutputFormat) string {
	p := strings.TrimSpace(prompt)
	if p == "" {
		p = DefaultPrompt
	}
	return p + formatInstruction(format)
}

// BuildTextPrompt wraps an extracted PDF text layer so the model applies the
// caller's prompt to it.
func BuildTextPrompt(prompt, text string, format ocr.OutputFormat) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(prompt))
	b.WriteString(formatInstruction(format))
	b.WriteString("\n\nDocument text:\n")
	b.WriteString(text)
	return b.String()
}

func formatInstruction(format ocr.OutputFormat) string {
	switch format {
	case ocr.OutputJSON:
		return "\nRespond with valid JSON only."
	case ocr.OutputMarkdown:
		return "\nFormat the answer as Markdown, keeping tables as Markdown tables."
	}
	return ""
}

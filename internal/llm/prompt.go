package llm

import (
	"fmt"
	"strings"

	"github.com/ppiankov/certgrade/internal/model"
)

const (
	gradeSystem = "You are an expert in identifying material grades in test report documents."

	chemicalSystem = "You are an expert in extracting chemical composition values from material test reports. Respond in JSON format."

	mechanicalSystem = "You are an expert in extracting mechanical test values from engineering reports. Respond in JSON format."
)

// maxPromptText caps the certificate text sent in one prompt
const maxPromptText = 60000

// BuildGradePrompt asks for the single best grade name out of candidates
func BuildGradePrompt(text string, candidates []string) string {
	var b strings.Builder
	b.WriteString(`You are a material grade recognition assistant.

Given the document text below and a list of valid material grade names, return the most likely full material grade name mentioned in the text. The name MUST match exactly one entry from the list.

Text:
---
`)
	b.WriteString(clip(text))
	b.WriteString("\n---\n\nValid grade names:\n")
	for _, c := range candidates {
		fmt.Fprintf(&b, "- %s\n", c)
	}
	b.WriteString("\nReturn ONLY the matching grade name as a JSON string, like: \"S355J2\". If none of the names appear, return \"\".")
	return b.String()
}

// BuildExtractionPrompt asks for values of the named properties as a JSON list
func BuildExtractionPrompt(kind model.PropertyKind, text, material string, names []string) string {
	return fmt.Sprintf(`You are a %s properties extraction assistant.

A test report has been parsed for material grade: **%s**

Text:
---
%s
---

Please extract only the following %s properties:
%s

Return a JSON list of objects, each with:
- "property_name": exactly one of the names above
- "value": the measured value as written in the report. Use {"min": ..., "max": ...} when the report gives a range, and a list when it gives several samples.

Return ONLY the JSON list.`, kind, material, clip(text), kind, strings.Join(names, ", "))
}

func systemFor(kind model.PropertyKind) string {
	if kind == model.KindMechanical {
		return mechanicalSystem
	}
	return chemicalSystem
}

func clip(text string) string {
	if len(text) <= maxPromptText {
		return text
	}
	return text[:maxPromptText]
}

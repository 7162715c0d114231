package services

import (
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/mattiatonolo-png/nutri-ai-assistant/models"
)

const noLibraryNotice = "No reference document is available for this request."

// BuildClinicalInstruction assembles the system instruction for the chat:
// role, patient data, the retrieved reference passages, and the rules.
func BuildClinicalInstruction(profile models.PatientProfile, passages []models.RetrievedPassage) string {
	var b strings.Builder
	b.WriteString("ROLE: You are an expert clinical nutrition assistant whose advice is grounded in scientific evidence (SINU/LARN guidelines and clinical protocols).\n\n")
	b.WriteString(profile.Summary())
	b.WriteString("\nREFERENCE LIBRARY:\n")
	if len(passages) == 0 {
		b.WriteString(noLibraryNotice)
		b.WriteString("\n")
	}
	for _, p := range passages {
		fmt.Fprintf(&b, "--- SOURCE: %s (passage %d) ---\n%s\n", p.SourceID, p.Rank, strings.TrimSpace(p.Text))
	}
	b.WriteString(`
RULES:
1. Cross-check every request against the PATIENT DATA (for example, with hypertension check sodium guidance in the library).
2. Base nutritional recommendations ONLY on the REFERENCE LIBRARY.
3. If the library does not cover something, say so.
4. Keep a professional, empathetic and concise tone.
5. Use bullet lists and tables for diet plans, naming day, meal and grams for every food.
6. Answer in the language the user writes in.
`)
	return b.String()
}

// DietExtractionInstruction asks for the plan as a bare JSON list. The day and
// meal labels must be exactly the ones the weekly plan accepts.
func DietExtractionInstruction() string {
	days := make([]string, len(models.Days))
	for i, d := range models.Days {
		days[i] = fmt.Sprintf("%q", string(d))
	}
	slots := make([]string, len(models.Slots))
	for i, s := range models.Slots {
		slots[i] = fmt.Sprintf("%q", string(s))
	}
	return fmt.Sprintf(`You convert a diet recommendation into structured data.
Return ONLY a JSON array, with no commentary and no markdown. Each element is an object:
{"day": <one of %s>, "meal": <one of %s>, "food": <food name in Italian, as generic as possible>, "grams": <number>}
Rules:
- One element per food per meal. Repeat an element for every day it applies to.
- If the text gives no quantity for a food, use 100 for grams.
- If the text contains no foods at all, return [].`,
		strings.Join(days, ", "), strings.Join(slots, ", "))
}

// systemContent wraps an instruction as the Content the Gemini API expects.
func systemContent(instruction string) *genai.Content {
	contents := genai.Text(instruction)
	if len(contents) == 0 {
		return nil
	}
	return contents[0]
}

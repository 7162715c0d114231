package models

import (
	"fmt"
	"strings"
)

// PatientProfile is the clinical record filled in before asking for a plan.
type PatientProfile struct {
	Sex        string   `json:"sex"`
	Age        int      `json:"age" binding:"gte=0,lte=120"`
	WeightKg   float64  `json:"weight_kg" binding:"gte=0"`
	HeightCm   float64  `json:"height_cm" binding:"gte=0"`
	Conditions []string `json:"conditions"`
	Allergies  string   `json:"allergies"`
	Goal       string   `json:"goal"`
}

// DefaultProfile mirrors the form defaults of the intake sidebar.
func DefaultProfile() PatientProfile {
	return PatientProfile{
		Sex:      "Uomo",
		Age:      30,
		WeightKg: 70,
		HeightCm: 170,
		Goal:     "Mantenimento",
	}
}

// Keywords returns the profile terms that bias retrieval toward
// condition-relevant passages. "Nessuna" (none) is not a keyword.
func (p PatientProfile) Keywords() []string {
	var kw []string
	for _, c := range p.Conditions {
		c = strings.TrimSpace(c)
		if c == "" || strings.EqualFold(c, "Nessuna") {
			continue
		}
		kw = append(kw, c)
	}
	if a := strings.TrimSpace(p.Allergies); a != "" {
		kw = append(kw, a)
	}
	if g := strings.TrimSpace(p.Goal); g != "" {
		kw = append(kw, g)
	}
	return kw
}

// Summary renders the profile block embedded in the system instruction.
func (p PatientProfile) Summary() string {
	var b strings.Builder
	b.WriteString("PATIENT DATA:\n")
	fmt.Fprintf(&b, "- Sex: %s\n", p.Sex)
	fmt.Fprintf(&b, "- Age: %d years\n", p.Age)
	fmt.Fprintf(&b, "- Weight: %g kg\n", p.WeightKg)
	fmt.Fprintf(&b, "- Height: %g cm\n", p.HeightCm)
	fmt.Fprintf(&b, "- Conditions: %s\n", strings.Join(p.Conditions, ", "))
	fmt.Fprintf(&b, "- Allergies: %s\n", p.Allergies)
	fmt.Fprintf(&b, "- Goal: %s\n", p.Goal)
	return b.String()
}

// Message roles used in the conversation history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of the clinical chat.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

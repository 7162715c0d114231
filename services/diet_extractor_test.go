package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattiatonolo-png/nutri-ai-assistant/models"
)

// scriptedGenerator returns fixed replies and records what it was asked.
type scriptedGenerator struct {
	mu         sync.Mutex
	reply      string
	structured string
	err        error

	chats       []ChatRequest
	extractions []string
}

func (g *scriptedGenerator) Generate(_ context.Context, req ChatRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.chats = append(g.chats, req)
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

func (g *scriptedGenerator) GenerateStructured(_ context.Context, _ string, input string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.extractions = append(g.extractions, input)
	if g.err != nil {
		return "", g.err
	}
	return g.structured, nil
}

func TestDietExtractor_Extract(t *testing.T) {
	gen := &scriptedGenerator{structured: "```json\n" +
		`[{"day":"Lunedì","meal":"Pranzo","food":"pasta di semola","grams":80},` +
		`{"day":"Lunedì","meal":"Cena","food":"merluzzo","grams":"150 g"},` +
		`{"day":"Martedì","meal":"Colazione","food":"yogurt","grams":null},` +
		`{"day":"Martedì","meal":"Merenda","food":"mela","grams":0}]` + "\n```"}

	got, err := NewDietExtractor(gen).Extract(context.Background(), "Lunedì a pranzo 80 g di pasta...")
	require.NoError(t, err)
	assert.Equal(t, []models.DietEntry{
		{Day: "Lunedì", Slot: "Pranzo", Food: "pasta di semola", QuantityGrams: 80},
		{Day: "Lunedì", Slot: "Cena", Food: "merluzzo", QuantityGrams: 150},
		{Day: "Martedì", Slot: "Colazione", Food: "yogurt", QuantityGrams: 100},
		{Day: "Martedì", Slot: "Merenda", Food: "mela", QuantityGrams: 100},
	}, got)
	assert.Len(t, gen.extractions, 1)
}

func TestDietExtractor_EmptyTextSkipsTheCall(t *testing.T) {
	gen := &scriptedGenerator{}
	got, err := NewDietExtractor(gen).Extract(context.Background(), "  \n")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, gen.extractions)
}

func TestDietExtractor_Failures(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		err   error
	}{
		{"prose", "Ecco il piano: pasta a pranzo.", nil},
		{"object instead of list", `{"day":"Lunedì"}`, nil},
		{"missing food", `[{"day":"Lunedì","meal":"Pranzo","grams":80}]`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &scriptedGenerator{structured: tt.reply, err: tt.err}
			got, err := NewDietExtractor(gen).Extract(context.Background(), "piano")
			assert.ErrorIs(t, err, ErrNoStructuredPlan)
			assert.Nil(t, got)
		})
	}
}

func TestDietExtractor_ServiceErrorIsNotAParseFailure(t *testing.T) {
	gen := &scriptedGenerator{err: errors.New("Error 503, Status: UNAVAILABLE")}
	got, err := NewDietExtractor(gen).Extract(context.Background(), "piano")
	assert.ErrorIs(t, err, ErrExtractionUnavailable)
	assert.NotErrorIs(t, err, ErrNoStructuredPlan)
	assert.ErrorContains(t, err, "UNAVAILABLE")
	assert.Nil(t, got)
}

func TestDietExtractor_ParseSkipsLeadingBrackets(t *testing.T) {
	d := NewDietExtractor(nil)

	got, err := d.Parse(`Note [vedi sotto]: [{"day":"Venerdì","meal":"Cena","food":"lenticchie","grams":"70g"}]`)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 70.0, got[0].QuantityGrams)

	empty, err := d.Parse("[]")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

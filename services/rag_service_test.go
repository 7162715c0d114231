package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/mattiatonolo-png/nutri-ai-assistant/models"
)

type stubRetriever struct {
	passages []models.RetrievedPassage
	err      error
	queries  []string
}

func (r *stubRetriever) Retrieve(_ context.Context, query string, _ int) ([]models.RetrievedPassage, error) {
	r.queries = append(r.queries, query)
	return r.passages, r.err
}

func TestChatService_Ask(t *testing.T) {
	ctx := context.Background()
	sessions := NewSessionManager(nil)
	s := sessions.Create(ctx)
	require.NoError(t, sessions.Update(ctx, s.ID, func(s *Session) error {
		s.Profile.Conditions = []string{"Diabete T2"}
		return nil
	}))

	ret := &stubRetriever{passages: []models.RetrievedPassage{
		{SourceID: "diabete.pdf", Text: "Preferire cereali integrali.", Rank: 1, Score: 0.9},
	}}
	gen := &scriptedGenerator{reply: "Lunedì a pranzo: 80 g di pasta integrale."}
	chat := NewChatService(sessions, ret, gen, 3)

	reply, err := chat.Ask(ctx, s.ID, "  Mi prepari un piano?  ")
	require.NoError(t, err)
	assert.Equal(t, s.ID, reply.SessionID)
	assert.Equal(t, gen.reply, reply.Answer)
	require.Len(t, reply.Sources, 1)

	require.Len(t, ret.queries, 1)
	assert.Contains(t, ret.queries[0], "Mi prepari un piano?")
	assert.Contains(t, ret.queries[0], "Diabete T2")

	require.Len(t, gen.chats, 1)
	req := gen.chats[0]
	assert.Contains(t, req.SystemInstruction, "diabete.pdf")
	assert.Contains(t, req.SystemInstruction, "Diabete T2")
	assert.Equal(t, []models.Message{{Role: models.RoleUser, Content: "Mi prepari un piano?"}}, req.History)

	require.NoError(t, sessions.View(ctx, s.ID, func(s *Session) error {
		assert.Len(t, s.History, 2)
		assert.Equal(t, gen.reply, s.Recommendation)
		return nil
	}))

	_, err = chat.Ask(ctx, s.ID, "E la cena?")
	require.NoError(t, err)
	assert.Len(t, gen.chats[1].History, 3, "earlier turns are sent again")

	require.NoError(t, chat.ClearChat(ctx, s.ID))
	require.NoError(t, sessions.View(ctx, s.ID, func(s *Session) error {
		assert.Empty(t, s.History)
		assert.Empty(t, s.Recommendation)
		return nil
	}))
}

func TestChatService_RetrievalFailureStillAnswers(t *testing.T) {
	ctx := context.Background()
	sessions := NewSessionManager(nil)
	s := sessions.Create(ctx)
	gen := &scriptedGenerator{reply: "ok"}
	chat := NewChatService(sessions, &stubRetriever{err: errors.New("index offline")}, gen, 0)

	reply, err := chat.Ask(ctx, s.ID, "ciao")
	require.NoError(t, err)
	assert.Empty(t, reply.Sources)
	assert.Contains(t, gen.chats[0].SystemInstruction, "No reference document is available")
}

func TestChatService_Errors(t *testing.T) {
	ctx := context.Background()
	sessions := NewSessionManager(nil)
	s := sessions.Create(ctx)

	chat := NewChatService(sessions, &stubRetriever{}, &scriptedGenerator{err: errors.New("quota")}, 0)
	_, err := chat.Ask(ctx, s.ID, "ciao")
	assert.ErrorContains(t, err, "quota")
	require.NoError(t, sessions.View(ctx, s.ID, func(s *Session) error {
		assert.Empty(t, s.History, "a failed turn is not recorded")
		return nil
	}))

	_, err = chat.Ask(ctx, s.ID, "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = chat.Ask(ctx, "missing", "ciao")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestDietPlanSchema(t *testing.T) {
	schema := DietPlanSchema()
	assert.Equal(t, genai.TypeArray, schema.Type)
	props := schema.Items.Properties
	assert.Len(t, props["day"].Enum, 7)
	assert.Equal(t, string(models.Dinner), props["meal"].Enum[4])
	assert.ElementsMatch(t, []string{"day", "meal", "food"}, schema.Items.Required)
}

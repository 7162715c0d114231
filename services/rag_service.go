package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/phuslu/log"

	"github.com/mattiatonolo-png/nutri-ai-assistant/models"
)

// ErrEmptyMessage is returned when a chat turn carries no text.
var ErrEmptyMessage = errors.New("message is empty")

// PassageRetriever finds reference passages for a query.
type PassageRetriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]models.RetrievedPassage, error)
}

// ChatReply is the answer to one chat turn with the passages it was
// grounded on.
type ChatReply struct {
	SessionID string                    `json:"session_id"`
	Answer    string                    `json:"answer"`
	Sources   []models.RetrievedPassage `json:"sources"`
}

// ChatService runs the clinical chat: it grounds each turn on the reference
// library and keeps the last answer as the session's recommendation.
type ChatService struct {
	sessions  *SessionManager
	retriever PassageRetriever
	generator Generator
	topK      int
}

func NewChatService(sessions *SessionManager, retriever PassageRetriever, generator Generator, topK int) *ChatService {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &ChatService{sessions: sessions, retriever: retriever, generator: generator, topK: topK}
}

// Ask answers message within a session. Retrieval failures degrade to an
// answer without reference passages; generation failures leave the session
// untouched.
func (c *ChatService) Ask(ctx context.Context, sessionID, message string) (*ChatReply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	log.Info().Str("session_id", sessionID).Int("message_len", len(message)).Msg("chat turn received")

	var reply *ChatReply
	err := c.sessions.Update(ctx, sessionID, func(s *Session) error {
		passages, err := c.retriever.Retrieve(ctx, AugmentQuery(message, s.Profile), c.topK)
		if err != nil {
			log.Warn().Err(err).Str("session_id", s.ID).Msg("retrieval failed, answering without reference passages")
			passages = nil
		}

		history := make([]models.Message, 0, len(s.History)+2)
		history = append(history, s.History...)
		history = append(history, models.Message{Role: models.RoleUser, Content: message})

		answer, err := c.generator.Generate(ctx, ChatRequest{
			SystemInstruction: BuildClinicalInstruction(s.Profile, passages),
			History:           history,
		})
		if err != nil {
			return fmt.Errorf("could not generate response: %w", err)
		}

		s.History = append(history, models.Message{Role: models.RoleAssistant, Content: answer})
		s.Recommendation = answer
		if passages == nil {
			passages = []models.RetrievedPassage{}
		}
		reply = &ChatReply{SessionID: s.ID, Answer: answer, Sources: passages}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("session_id", sessionID).Int("sources", len(reply.Sources)).Msg("chat turn answered")
	return reply, nil
}

// ClearChat forgets the conversation and the current recommendation.
func (c *ChatService) ClearChat(ctx context.Context, sessionID string) error {
	return c.sessions.Update(ctx, sessionID, func(s *Session) error {
		s.ResetChat()
		return nil
	})
}

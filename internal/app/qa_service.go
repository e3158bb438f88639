package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"syllabussync/internal/ai"
	"syllabussync/internal/repository"
)

const (
	AnswerNoDocuments = "No documents found."
	AnswerNoContext   = "No relevant context found."

	ChatScopeAll    = "all"
	ChatScopeRecent = "recent"
	ChatScopeIDs    = "ids"

	snippetRunes          = 200
	defaultHistoryMessage = 6
)

type AskInput struct {
	VersionID uint
	Question  string
	K         int
}

type ChatInput struct {
	UserID   uint
	Messages []ai.ChatMessage
	Scope    string
	IDs      []uint
	K        int
}

type Citation struct {
	DocumentID    uint   `json:"document_id"`
	DocumentTitle string `json:"document_title"`
	Page          int    `json:"page"`
	Snippet       string `json:"snippet"`
}

type Answer struct {
	Question    string     `json:"question"`
	Answer      string     `json:"answer"`
	TopChunks   []Passage  `json:"top_chunks"`
	Citations   []Citation `json:"citations"`
	Synthesized bool       `json:"synthesized"`
}

type QAService struct {
	retriever       *Retriever
	docs            *repository.DocumentRepository
	synthesizer     ai.Synthesizer
	historyMessages int
	logger          *log.Logger
}

func NewQAService(
	retriever *Retriever,
	docs *repository.DocumentRepository,
	synthesizer ai.Synthesizer,
	historyMessages int,
	logger *log.Logger,
) *QAService {
	if synthesizer == nil {
		synthesizer = ai.UnavailableSynthesizer{}
	}
	if historyMessages <= 0 {
		historyMessages = defaultHistoryMessage
	}
	return &QAService{
		retriever:       retriever,
		docs:            docs,
		synthesizer:     synthesizer,
		historyMessages: historyMessages,
		logger:          logger,
	}
}

// Ask answers a question against one document version.
func (s *QAService) Ask(ctx context.Context, in AskInput) (*Answer, error) {
	question := strings.TrimSpace(in.Question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is required", ErrInvalidInput)
	}
	if in.VersionID == 0 {
		return nil, fmt.Errorf("%w: document_version_id is required", ErrInvalidInput)
	}
	return s.answer(ctx, question, Scope{VersionIDs: []uint{in.VersionID}}, in.K, nil)
}

// Chat answers the last user message across the user's documents. Earlier
// messages are passed to synthesis as bounded history.
func (s *QAService) Chat(ctx context.Context, in ChatInput) (*Answer, error) {
	if len(in.Messages) == 0 {
		return &Answer{TopChunks: []Passage{}, Citations: []Citation{}}, nil
	}
	idx := lastUserMessage(in.Messages)
	question := strings.TrimSpace(in.Messages[idx].Content)
	if question == "" {
		return nil, fmt.Errorf("%w: message content is empty", ErrInvalidInput)
	}

	scope := Scope{UserID: in.UserID}
	switch strings.ToLower(strings.TrimSpace(in.Scope)) {
	case "", ChatScopeAll:
	case ChatScopeIDs:
		scope.DocumentIDs = in.IDs
	case ChatScopeRecent:
		docs, err := s.docs.ListByUserID(ctx, in.UserID)
		if err != nil {
			s.logger.Warn("list documents for chat scope failed", "user_id", in.UserID, "err", err)
			return s.fallback(question, AnswerNoContext), nil
		}
		if len(docs) == 0 {
			return s.fallback(question, AnswerNoDocuments), nil
		}
		scope.DocumentIDs = []uint{docs[0].ID}
	default:
		return nil, fmt.Errorf("%w: unknown scope %q", ErrInvalidInput, in.Scope)
	}

	history := make([]ai.ChatMessage, 0, len(in.Messages)-1)
	history = append(history, in.Messages[:idx]...)
	history = append(history, in.Messages[idx+1:]...)
	if len(history) > s.historyMessages {
		history = history[len(history)-s.historyMessages:]
	}
	return s.answer(ctx, question, scope, in.K, history)
}

func (s *QAService) answer(ctx context.Context, question string, scope Scope, k int, history []ai.ChatMessage) (*Answer, error) {
	retrieval, err := s.retriever.Retrieve(ctx, RetrieveInput{Query: question, Scope: scope, K: k})
	switch {
	case errors.Is(err, ErrScopeResolution):
		return s.fallback(question, AnswerNoDocuments), nil
	case errors.Is(err, ErrNoCandidates):
		return s.fallback(question, AnswerNoContext), nil
	case err != nil:
		s.logger.Warn("retrieval failed, returning fallback answer", "err", err)
		return s.fallback(question, AnswerNoContext), nil
	}

	out := &Answer{
		Question:  question,
		TopChunks: retrieval.Passages,
		Citations: citationsFor(retrieval.Passages),
	}
	passages := make([]ai.Passage, len(retrieval.Passages))
	for i, p := range retrieval.Passages {
		passages[i] = ai.Passage{Title: p.DocumentTitle, Page: p.PageNumber, Text: p.Text}
	}

	text, err := s.synthesizer.Synthesize(ctx, ai.SynthesisRequest{Question: question, Passages: passages, History: history})
	if err != nil {
		if !errors.Is(err, ai.ErrSynthesisUnavailable) || !isUnconfigured(s.synthesizer) {
			s.logger.Warn("answer synthesis failed, returning top passage", "err", err)
		}
		out.Answer = retrieval.Passages[0].Text
		return out, nil
	}
	out.Answer = text
	out.Synthesized = true
	return out, nil
}

func (s *QAService) fallback(question, answer string) *Answer {
	return &Answer{Question: question, Answer: answer, TopChunks: []Passage{}, Citations: []Citation{}}
}

func isUnconfigured(synth ai.Synthesizer) bool {
	_, ok := synth.(ai.UnavailableSynthesizer)
	return ok
}

func citationsFor(passages []Passage) []Citation {
	out := make([]Citation, len(passages))
	for i, p := range passages {
		out[i] = Citation{
			DocumentID:    p.DocumentID,
			DocumentTitle: p.DocumentTitle,
			Page:          p.PageNumber,
			Snippet:       truncateRunes(p.Text, snippetRunes),
		}
	}
	return out
}

// lastUserMessage falls back to the final message when no user turn
// exists.
func lastUserMessage(messages []ai.ChatMessage) int {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return i
		}
	}
	return len(messages) - 1
}

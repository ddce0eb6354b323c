package agent

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/fabfab/support-agent/commerce"
	"github.com/fabfab/support-agent/embeddings"
	"github.com/fabfab/support-agent/llm"
)

const (
	defaultTopK      = 10
	contextSeparator = "\n\n---\n\n"

	// The exact fallback sentence is a behavioral contract; deployed
	// clients match on it verbatim.
	notFoundSentence = "I could not find the answer in the provided document."
)

type Service struct {
	extractors []Extractor
	orders     commerce.OrderStatusProvider
	embedder   embeddings.Embedder
	vectors    VectorStore
	llm        llm.Client
	logger     *log.Logger
	topK       int
}

type Config struct {
	TopK int
}

func NewService(
	orders commerce.OrderStatusProvider,
	embedder embeddings.Embedder,
	vectors VectorStore,
	llmClient llm.Client,
	logger *log.Logger,
	cfg Config,
) *Service {
	if logger == nil {
		logger = log.Default()
	}

	topK := cfg.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	return &Service{
		extractors: []Extractor{RegexExtractor{}, NewLLMExtractor(llmClient)},
		orders:     orders,
		embedder:   embedder,
		vectors:    vectors,
		llm:        llmClient,
		logger:     logger,
		topK:       topK,
	}
}

// Resolve is the single entry point of the pipeline. It is total: every
// outcome, including provider failure, maps to exactly one Result variant,
// never to a Go error. A nil session resolves statelessly.
func (s *Service) Resolve(ctx context.Context, question string, session *Session) Result {
	question = strings.TrimSpace(question)
	if question == "" {
		return ErrorResult(fmt.Errorf("question cannot be empty"))
	}

	for _, extractor := range s.extractors {
		id, ok, err := extractor.TryExtract(ctx, question)
		if err != nil {
			// A failed strategy is a miss, not a request failure.
			s.logger.Printf("order extraction strategy failed: %v", err)
			continue
		}
		if ok {
			orderID := NormalizeOrderID(id)
			s.logger.Printf("extracted order number %s", orderID)
			return s.resolveOrder(ctx, orderID)
		}
	}

	return s.resolveKnowledge(ctx, question, session)
}

// resolveOrder handles the order branch. Once an identifier was extracted
// the pipeline never falls through to retrieval; a provider failure here
// surfaces as the error variant.
func (s *Service) resolveOrder(ctx context.Context, orderID string) Result {
	order, err := s.orders.Lookup(ctx, orderID)
	if err != nil {
		return ErrorResult(fmt.Errorf("order lookup: %w", err))
	}

	if !order.Found {
		return OrderStatusResult(fmt.Sprintf("Order #%s was not found.", orderID))
	}

	answer := fmt.Sprintf("Order #%s\nStatus: %s\nOrder Date: %s\nTotal: $%s",
		orderID, order.Status, order.CreatedAt, formatTotal(order.Total))
	return OrderStatusResult(answer)
}

func (s *Service) resolveKnowledge(ctx context.Context, question string, session *Session) Result {
	refined := s.rewriteQuery(ctx, question)

	vectors, err := s.embedder.Embed(ctx, []string{refined})
	if err != nil {
		return ErrorResult(fmt.Errorf("embed question: %w", err))
	}
	if len(vectors) == 0 {
		return ErrorResult(fmt.Errorf("embedder returned no vectors"))
	}

	chunks, err := s.vectors.Search(ctx, vectors[0], s.topK)
	if err != nil {
		return ErrorResult(fmt.Errorf("vector search: %w", err))
	}

	if len(chunks) == 0 {
		return EmptyResult()
	}

	messages := make([]llm.Message, 0, 2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt(buildContext(chunks))})
	if session != nil {
		messages = append(messages, session.Turns()...)
	}
	userMessage := llm.Message{Role: llm.RoleUser, Content: question}
	messages = append(messages, userMessage)

	answer, err := s.llm.Generate(ctx, messages)
	if err != nil {
		return ErrorResult(fmt.Errorf("llm generate: %w", err))
	}
	answer = strings.TrimSpace(answer)

	if session != nil {
		session.Append(userMessage, llm.Message{Role: llm.RoleAssistant, Content: answer})
	}

	return RAGResult(answer)
}

// rewriteQuery rephrases the question for semantic search. Failure here is
// a non-fatal degradation: the original question is used instead.
func (s *Service) rewriteQuery(ctx context.Context, question string) string {
	refined, err := s.llm.Generate(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: "Rewrite the question for semantic search."},
		{Role: llm.RoleUser, Content: question},
	})
	if err != nil {
		s.logger.Printf("query rewrite failed, using original question: %v", err)
		return question
	}

	refined = strings.TrimSpace(refined)
	if refined == "" {
		return question
	}
	return refined
}

func buildContext(chunks []RetrievedChunk) string {
	parts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		if text := strings.TrimSpace(chunk.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, contextSeparator)
}

func systemPrompt(contextBlock string) string {
	var sb strings.Builder
	sb.WriteString("You are a Customer Support Assistant for a Magento eCommerce platform.\n")
	sb.WriteString("Answer ONLY using the provided context.\n")
	sb.WriteString("If the answer is not found, reply exactly:\n")
	sb.WriteString("\"" + notFoundSentence + "\"\n\n")
	sb.WriteString("Context:\n")
	sb.WriteString(contextBlock)
	return sb.String()
}

// formatTotal renders the grand total without trailing zeros, matching the
// literal field reproduction expected by clients ($49.99, $50, $50.5).
func formatTotal(total float64) string {
	return strconv.FormatFloat(total, 'f', -1, 64)
}

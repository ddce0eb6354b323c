package agent_test

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/fabfab/support-agent/agent"
	"github.com/fabfab/support-agent/commerce"
	"github.com/fabfab/support-agent/embeddings"
	"github.com/fabfab/support-agent/llm"
)

type stubOrders struct {
	order  commerce.Order
	err    error
	calls  int
	lastID string
}

func (s *stubOrders) Lookup(ctx context.Context, orderID string) (commerce.Order, error) {
	s.calls++
	s.lastID = orderID
	if s.err != nil {
		return commerce.Order{}, s.err
	}
	return s.order, nil
}

var _ commerce.OrderStatusProvider = (*stubOrders)(nil)

type stubEmbedder struct {
	vectors [][]float32
	err     error
	calls   int
	last    []string
}

func (s *stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	s.calls++
	s.last = texts
	if s.err != nil {
		return nil, s.err
	}
	return s.vectors, nil
}

var _ embeddings.Embedder = (*stubEmbedder)(nil)

type stubVectorStore struct {
	results []agent.RetrievedChunk
	err     error
	calls   int
	topK    int
}

func (s *stubVectorStore) Search(ctx context.Context, embedding []float32, topK int) ([]agent.RetrievedChunk, error) {
	s.calls++
	s.topK = topK
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

var _ agent.VectorStore = (*stubVectorStore)(nil)

// stubLLM dispatches on the incoming messages so one stub can play the
// extraction, rewrite, and composition roles of a single request.
type stubLLM struct {
	fn    func(messages []llm.Message) (string, error)
	calls [][]llm.Message
}

func (s *stubLLM) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	s.calls = append(s.calls, messages)
	if s.fn == nil {
		return "", nil
	}
	return s.fn(messages)
}

var _ llm.Client = (*stubLLM)(nil)

func isExtraction(messages []llm.Message) bool {
	return len(messages) == 1 && strings.Contains(messages[0].Content, "Extract the Magento order number")
}

func isRewrite(messages []llm.Message) bool {
	return messages[0].Role == llm.RoleSystem && strings.Contains(messages[0].Content, "Rewrite the question")
}

func newService(orders *stubOrders, embedder *stubEmbedder, vectors *stubVectorStore, model *stubLLM, cfg agent.Config) *agent.Service {
	return agent.NewService(orders, embedder, vectors, model, log.New(io.Discard, "", 0), cfg)
}

func ragStub(answer string) *stubLLM {
	return &stubLLM{fn: func(messages []llm.Message) (string, error) {
		switch {
		case isExtraction(messages):
			return "NONE", nil
		case isRewrite(messages):
			return "rewritten query", nil
		default:
			return answer, nil
		}
	}}
}

func TestResolveOrderFound(t *testing.T) {
	orders := &stubOrders{order: commerce.Order{
		Found:     true,
		Status:    "shipped",
		Total:     49.99,
		CreatedAt: "2024-01-01",
	}}
	model := &stubLLM{fn: func([]llm.Message) (string, error) {
		return "", errors.New("llm must not be called on the order branch")
	}}
	embedder := &stubEmbedder{}
	vectors := &stubVectorStore{}

	svc := newService(orders, embedder, vectors, model, agent.Config{})

	result := svc.Resolve(context.Background(), "Where is order #000123456?", nil)

	if result.Type != agent.TypeOrderStatus {
		t.Fatalf("expected order_status, got %s (%q)", result.Type, result.Error)
	}
	want := "Order #000123456\nStatus: shipped\nOrder Date: 2024-01-01\nTotal: $49.99"
	if result.Answer != want {
		t.Fatalf("unexpected answer:\n%q\nwant:\n%q", result.Answer, want)
	}
	if orders.lastID != "000123456" {
		t.Fatalf("expected lookup with padded id, got %q", orders.lastID)
	}
	if embedder.calls != 0 || vectors.calls != 0 {
		t.Fatal("retrieval must not run once an order id was extracted")
	}
	if len(model.calls) != 0 {
		t.Fatal("llm must not be called when the regex matches")
	}
}

func TestResolveOrderNotFound(t *testing.T) {
	orders := &stubOrders{order: commerce.Order{Found: false}}
	svc := newService(orders, &stubEmbedder{}, &stubVectorStore{}, &stubLLM{}, agent.Config{})

	result := svc.Resolve(context.Background(), "order 42", nil)

	if result.Type != agent.TypeOrderStatus {
		t.Fatalf("expected order_status, got %s", result.Type)
	}
	if result.Answer != "Order #000000042 was not found." {
		t.Fatalf("unexpected answer: %q", result.Answer)
	}
}

func TestResolveOrderProviderError(t *testing.T) {
	orders := &stubOrders{err: errors.New("magento unreachable")}
	embedder := &stubEmbedder{}
	vectors := &stubVectorStore{}
	svc := newService(orders, embedder, vectors, &stubLLM{}, agent.Config{})

	result := svc.Resolve(context.Background(), "where is order #99?", nil)

	if result.Type != agent.TypeError {
		t.Fatalf("expected error variant, got %s", result.Type)
	}
	if !strings.Contains(result.Error, "magento unreachable") {
		t.Fatalf("expected provider message to surface, got %q", result.Error)
	}
	if embedder.calls != 0 || vectors.calls != 0 {
		t.Fatal("order branch must not fall through to retrieval on failure")
	}
}

func TestResolveRAG(t *testing.T) {
	model := ragStub("A binary search tree keeps keys ordered for fast lookup.")
	embedder := &stubEmbedder{vectors: [][]float32{{0.1, 0.2, 0.3}}}
	vectors := &stubVectorStore{results: []agent.RetrievedChunk{
		{Text: "BST definition.", Score: 0.9},
		{Text: "BST operations.", Score: 0.8},
		{Text: "BST balancing.", Score: 0.7},
	}}
	orders := &stubOrders{}

	svc := newService(orders, embedder, vectors, model, agent.Config{TopK: 10})

	result := svc.Resolve(context.Background(), "What is a binary search tree?", nil)

	if result.Type != agent.TypeRAG {
		t.Fatalf("expected rag, got %s (%q)", result.Type, result.Error)
	}
	if result.Answer != "A binary search tree keeps keys ordered for fast lookup." {
		t.Fatalf("unexpected answer: %q", result.Answer)
	}
	if orders.calls != 0 {
		t.Fatal("order provider must not be called without an extracted id")
	}
	if embedder.last[0] != "rewritten query" {
		t.Fatalf("expected embedding of the rewritten query, got %q", embedder.last[0])
	}
	if vectors.topK != 10 {
		t.Fatalf("expected topK 10, got %d", vectors.topK)
	}

	// The final completion must carry the joined context.
	compose := model.calls[len(model.calls)-1]
	if !strings.Contains(compose[0].Content, "BST definition.\n\n---\n\nBST operations.") {
		t.Fatalf("context block missing separator join:\n%s", compose[0].Content)
	}
	if !strings.Contains(compose[0].Content, `"I could not find the answer in the provided document."`) {
		t.Fatal("system prompt must carry the exact fallback sentence")
	}
}

func TestResolveEmptyWhenNoMatches(t *testing.T) {
	model := ragStub("must not be used")
	vectors := &stubVectorStore{results: nil}
	svc := newService(&stubOrders{}, &stubEmbedder{vectors: [][]float32{{0.5}}}, vectors, model, agent.Config{})

	result := svc.Resolve(context.Background(), "What is the refund policy?", nil)

	if result.Type != agent.TypeEmpty {
		t.Fatalf("expected empty, got %s", result.Type)
	}
	if result.Answer != "" || result.Error != "" {
		t.Fatalf("empty variant must carry no text, got %+v", result)
	}

	// extraction + rewrite only, never composition
	for _, call := range model.calls {
		if !isExtraction(call) && !isRewrite(call) {
			t.Fatalf("unexpected llm call with zero matches: %+v", call)
		}
	}
}

func TestResolveRewriteFailureIsNonFatal(t *testing.T) {
	model := &stubLLM{fn: func(messages []llm.Message) (string, error) {
		switch {
		case isExtraction(messages):
			return "NONE", nil
		case isRewrite(messages):
			return "", errors.New("rewrite rate limited")
		default:
			return "answer from context", nil
		}
	}}
	embedder := &stubEmbedder{vectors: [][]float32{{0.1}}}
	vectors := &stubVectorStore{results: []agent.RetrievedChunk{{Text: "chunk", Score: 0.5}}}

	svc := newService(&stubOrders{}, embedder, vectors, model, agent.Config{})

	result := svc.Resolve(context.Background(), "How do I reset my password?", nil)

	if result.Type != agent.TypeRAG {
		t.Fatalf("expected rag despite rewrite failure, got %s (%q)", result.Type, result.Error)
	}
	if embedder.last[0] != "How do I reset my password?" {
		t.Fatalf("expected fallback to the original question, got %q", embedder.last[0])
	}
}

func TestResolveEmbedderErrorSurfaces(t *testing.T) {
	model := ragStub("unused")
	svc := newService(&stubOrders{}, &stubEmbedder{err: errors.New("embedding quota exceeded")}, &stubVectorStore{}, model, agent.Config{})

	result := svc.Resolve(context.Background(), "What payment methods do you accept?", nil)

	if result.Type != agent.TypeError {
		t.Fatalf("expected error, got %s", result.Type)
	}
	if !strings.Contains(result.Error, "embedding quota exceeded") {
		t.Fatalf("expected underlying message, got %q", result.Error)
	}
}

func TestResolveLLMExtractionFallback(t *testing.T) {
	orders := &stubOrders{order: commerce.Order{Found: true, Status: "processing", Total: 10, CreatedAt: "2024-02-02"}}
	model := &stubLLM{fn: func(messages []llm.Message) (string, error) {
		if isExtraction(messages) {
			return "555", nil
		}
		return "", errors.New("unexpected llm call")
	}}

	svc := newService(orders, &stubEmbedder{}, &stubVectorStore{}, model, agent.Config{})

	result := svc.Resolve(context.Background(), "my purchase number is 555, where is it?", nil)

	if result.Type != agent.TypeOrderStatus {
		t.Fatalf("expected order_status, got %s (%q)", result.Type, result.Error)
	}
	if orders.lastID != "000000555" {
		t.Fatalf("expected padded id from llm extraction, got %q", orders.lastID)
	}
	if !strings.Contains(result.Answer, "Total: $10") {
		t.Fatalf("unexpected answer: %q", result.Answer)
	}
}

func TestResolveExtractionErrorFallsThroughToRAG(t *testing.T) {
	model := &stubLLM{fn: func(messages []llm.Message) (string, error) {
		switch {
		case isExtraction(messages):
			return "", errors.New("extraction model down")
		case isRewrite(messages):
			return "refined", nil
		default:
			return "still answered", nil
		}
	}}
	embedder := &stubEmbedder{vectors: [][]float32{{0.2}}}
	vectors := &stubVectorStore{results: []agent.RetrievedChunk{{Text: "chunk", Score: 0.4}}}

	svc := newService(&stubOrders{}, embedder, vectors, model, agent.Config{})

	result := svc.Resolve(context.Background(), "Do you ship internationally?", nil)

	if result.Type != agent.TypeRAG {
		t.Fatalf("expected rag when an extraction strategy fails, got %s (%q)", result.Type, result.Error)
	}
}

func TestResolveEmptyQuestion(t *testing.T) {
	svc := newService(&stubOrders{}, &stubEmbedder{}, &stubVectorStore{}, &stubLLM{}, agent.Config{})

	result := svc.Resolve(context.Background(), "   ", nil)

	if result.Type != agent.TypeError {
		t.Fatalf("expected error for empty question, got %s", result.Type)
	}
}

func TestResolveRecordsSessionHistory(t *testing.T) {
	model := ragStub("first answer")
	embedder := &stubEmbedder{vectors: [][]float32{{0.1}}}
	vectors := &stubVectorStore{results: []agent.RetrievedChunk{{Text: "chunk", Score: 0.5}}}
	svc := newService(&stubOrders{}, embedder, vectors, model, agent.Config{})

	session := agent.NewSession()

	if result := svc.Resolve(context.Background(), "What is your return window?", session); result.Type != agent.TypeRAG {
		t.Fatalf("expected rag, got %s (%q)", result.Type, result.Error)
	}

	turns := session.Turns()
	if len(turns) != 2 {
		t.Fatalf("expected user+assistant turns recorded, got %d", len(turns))
	}
	if turns[0].Role != llm.RoleUser || turns[1].Role != llm.RoleAssistant {
		t.Fatalf("unexpected turn roles: %s, %s", turns[0].Role, turns[1].Role)
	}

	// Second request on the same session must include the prior turns.
	if result := svc.Resolve(context.Background(), "And for sale items?", session); result.Type != agent.TypeRAG {
		t.Fatalf("expected rag, got %s", result.Type)
	}

	compose := model.calls[len(model.calls)-1]
	// system + 2 history turns + current user message
	if len(compose) != 4 {
		t.Fatalf("expected history in composition messages, got %d messages", len(compose))
	}
	if compose[1].Content != "What is your return window?" {
		t.Fatalf("expected first user turn in history, got %q", compose[1].Content)
	}
}

func TestResultSingleVariant(t *testing.T) {
	cases := []struct {
		name   string
		result agent.Result
	}{
		{"order", agent.OrderStatusResult("a")},
		{"rag", agent.RAGResult("a")},
		{"empty", agent.EmptyResult()},
		{"error", agent.ErrorResult(errors.New("boom"))},
	}

	for _, tc := range cases {
		if tc.result.Answer != "" && tc.result.Error != "" {
			t.Fatalf("%s: both answer and error populated", tc.name)
		}
		if tc.result.Type == "" {
			t.Fatalf("%s: missing discriminator", tc.name)
		}
	}
}

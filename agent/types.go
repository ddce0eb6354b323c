// Package agent implements the query-resolution pipeline: it decides whether
// a message is an order-status lookup or a knowledge-base question, retrieves
// the matching context, and composes a grounded answer.
package agent

// ResultType discriminates the variants of Result.
type ResultType string

const (
	TypeOrderStatus ResultType = "order_status"
	TypeRAG         ResultType = "rag"
	TypeEmpty       ResultType = "empty"
	TypeError       ResultType = "error"
)

// Result is the pipeline's sole output. Exactly one variant is populated per
// invocation; the constructors below are the only producers. The JSON shape
// ({"type", "answer"} or {"type", "error"}) is a client-facing contract.
type Result struct {
	Type   ResultType `json:"type"`
	Answer string     `json:"answer,omitempty"`
	Error  string     `json:"error,omitempty"`
}

func OrderStatusResult(answer string) Result {
	return Result{Type: TypeOrderStatus, Answer: answer}
}

func RAGResult(answer string) Result {
	return Result{Type: TypeRAG, Answer: answer}
}

func EmptyResult() Result {
	return Result{Type: TypeEmpty}
}

func ErrorResult(err error) Result {
	return Result{Type: TypeError, Error: err.Error()}
}

// RetrievedChunk is one nearest-neighbor match with its stored text. A slice
// ordered by descending score forms the context for answer composition.
type RetrievedChunk struct {
	Text  string
	Score float64
}

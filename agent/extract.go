package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/fabfab/support-agent/llm"
)

const incrementIDWidth = 9

var (
	// Leading [o0] tolerates a zero misread as the letter in "order".
	orderPattern  = regexp.MustCompile(`(?i)[o0]rder\s*#?\s*(\d+)`)
	digitsPattern = regexp.MustCompile(`^\d+$`)
)

// Extractor is one strategy for pulling an order number out of free text.
// ok=false means the strategy found nothing, which is not an error.
type Extractor interface {
	TryExtract(ctx context.Context, text string) (id string, ok bool, err error)
}

// RegexExtractor matches "order #123" style phrasing directly.
type RegexExtractor struct{}

func (RegexExtractor) TryExtract(_ context.Context, text string) (string, bool, error) {
	match := orderPattern.FindStringSubmatch(text)
	if match == nil {
		return "", false, nil
	}
	return match[1], true, nil
}

// LLMExtractor asks the chat model for the order number when the regex
// cannot anticipate the phrasing. Anything but a pure digit string in the
// reply, including the literal NONE, counts as a miss.
type LLMExtractor struct {
	llm llm.Client
}

func NewLLMExtractor(client llm.Client) *LLMExtractor {
	return &LLMExtractor{llm: client}
}

func (e *LLMExtractor) TryExtract(ctx context.Context, text string) (string, bool, error) {
	prompt := fmt.Sprintf(`Extract the Magento order number from the text below.
Return ONLY the number, nothing else.
If not found, return "NONE".

Text:
%q`, text)

	reply, err := e.llm.Generate(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
	if err != nil {
		return "", false, fmt.Errorf("llm order extraction: %w", err)
	}

	reply = strings.TrimSpace(reply)
	if !digitsPattern.MatchString(reply) {
		return "", false, nil
	}
	return reply, true, nil
}

var (
	_ Extractor = RegexExtractor{}
	_ Extractor = (*LLMExtractor)(nil)
)

// NormalizeOrderID left-pads an extracted order number with zeros to the
// Magento increment_id width. Longer IDs pass through unchanged.
func NormalizeOrderID(id string) string {
	if len(id) >= incrementIDWidth {
		return id
	}
	return strings.Repeat("0", incrementIDWidth-len(id)) + id
}

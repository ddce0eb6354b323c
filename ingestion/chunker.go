package ingestion

import "strings"

// ChunkText splits text into chunks of roughly target characters with the
// last unit carried over as overlap. Paragraph breaks are preferred split
// points; paragraphs longer than the target are broken at word boundaries.
func ChunkText(content string, target, overlap int) []string {
	clean := strings.ReplaceAll(content, "\r\n", "\n")

	units := make([]string, 0)
	for _, paragraph := range strings.Split(clean, "\n\n") {
		p := strings.TrimSpace(paragraph)
		if p == "" {
			continue
		}
		if len(p) <= target {
			units = append(units, p)
			continue
		}
		units = append(units, splitOversized(p, target)...)
	}

	chunks := make([]string, 0)
	current := make([]string, 0)
	currentLen := 0

	for _, unit := range units {
		unitLen := len(unit)
		if currentLen+unitLen > target && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, "\n\n"))
			if overlap > 0 {
				last := current[len(current)-1]
				if len(last) > overlap {
					last = lastWords(last, overlap)
				}
				current = []string{last}
				currentLen = len(last)
			} else {
				current = current[:0]
				currentLen = 0
			}
		}

		current = append(current, unit)
		currentLen += unitLen
	}

	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, "\n\n"))
	}

	return chunks
}

func splitOversized(paragraph string, target int) []string {
	words := strings.Fields(paragraph)
	pieces := make([]string, 0)
	current := make([]string, 0)
	currentLen := 0

	for _, word := range words {
		wordLen := len(word)
		if currentLen+wordLen+len(current) > target && len(current) > 0 {
			pieces = append(pieces, strings.Join(current, " "))
			current = current[:0]
			currentLen = 0
		}
		current = append(current, word)
		currentLen += wordLen
	}

	if len(current) > 0 {
		pieces = append(pieces, strings.Join(current, " "))
	}

	return pieces
}

// lastWords returns the trailing words of text fitting within limit chars.
func lastWords(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := text[len(text)-limit:]
	if idx := strings.IndexAny(cut, " \n"); idx >= 0 {
		cut = cut[idx+1:]
	}
	return strings.TrimSpace(cut)
}

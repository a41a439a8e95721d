package analysis

// DefaultChunkSize bounds one summarization call's input.
const DefaultChunkSize = 2800

// SplitChunks cuts text into consecutive segments of at most maxChars bytes.
// Segmentation is purely positional; concatenating the result reproduces the
// input exactly.
func SplitChunks(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = DefaultChunkSize
	}
	if text == "" {
		return nil
	}
	chunks := make([]string, 0, len(text)/maxChars+1)
	for start := 0; start < len(text); {
		end := start + maxChars
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, text[start:end])
		start = end
	}
	return chunks
}

package decompose

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// maxChunkTokens is the threshold above which a chunk is flagged in
// statistics as oversized for reliable single-pass extraction.
const maxChunkTokens = 4000

var (
	tokenizerOnce sync.Once
	tokenizer     *tiktoken.Tiktoken
)

// countTokens estimates the number of LLM tokens in text using the cl100k_base
// encoding (shared by the GPT-3.5/4 model family). If the encoder cannot be
// loaded — e.g. no network access to fetch its BPE ranks — it falls back to a
// byte-length/4 heuristic rather than failing the caller, since this count
// only feeds diagnostics, never control flow.
func countTokens(text string) int {
	tokenizerOnce.Do(func() {
		tokenizer, _ = tiktoken.GetEncoding("cl100k_base")
	})
	if tokenizer == nil {
		return len(text) / 4
	}
	return len(tokenizer.Encode(text, nil, nil))
}

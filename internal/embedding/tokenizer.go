package embedding

import (
	"hash/fnv"
	"strings"
	"unicode"
)

// Tokenizer produces BERT-style model inputs (input_ids, attention_mask, token_type_ids).
type Tokenizer interface {
	Tokenize(text string, seqLen int) (inputIDs, attentionMask, tokenTypeIDs []int64)
}

const (
	clsToken  = 101
	sepToken  = 102
	vocabSize = 30000
)

// HashTokenizer maps normalized words to hashed vocabulary ids. It does not need a
// vocabulary file, at the cost of collisions.
type HashTokenizer struct{}

// Tokenize returns [CLS] words... [SEP] padded to seqLen.
func (t *HashTokenizer) Tokenize(text string, seqLen int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if seqLen < 2 {
		seqLen = 2
	}
	inputIDs = make([]int64, seqLen)
	attentionMask = make([]int64, seqLen)
	tokenTypeIDs = make([]int64, seqLen)

	inputIDs[0] = clsToken
	attentionMask[0] = 1
	pos := 1
	for _, w := range Words(text) {
		if pos >= seqLen-1 {
			break
		}
		inputIDs[pos] = int64(HashWord(w) % vocabSize)
		attentionMask[pos] = 1
		pos++
	}
	inputIDs[pos] = sepToken
	attentionMask[pos] = 1
	return inputIDs, attentionMask, tokenTypeIDs
}

// Words lowercases text and splits it into runs of letters and digits. Everything
// else separates words.
func Words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// HashWord returns a stable 32-bit FNV-1a hash of w.
func HashWord(w string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(w))
	return h.Sum32()
}

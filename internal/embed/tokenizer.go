package embed

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

var wordSplit = regexp.MustCompile(`[\w]+|[^\s\w]`)

// wordPieceTokenizer tokenizes text for BERT-style models.
type wordPieceTokenizer struct {
	vocab     map[string]int32
	unkID     int32
	clsID     int32
	sepID     int32
	maxSeqLen int
}

func loadWordPieceTokenizer(vocabPath string, maxSeqLen int) (*wordPieceTokenizer, error) {
	data, err := os.ReadFile(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read vocab file: %w", err)
	}

	vocab := make(map[string]int32)
	for i, line := range strings.Split(string(data), "\n") {
		token := strings.TrimSpace(line)
		if token != "" {
			vocab[token] = int32(i)
		}
	}

	t := &wordPieceTokenizer{vocab: vocab, maxSeqLen: maxSeqLen}
	for _, special := range []struct {
		name string
		dst  *int32
	}{
		{"[UNK]", &t.unkID},
		{"[CLS]", &t.clsID},
		{"[SEP]", &t.sepID},
	} {
		id, ok := vocab[special.name]
		if !ok {
			return nil, fmt.Errorf("vocab missing %s token", special.name)
		}
		*special.dst = id
	}
	return t, nil
}

// encode returns input_ids, attention_mask and token_type_ids padded
// to maxSeqLen.
func (t *wordPieceTokenizer) encode(text string) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	tokens := t.tokenize(text)
	if max := t.maxSeqLen - 2; len(tokens) > max { // room for [CLS] and [SEP]
		tokens = tokens[:max]
	}

	inputIDs = make([]int64, t.maxSeqLen)
	attentionMask = make([]int64, t.maxSeqLen)
	tokenTypeIDs = make([]int64, t.maxSeqLen)

	inputIDs[0] = int64(t.clsID)
	attentionMask[0] = 1
	for i, token := range tokens {
		id, ok := t.vocab[token]
		if !ok {
			id = t.unkID
		}
		inputIDs[i+1] = int64(id)
		attentionMask[i+1] = 1
	}
	inputIDs[len(tokens)+1] = int64(t.sepID)
	attentionMask[len(tokens)+1] = 1
	return inputIDs, attentionMask, tokenTypeIDs
}

func (t *wordPieceTokenizer) tokenize(text string) []string {
	var tokens []string
	for _, word := range wordSplit.FindAllString(strings.ToLower(text), -1) {
		tokens = append(tokens, t.wordpiece(word)...)
	}
	return tokens
}

// wordpiece greedily splits a word into the longest vocab subwords,
// continuation pieces carrying the "##" prefix.
func (t *wordPieceTokenizer) wordpiece(word string) []string {
	if word == "" {
		return nil
	}
	if _, ok := t.vocab[word]; ok {
		return []string{word}
	}

	var pieces []string
	start := 0
	for start < len(word) {
		end := len(word)
		found := ""
		for end > start {
			piece := word[start:end]
			if start > 0 {
				piece = "##" + piece
			}
			if _, ok := t.vocab[piece]; ok {
				found = piece
				break
			}
			end--
		}
		if found == "" {
			piece := string(word[start])
			if start > 0 {
				piece = "##" + piece
			}
			pieces = append(pieces, piece)
			start++
			continue
		}
		pieces = append(pieces, found)
		start = end
	}
	return pieces
}

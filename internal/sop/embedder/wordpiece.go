package embedder

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

const (
	maxSeqLen   = 256
	maxWordLen  = 200
	subwordMark = "##"
)

// vocab is a WordPiece vocabulary; a token's ID is its 0-based line number.
type vocab struct {
	ids                map[string]int64
	pad, unk, cls, sep int64
}

func loadVocab(path string) (*vocab, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("vocab: %w", err)
	}
	defer f.Close()
	return readVocab(f)
}

func readVocab(r io.Reader) (*vocab, error) {
	v := &vocab{ids: make(map[string]int64, 32000)}
	sc := bufio.NewScanner(r)
	var n int64
	for sc.Scan() {
		v.ids[sc.Text()] = n
		n++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("vocab: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("vocab: empty")
	}

	for name, dst := range map[string]*int64{"[PAD]": &v.pad, "[UNK]": &v.unk, "[CLS]": &v.cls, "[SEP]": &v.sep} {
		id, ok := v.ids[name]
		if !ok {
			return nil, fmt.Errorf("vocab: missing special token %s", name)
		}
		*dst = id
	}
	return v, nil
}

// batch is a padded, flattened [size x seqLen] model input.
type batch struct {
	inputIDs      []int64
	attentionMask []int64
	tokenTypeIDs  []int64
	size          int64
	seqLen        int64
}

// tokenizer performs BERT-style WordPiece tokenization.
type tokenizer struct {
	vocab *vocab
}

// encode returns [CLS] pieces... [SEP], truncated to maxSeqLen.
func (t *tokenizer) encode(text string) []int64 {
	ids := []int64{t.vocab.cls}
	for _, word := range basicTokens(text) {
		for _, p := range t.pieces(word) {
			if len(ids) == maxSeqLen-1 {
				return append(ids, t.vocab.sep)
			}
			ids = append(ids, p)
		}
	}
	return append(ids, t.vocab.sep)
}

// pieces splits a word greedily into the longest known subwords. A word
// that cannot be fully covered becomes a single [UNK].
func (t *tokenizer) pieces(word string) []int64 {
	runes := []rune(word)
	if len(runes) > maxWordLen {
		return []int64{t.vocab.unk}
	}

	var out []int64
	for start := 0; start < len(runes); {
		end := len(runes)
		var id int64 = -1
		for ; end > start; end-- {
			sub := string(runes[start:end])
			if start > 0 {
				sub = subwordMark + sub
			}
			if found, ok := t.vocab.ids[sub]; ok {
				id = found
				break
			}
		}
		if id < 0 {
			return []int64{t.vocab.unk}
		}
		out = append(out, id)
		start = end
	}
	return out
}

// encodeBatch pads every sequence to the longest one in texts.
func (t *tokenizer) encodeBatch(texts []string) batch {
	if len(texts) == 0 {
		return batch{}
	}
	seqs := make([][]int64, len(texts))
	var longest int
	for i, text := range texts {
		seqs[i] = t.encode(text)
		longest = max(longest, len(seqs[i]))
	}

	b := batch{size: int64(len(texts)), seqLen: int64(longest)}
	total := len(texts) * longest
	b.inputIDs = make([]int64, total)
	b.attentionMask = make([]int64, total)
	b.tokenTypeIDs = make([]int64, total)
	for i, seq := range seqs {
		row := i * longest
		for j := range longest {
			if j < len(seq) {
				b.inputIDs[row+j] = seq[j]
				b.attentionMask[row+j] = 1
			} else {
				b.inputIDs[row+j] = t.vocab.pad
			}
		}
	}
	return b
}

package embedder

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ortEnv guards the process-wide ONNX Runtime initialization.
var ortEnv struct {
	once sync.Once
	err  error
}

func initORT(libPath string) error {
	ortEnv.once.Do(func() {
		ort.SetSharedLibraryPath(libPath)
		ortEnv.err = ort.InitializeEnvironment()
	})
	return ortEnv.err
}

var bertInputs = []string{"input_ids", "attention_mask", "token_type_ids"}

// ONNXEmbedder runs a BERT-style sentence model (bge-small and friends)
// locally: WordPiece tokenization, inference, mean pooling, L2 norm.
type ONNXEmbedder struct {
	session *ort.DynamicAdvancedSession
	tok     *tokenizer
	dim     int64
}

// NewONNX loads the model at modelPath with the vocabulary at vocabPath.
// libPath locates the onnxruntime shared library; only the first call in a
// process uses it.
func NewONNX(modelPath, vocabPath, libPath string) (*ONNXEmbedder, error) {
	if err := initORT(libPath); err != nil {
		return nil, fmt.Errorf("onnx: initialize runtime: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("onnx: read model info: %w", err)
	}
	have := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		have[in.Name] = true
	}
	for _, name := range bertInputs {
		if !have[name] {
			return nil, fmt.Errorf("onnx: model missing input %q", name)
		}
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("onnx: model has no outputs")
	}
	out := outputs[0]
	if len(out.Dimensions) != 3 {
		return nil, fmt.Errorf("onnx: expected [batch, seq, dim] output, got %v", out.Dimensions)
	}

	v, err := loadVocab(vocabPath)
	if err != nil {
		return nil, err
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("onnx: session options: %w", err)
	}
	defer opts.Destroy()
	opts.SetIntraOpNumThreads(2)
	opts.SetInterOpNumThreads(1)

	session, err := ort.NewDynamicAdvancedSession(modelPath, bertInputs, []string{out.Name}, opts)
	if err != nil {
		return nil, fmt.Errorf("onnx: create session: %w", err)
	}
	return &ONNXEmbedder{session: session, tok: &tokenizer{vocab: v}, dim: out.Dimensions[2]}, nil
}

// Dim returns the embedding dimensionality.
func (e *ONNXEmbedder) Dim() int { return int(e.dim) }

// Embed produces a single embedding vector.
func (e *ONNXEmbedder) Embed(text string) ([]float32, error) {
	vecs, err := e.EmbedBatch([]string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch produces one embedding per text, padded to the longest input.
func (e *ONNXEmbedder) EmbedBatch(texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	b := e.tok.encodeBatch(texts)
	hidden, err := e.infer(b)
	if err != nil {
		return nil, err
	}
	vecs := meanPool(hidden, b.attentionMask, b.size, b.seqLen, e.dim)
	for _, v := range vecs {
		normalize(v)
	}
	return vecs, nil
}

func (e *ONNXEmbedder) infer(b batch) ([]float32, error) {
	shape := ort.NewShape(b.size, b.seqLen)
	var in []ort.Value
	defer func() {
		for _, t := range in {
			t.Destroy()
		}
	}()
	for _, data := range [][]int64{b.inputIDs, b.attentionMask, b.tokenTypeIDs} {
		t, err := ort.NewTensor(shape, data)
		if err != nil {
			return nil, fmt.Errorf("onnx: input tensor: %w", err)
		}
		in = append(in, t)
	}

	out, err := ort.NewEmptyTensor[float32](ort.NewShape(b.size, b.seqLen, e.dim))
	if err != nil {
		return nil, fmt.Errorf("onnx: output tensor: %w", err)
	}
	defer out.Destroy()

	if err := e.session.Run(in, []ort.Value{out}); err != nil {
		return nil, fmt.Errorf("onnx: inference: %w", err)
	}
	// Copy before the tensor is destroyed.
	return append([]float32(nil), out.GetData()...), nil
}

// Close releases the inference session.
func (e *ONNXEmbedder) Close() error {
	return e.session.Destroy()
}

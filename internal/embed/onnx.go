package embed

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	miniLMDim    = 384 // all-MiniLM-L6-v2 output dimension
	miniLMSeqLen = 128
)

// ONNXEncoder runs the quantized all-MiniLM-L6-v2 sentence model
// through ONNX Runtime. Construction fails when the model files are
// missing or the runtime cannot initialize; there is deliberately no
// degraded mode.
type ONNXEncoder struct {
	modelPath string
	vocabPath string
	tokenizer *wordPieceTokenizer

	// The session is bound to these tensors; Encode writes into them
	// under mu and reads the output back out.
	mu         sync.Mutex
	session    *ort.AdvancedSession
	inputIDs   *ort.Tensor[int64]
	mask       *ort.Tensor[int64]
	tokenTypes *ort.Tensor[int64]
	output     *ort.Tensor[float32]
}

// NewONNXEncoder loads the model under modelDir. The directory must
// contain model_quantized.onnx and vocab.txt.
func NewONNXEncoder(modelDir string) (*ONNXEncoder, error) {
	e := &ONNXEncoder{
		modelPath: filepath.Join(modelDir, "model_quantized.onnx"),
		vocabPath: filepath.Join(modelDir, "vocab.txt"),
	}

	if _, err := os.Stat(e.modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("embedding model not found at %s", e.modelPath)
	}

	tokenizer, err := loadWordPieceTokenizer(e.vocabPath, miniLMSeqLen)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer: %w", err)
	}
	e.tokenizer = tokenizer

	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer func() { _ = options.Destroy() }()
	if err := options.SetIntraOpNumThreads(2); err != nil {
		return nil, fmt.Errorf("failed to set threads: %w", err)
	}

	inShape := ort.NewShape(1, int64(miniLMSeqLen))
	if e.inputIDs, err = ort.NewTensor(inShape, make([]int64, miniLMSeqLen)); err != nil {
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	if e.mask, err = ort.NewTensor(inShape, make([]int64, miniLMSeqLen)); err != nil {
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	if e.tokenTypes, err = ort.NewTensor(inShape, make([]int64, miniLMSeqLen)); err != nil {
		return nil, fmt.Errorf("failed to create token_type_ids tensor: %w", err)
	}
	if e.output, err = ort.NewTensor(ort.NewShape(1, int64(miniLMDim)), make([]float32, miniLMDim)); err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		e.modelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"sentence_embedding"},
		[]ort.ArbitraryTensor{e.inputIDs, e.mask, e.tokenTypes},
		[]ort.ArbitraryTensor{e.output},
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	e.session = session
	return e, nil
}

// Dim returns the embedding dimension.
func (e *ONNXEncoder) Dim() int { return miniLMDim }

// Encode runs one inference and returns the L2-normalized sentence
// embedding.
func (e *ONNXEncoder) Encode(text string) ([]float32, error) {
	ids, mask, types := e.tokenizer.encode(text)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, fmt.Errorf("embedding encoder is closed")
	}

	copy(e.inputIDs.GetData(), ids)
	copy(e.mask.GetData(), mask)
	copy(e.tokenTypes.GetData(), types)

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	out := make([]float32, miniLMDim)
	copy(out, e.output.GetData())
	return NormalizeL2(out), nil
}

// Close releases ONNX Runtime resources.
func (e *ONNXEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		_ = e.session.Destroy()
		e.session = nil
	}
	for _, t := range []*ort.Tensor[int64]{e.inputIDs, e.mask, e.tokenTypes} {
		if t != nil {
			_ = t.Destroy()
		}
	}
	if e.output != nil {
		_ = e.output.Destroy()
	}
	_ = ort.DestroyEnvironment()
	return nil
}

//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/hyperjump/bunrui/pkg/utils"
)

// onnxIO is the fixed set of tensors bound to a session. Inputs are rewritten
// in place before each Run and the pooled output is read back.
type onnxIO struct {
	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	tokenTypeIDs  *ort.Tensor[int64]
	output        *ort.Tensor[float32]
}

func newONNXIO(maxTokens, dimensions int) (*onnxIO, error) {
	io := &onnxIO{}
	shape := ort.NewShape(1, int64(maxTokens))
	var err error
	if io.inputIDs, err = ort.NewEmptyTensor[int64](shape); err != nil {
		return nil, fmt.Errorf("input_ids tensor: %w", err)
	}
	if io.attentionMask, err = ort.NewEmptyTensor[int64](shape); err != nil {
		io.destroy()
		return nil, fmt.Errorf("attention_mask tensor: %w", err)
	}
	if io.tokenTypeIDs, err = ort.NewEmptyTensor[int64](shape); err != nil {
		io.destroy()
		return nil, fmt.Errorf("token_type_ids tensor: %w", err)
	}
	if io.output, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(dimensions))); err != nil {
		io.destroy()
		return nil, fmt.Errorf("output tensor: %w", err)
	}
	return io, nil
}

func (io *onnxIO) inputs() []ort.ArbitraryTensor {
	return []ort.ArbitraryTensor{io.inputIDs, io.attentionMask, io.tokenTypeIDs}
}

func (io *onnxIO) destroy() {
	for _, t := range []*ort.Tensor[int64]{io.inputIDs, io.attentionMask, io.tokenTypeIDs} {
		if t != nil {
			_ = t.Destroy()
		}
	}
	if io.output != nil {
		_ = io.output.Destroy()
	}
	*io = onnxIO{}
}

// ONNXEmbedder runs a sentence-embedding model (all-MiniLM-L6-v2 layout:
// input_ids, attention_mask, token_type_ids in, one pooled vector out) through
// ONNX Runtime. It needs cgo and the onnxruntime shared library.
type ONNXEmbedder struct {
	dimensions int
	maxTokens  int
	tokenizer  Tokenizer
	logger     *zap.Logger

	mu      sync.Mutex
	io      *onnxIO
	session *ort.AdvancedSession
}

// NewONNXEmbedder loads the model at modelPath. outputName is the graph's
// pooled output ("output" when empty).
func NewONNXEmbedder(modelPath, outputName string, dimensions, maxTokens int, logger *zap.Logger) (*ONNXEmbedder, error) {
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}
	if maxTokens <= 2 {
		maxTokens = defaultMaxLen
	}
	if outputName == "" {
		outputName = "output"
	}

	io, err := newONNXIO(maxTokens, dimensions)
	if err != nil {
		return nil, err
	}
	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{outputName},
		io.inputs(),
		[]ort.ArbitraryTensor{io.output},
		nil,
	)
	if err != nil {
		io.destroy()
		return nil, fmt.Errorf("failed to create ONNX session for %s: %w", modelPath, err)
	}

	logger = utils.OrNop(logger)
	logger.Info("ONNX embedder loaded",
		zap.String("model", modelPath),
		zap.Int("dimensions", dimensions),
		zap.Int("max_tokens", maxTokens),
	)
	return &ONNXEmbedder{
		dimensions: dimensions,
		maxTokens:  maxTokens,
		tokenizer:  &SimpleTokenizer{},
		logger:     logger,
		io:         io,
		session:    session,
	}, nil
}

// Embed runs the model on text. The session tensors are shared, so runs are serialized.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids, mask, types := e.tokenizer.Tokenize(text, e.maxTokens)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, fmt.Errorf("onnx embedder is closed")
	}
	copy(e.io.inputIDs.GetData(), ids)
	copy(e.io.attentionMask.GetData(), mask)
	copy(e.io.tokenTypeIDs.GetData(), types)
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	vec := append([]float32(nil), e.io.output.GetData()[:e.dimensions]...)
	utils.NormalizeL2(vec)
	return vec, nil
}

// EmbedBatch embeds texts one at a time, stopping at the first error or cancellation.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int {
	return e.dimensions
}

// Close releases the session and its tensors. Later Embed calls fail.
func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	if e.io != nil {
		e.io.destroy()
		e.io = nil
	}
	return err
}

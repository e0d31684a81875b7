// Command crtdemo wires a minimal Reasoner and Embedder into the engine
// and runs an interactive loop over stdin, one turn per line, printing the
// resulting answer and the gate/contradiction signals behind it.
package main

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/coherent-ai/crt"
	"github.com/coherent-ai/crt/internal/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("load config", "error", err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	threadID := crt.ThreadID(envOr("CRT_DEMO_THREAD_ID", "demo"))

	engine, err := crt.New(ctx, threadID,
		crt.WithConfig(cfg),
		crt.WithLogger(logger),
		crt.WithReasoner(echoReasoner{}),
		crt.WithEmbedder(hashEmbedder{dims: cfg.EmbeddingDimensions}),
	)
	if err != nil {
		logger.Error("build engine", "error", err)
		return 1
	}
	defer func() {
		if err := engine.Close(); err != nil {
			logger.Warn("close engine", "error", err)
		}
	}()

	session := crt.SessionID("demo-session")
	logger.Info("crtdemo ready", "thread_id", threadID)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		result, err := engine.Query(ctx, line, crt.QueryOptions{SessionID: session})
		if err != nil {
			logger.Warn("query failed", "error", err)
			continue
		}
		fmt.Printf("> %s\n", result.Answer)
		fmt.Printf("  [gates_passed=%v reason=%q confidence=%.2f contradictions_open=%d]\n",
			result.GatesPassed, result.GateReason, result.Confidence, result.UnresolvedContradictionsTotal)

		select {
		case <-ctx.Done():
			return 0
		default:
		}
	}
	return 0
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// echoReasoner is a deterministic stand-in for a real generative model: it
// answers from whatever memory context the orchestrator already resolved,
// the same role embedding.NoopProvider plays for search in the teacher.
type echoReasoner struct{}

func (echoReasoner) Reason(_ context.Context, query string, rctx crt.ReasonContext, _ string) (crt.ReasonOutput, error) {
	if len(rctx.MemoryContext) == 0 && len(rctx.RetrievedDocs) == 0 {
		return crt.ReasonOutput{
			Answer:     "I don't have anything relevant stored for that yet.",
			Confidence: 0.4,
		}, nil
	}

	var b strings.Builder
	for _, line := range rctx.MemoryContext {
		b.WriteString(line)
		b.WriteString(". ")
	}
	for _, doc := range rctx.RetrievedDocs {
		b.WriteString(doc.Text)
		b.WriteString(". ")
	}
	answer := strings.TrimSpace(b.String())
	if answer == "" {
		answer = fmt.Sprintf("Based on what you've told me, regarding %q I don't have a direct answer.", query)
	}
	return crt.ReasonOutput{Answer: answer, Confidence: 0.75}, nil
}

// hashEmbedder derives a fixed-width, unit-normalized bag-of-words
// embedding from SHA-256 hashes of each token — good enough to exercise
// similarity/drift scoring in a demo with no external embedding service.
type hashEmbedder struct{ dims int }

func (h hashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	dims := h.dims
	if dims <= 0 {
		dims = 384
	}
	vec := make([]float64, dims)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		sum := sha256.Sum256([]byte(word))
		for i := 0; i < dims; i++ {
			byteIdx := i % len(sum)
			sign := 1.0
			if sum[byteIdx]&0x80 != 0 {
				sign = -1.0
			}
			vec[i] += sign * float64(binary.BigEndian.Uint16(rotate(sum[:], byteIdx))) / float64(1<<16)
		}
	}
	out := make([]float32, dims)
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return out, nil
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

// rotate returns a 2-byte window of buf starting at offset, wrapping
// around at the end of buf. Callers pass offset = i % len(buf), so the
// byte pairs repeat every len(buf) dims.
func rotate(buf []byte, offset int) []byte {
	a := buf[offset%len(buf)]
	b := buf[(offset+1)%len(buf)]
	return []byte{a, b}
}

// Package codegen turns an agreed protocol document into an executable
// handler source file for one negotiation role.
package codegen

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/agentmesh/agentmesh/internal/extract"
	"github.com/agentmesh/agentmesh/internal/llm"
	"github.com/agentmesh/agentmesh/internal/negotiation"
)

// Generator produces handler code for an agreed protocol. Any error means
// the code-generation ack goes out with success=false.
type Generator interface {
	Generate(ctx context.Context, protocolDoc string, role negotiation.Role) (modulePath string, err error)
}

// LLMGenerator asks the configured codegen model for a handler and writes it
// under the output path, named by the protocol document hash.
type LLMGenerator struct {
	strategy *negotiation.ModelStrategy
	guard    *PathGuard
	language string
	logger   *zap.Logger
}

// NewLLMGenerator builds a generator writing into outputPath.
func NewLLMGenerator(strategy *negotiation.ModelStrategy, outputPath, language string, logger *zap.Logger) (*LLMGenerator, error) {
	guard, err := NewPathGuard(outputPath)
	if err != nil {
		return nil, fmt.Errorf("codegen output path: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	language = strings.ToLower(strings.TrimSpace(language))
	if language == "" {
		language = "python"
	}
	return &LLMGenerator{strategy: strategy, guard: guard, language: language, logger: logger}, nil
}

// Generate writes the handler source and the protocol document, returning
// the handler path. Naming is stable per protocol document and role.
func (g *LLMGenerator) Generate(ctx context.Context, protocolDoc string, role negotiation.Role) (string, error) {
	if strings.TrimSpace(protocolDoc) == "" {
		return "", fmt.Errorf("%w: empty protocol document", negotiation.ErrCodeGen)
	}

	provider, route, err := g.strategy.ResolveModel(negotiation.TaskCodeGen, "")
	if err != nil {
		return "", fmt.Errorf("%w: resolve model: %v", negotiation.ErrCodeGen, err)
	}

	resp, err := provider.Chat(ctx, llm.ChatRequest{
		Model: route.Model,
		Messages: []llm.ChatMessage{
			{Role: llm.RoleSystem, Content: systemPrompt(role)},
			{Role: llm.RoleUser, Content: buildUserPrompt(protocolDoc, g.language)},
		},
		MaxTokens:   route.MaxTokens,
		Temperature: route.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("%w: generate handler: %v", negotiation.ErrCodeGen, err)
	}

	code, ok := extract.CodeBlock(resp.Message.Content, g.language)
	if !ok {
		return "", fmt.Errorf("%w: no %s code block in LLM output", negotiation.ErrCodeGen, g.language)
	}

	hash := ProtocolHash(protocolDoc)
	handlerName := fmt.Sprintf("%s_%s.%s", hash, role, fileExt(g.language))

	handlerPath, err := g.guard.Resolve(handlerName)
	if err != nil {
		return "", fmt.Errorf("%w: %v", negotiation.ErrCodeGen, err)
	}
	docPath, err := g.guard.Resolve(hash + "_protocol.md")
	if err != nil {
		return "", fmt.Errorf("%w: %v", negotiation.ErrCodeGen, err)
	}

	if err := os.MkdirAll(filepath.Dir(handlerPath), 0o755); err != nil {
		return "", fmt.Errorf("%w: create output dir: %v", negotiation.ErrCodeGen, err)
	}
	if err := os.WriteFile(handlerPath, []byte(code+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("%w: write handler: %v", negotiation.ErrCodeGen, err)
	}
	if err := os.WriteFile(docPath, []byte(protocolDoc), 0o644); err != nil {
		return "", fmt.Errorf("%w: write protocol document: %v", negotiation.ErrCodeGen, err)
	}

	g.logger.Info("generated protocol handler",
		zap.String("role", string(role)),
		zap.String("path", handlerPath),
		zap.String("protocol_hash", hash))
	return handlerPath, nil
}

// ProtocolHash derives the stable file-name prefix for a protocol document.
func ProtocolHash(protocolDoc string) string {
	sum := sha256.Sum256([]byte(protocolDoc))
	return hex.EncodeToString(sum[:])[:16]
}

func fileExt(language string) string {
	switch language {
	case "go":
		return "go"
	default:
		return "py"
	}
}

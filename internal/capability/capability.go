// Package capability serves the provider-side capability description that
// the negotiation LLM consults through the get_capability_info tool.
package capability

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/agentmesh/agentmesh/internal/config"
)

// Store answers capability queries from a static description.
type Store struct {
	description string
}

// NewStore wraps an inline capability description.
func NewStore(description string) *Store {
	return &Store{description: strings.TrimSpace(description)}
}

// LoadStore builds a Store from config: a description file wins over the
// inline description.
func LoadStore(cfg config.CapabilityConfig) (*Store, error) {
	if strings.TrimSpace(cfg.DescriptionFile) != "" {
		data, err := os.ReadFile(cfg.DescriptionFile)
		if err != nil {
			return nil, fmt.Errorf("read capability description: %w", err)
		}
		return NewStore(string(data)), nil
	}
	return NewStore(cfg.Description), nil
}

// Info renders the capability assessment for one query. The requirement and
// descriptions are echoed back so the model can line the answer up with what
// it asked.
func (s *Store) Info(ctx context.Context, requirement, inputDesc, outputDesc string) (string, error) {
	if s == nil || s.description == "" {
		return "No capability description is configured for this provider.", nil
	}

	var b strings.Builder
	b.WriteString("Provider capability description:\n")
	b.WriteString(s.description)
	b.WriteString("\n\nAssessed against:\n")
	fmt.Fprintf(&b, "- requirement: %s\n", strings.TrimSpace(requirement))
	fmt.Fprintf(&b, "- input: %s\n", strings.TrimSpace(inputDesc))
	fmt.Fprintf(&b, "- output: %s\n", strings.TrimSpace(outputDesc))
	return b.String(), nil
}

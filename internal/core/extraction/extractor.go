package extraction

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/agenthands/graphmerge/internal/config"
	"github.com/agenthands/graphmerge/internal/core/model"
	"github.com/agenthands/graphmerge/internal/llm"
	"github.com/agenthands/graphmerge/internal/logger"
)

// DecompositionPolicy turns a batch of raw records into candidate vertices
// and edges. Candidates may be partial; malformed ones are dropped later.
type DecompositionPolicy interface {
	Decompose(ctx context.Context, records []model.Record) ([]model.Element, error)
}

type Dependencies struct {
	LLM llm.LLMClient
	Log *logger.Logger
}

type Factory func(cfg config.DecompositionConfig, deps Dependencies) (DecompositionPolicy, error)

var registry = map[string]Factory{
	"simple": func(cfg config.DecompositionConfig, _ Dependencies) (DecompositionPolicy, error) {
		return NewFieldDecomposer(cfg.Elements), nil
	},
	"llm": func(cfg config.DecompositionConfig, deps Dependencies) (DecompositionPolicy, error) {
		if deps.LLM == nil {
			return nil, fmt.Errorf("decomposition policy llm: no llm client configured")
		}
		d := NewLLMDecomposer(deps.LLM, deps.Log)
		if cfg.Prompt != "" {
			d.Prompt = cfg.Prompt
		}
		return d, nil
	},
}

func Register(name string, f Factory) {
	registry[strings.ToLower(name)] = f
}

// New builds the policy named by cfg.Policy; empty selects "simple".
func New(cfg config.DecompositionConfig, deps Dependencies) (DecompositionPolicy, error) {
	name := cfg.Policy
	if name == "" {
		name = "simple"
	}
	f, ok := registry[strings.ToLower(name)]
	if !ok {
		names := make([]string, 0, len(registry))
		for n := range registry {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unknown decomposition policy: %s (known: %s)", name, strings.Join(names, ", "))
	}
	return f(cfg, deps)
}

// Extractor runs the decomposition policy once per batch.
type Extractor struct {
	Policy DecompositionPolicy
	log    *logger.Logger
}

func NewExtractor(policy DecompositionPolicy, log *logger.Logger) *Extractor {
	if log == nil {
		log = logger.NewNop()
	}
	return &Extractor{Policy: policy, log: log}
}

// Extract returns the candidates emitted for records.
func (e *Extractor) Extract(ctx context.Context, records []model.Record) ([]model.Element, error) {
	if len(records) == 0 {
		return nil, nil
	}
	candidates, err := e.Policy.Decompose(ctx, records)
	if err != nil {
		return nil, fmt.Errorf("failed to decompose records: %w", err)
	}
	e.log.Debug("Decomposed batch", "records", len(records), "candidates", len(candidates))
	return candidates, nil
}

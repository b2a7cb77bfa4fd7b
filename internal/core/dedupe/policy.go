package dedupe

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/agenthands/graphmerge/internal/core/model"
	"github.com/agenthands/graphmerge/internal/llm"
	"github.com/agenthands/graphmerge/internal/logger"
)

// MergePolicy settles one group of possibly duplicate elements. batch holds
// the new candidates followed by the matching stored elements; key names the
// group. The returned winners are validated and persisted independently. A
// winner whose "id" is the store id of one of the existing records updates
// that element, any other winner is created.
type MergePolicy interface {
	Merge(ctx context.Context, kind model.ElementKind, key string, batch []model.MergeRecord) ([]model.Element, error)
}

// PolicyFunc adapts a function to MergePolicy.
type PolicyFunc func(ctx context.Context, kind model.ElementKind, key string, batch []model.MergeRecord) ([]model.Element, error)

func (f PolicyFunc) Merge(ctx context.Context, kind model.ElementKind, key string, batch []model.MergeRecord) ([]model.Element, error) {
	return f(ctx, kind, key, batch)
}

// Dependencies are handed to policy factories.
type Dependencies struct {
	LLM llm.LLMClient
	Log *logger.Logger
}

type Factory func(deps Dependencies) (MergePolicy, error)

var registry = map[string]Factory{
	"prefer_existing": func(Dependencies) (MergePolicy, error) {
		return PreferExistingPolicy{}, nil
	},
	"llm": func(deps Dependencies) (MergePolicy, error) {
		if deps.LLM == nil {
			return nil, fmt.Errorf("merge policy llm: no llm client configured")
		}
		return NewLLMMergePolicy(deps.LLM, deps.Log), nil
	},
}

// Register adds or replaces a named policy.
func Register(name string, f Factory) {
	registry[strings.ToLower(name)] = f
}

// New builds the named policy. The empty name selects prefer_existing.
func New(name string, deps Dependencies) (MergePolicy, error) {
	if name == "" {
		name = "prefer_existing"
	}
	f, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown merge policy: %s (known: %s)", name, strings.Join(Names(), ", "))
	}
	return f(deps)
}

// Names lists the registered policies.
func Names() []string {
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

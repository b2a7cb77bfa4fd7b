package core

import (
	"fmt"

	"github.com/agenthands/graphmerge/internal/auth"
	"github.com/agenthands/graphmerge/internal/config"
	"github.com/agenthands/graphmerge/internal/core/dedupe"
	"github.com/agenthands/graphmerge/internal/core/extraction"
	"github.com/agenthands/graphmerge/internal/core/matching"
	"github.com/agenthands/graphmerge/internal/core/merge"
	"github.com/agenthands/graphmerge/internal/driver"
	"github.com/agenthands/graphmerge/internal/llm"
	"github.com/agenthands/graphmerge/internal/logger"
)

// Evaluator returns the permission evaluator for cfg.
func Evaluator(cfg config.AuthConfig) auth.Evaluator {
	if !cfg.Enabled {
		return auth.AllowAll{}
	}
	return auth.NewRoleEvaluator(cfg.Grants)
}

// NewFromConfig assembles a builder over d. client may be nil when neither
// policy needs a language model.
func NewFromConfig(cfg *config.Config, d driver.GraphDriver, client llm.LLMClient, log *logger.Logger) (*GraphBuilder, error) {
	if log == nil {
		log = logger.NewNop()
	}

	decomposer, err := extraction.New(cfg.Decomposition, extraction.Dependencies{LLM: client, Log: log})
	if err != nil {
		return nil, err
	}

	policy, err := dedupe.New(cfg.Merge.Policy, dedupe.Dependencies{LLM: client, Log: log})
	if err != nil {
		return nil, err
	}
	if p, ok := policy.(*dedupe.LLMMergePolicy); ok && cfg.Merge.Prompt != "" {
		p.Prompt = cfg.Merge.Prompt
	}

	fields := cfg.Graph.DedupFields
	resolver := matching.NewResolver(fields, Evaluator(cfg.Auth), log.With("component", "resolver"))
	coordinator := merge.NewCoordinator(merge.Config{
		DedupFields: fields,
		FinalizeAll: cfg.Graph.CustomFinalizeAllObjects,
	}, resolver, policy, log.With("component", "merge"))

	b := NewGraphBuilder(d, extraction.NewExtractor(decomposer, log), coordinator, fields, log)
	b.BulkLimit = cfg.Concurrency.BulkIngest
	log.Info("Graph builder ready",
		"decomposition", cfg.Decomposition.Policy,
		"merge", cfg.Merge.Policy,
		"dedup_fields", fmt.Sprint(fields),
		"auth", cfg.Auth.Enabled)
	return b, nil
}

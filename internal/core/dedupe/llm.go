package dedupe

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agenthands/graphmerge/internal/core/common"
	"github.com/agenthands/graphmerge/internal/core/model"
	"github.com/agenthands/graphmerge/internal/llm"
	"github.com/agenthands/graphmerge/internal/logger"
)

const defaultMergePrompt = `You are deduplicating %s elements of a graph grouped under the key %s.

<NEW ELEMENTS>
%s
</NEW ELEMENTS>

<EXISTING ELEMENTS>
%s
</EXISTING ELEMENTS>

Instructions:
Decide whether the NEW ELEMENTS describe the same real-world thing as one of the EXISTING ELEMENTS.
Return a JSON object with key "winner_id": the "id" of the existing element they duplicate, or null if none does.

Example JSON:
{"winner_id": 42}
`

type mergeDecision struct {
	WinnerID *int64 `json:"winner_id"`
}

// LLMMergePolicy asks a language model which stored element the new
// candidates duplicate. Errors and unusable answers fall back to
// PreferExistingPolicy.
type LLMMergePolicy struct {
	LLM    llm.LLMClient
	Prompt string
	log    *logger.Logger
}

func NewLLMMergePolicy(client llm.LLMClient, log *logger.Logger) *LLMMergePolicy {
	if log == nil {
		log = logger.NewNop()
	}
	return &LLMMergePolicy{LLM: client, Prompt: defaultMergePrompt, log: log}
}

func (p *LLMMergePolicy) Merge(ctx context.Context, kind model.ElementKind, key string, batch []model.MergeRecord) ([]model.Element, error) {
	var fresh, existing []model.MergeRecord
	for _, r := range batch {
		if r.Existing {
			existing = append(existing, r)
		} else {
			fresh = append(fresh, r)
		}
	}
	if len(existing) == 0 || len(fresh) == 0 {
		return PreferExistingPolicy{}.Merge(ctx, kind, key, batch)
	}

	decision, err := p.decide(ctx, kind, key, fresh, existing)
	if err != nil {
		p.log.Warn("LLM merge decision failed, keeping oldest element", "key", key, "error", err)
		return PreferExistingPolicy{}.Merge(ctx, kind, key, batch)
	}

	if decision.WinnerID == nil {
		// not a duplicate of anything stored: keep the new element separate
		return PreferExistingPolicy{}.Merge(ctx, kind, key, fresh)
	}
	for _, r := range existing {
		if id, ok := model.AsID(r.Element[model.FieldID]); ok && id == *decision.WinnerID {
			return []model.Element{overlay(r.Element, batch)}, nil
		}
	}
	p.log.Warn("LLM picked an unknown element, keeping oldest element", "key", key, "winner_id", *decision.WinnerID)
	return PreferExistingPolicy{}.Merge(ctx, kind, key, batch)
}

func (p *LLMMergePolicy) decide(ctx context.Context, kind model.ElementKind, key string, fresh, existing []model.MergeRecord) (mergeDecision, error) {
	prompt := fmt.Sprintf(p.Prompt, kind, key, serializeRecords(fresh), serializeRecords(existing))

	response, err := p.LLM.Generate(ctx, prompt)
	if err != nil {
		return mergeDecision{}, fmt.Errorf("failed to generate merge decision: %w", err)
	}
	result, err := common.ParseJSON[mergeDecision](response)
	if err != nil {
		return mergeDecision{}, fmt.Errorf("failed to parse merge decision: %w", err)
	}
	return result, nil
}

func serializeRecords(records []model.MergeRecord) string {
	var sb strings.Builder
	for _, r := range records {
		b, err := json.Marshal(r.Element)
		if err != nil {
			continue
		}
		sb.WriteString("- ")
		sb.Write(b)
		sb.WriteString("\n")
	}
	return sb.String()
}

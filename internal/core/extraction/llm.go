package extraction

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agenthands/graphmerge/internal/core/common"
	"github.com/agenthands/graphmerge/internal/core/model"
	"github.com/agenthands/graphmerge/internal/llm"
	"github.com/agenthands/graphmerge/internal/logger"
)

const defaultDecompositionPrompt = `Extract the entities and relationships described by the following record.

<RECORD>
%s
</RECORD>

Instructions:
Return a JSON object with keys "vertices" and "edges".
Each vertex has "id" (an object with "name" and "type") and "label".
Each edge has "label", "outV" (the source vertex id object) and "inV" (the target vertex id object).
An optional "properties" object may be attached to any vertex or edge.

Example JSON:
{
  "vertices": [
    {"id": {"name": "alice", "type": "person"}, "label": "Alice"},
    {"id": {"name": "acme", "type": "company"}, "label": "ACME"}
  ],
  "edges": [
    {"label": "works_at", "outV": {"name": "alice", "type": "person"}, "inV": {"name": "acme", "type": "company"}}
  ]
}
`

type decomposition struct {
	Vertices []model.Element `json:"vertices"`
	Edges    []model.Element `json:"edges"`
}

// LLMDecomposer asks a language model for the graph described by each
// record. A record whose answer cannot be parsed is skipped and logged.
type LLMDecomposer struct {
	LLM    llm.LLMClient
	Prompt string
	log    *logger.Logger
}

func NewLLMDecomposer(client llm.LLMClient, log *logger.Logger) *LLMDecomposer {
	if log == nil {
		log = logger.NewNop()
	}
	return &LLMDecomposer{LLM: client, Prompt: defaultDecompositionPrompt, log: log}
}

func (d *LLMDecomposer) Decompose(ctx context.Context, records []model.Record) ([]model.Element, error) {
	var out []model.Element
	for i, rec := range records {
		body, err := json.Marshal(rec)
		if err != nil {
			d.log.Warn("Skipping unencodable record", "index", i, "error", err)
			continue
		}

		response, err := d.LLM.Generate(ctx, fmt.Sprintf(d.Prompt, body))
		if err != nil {
			return nil, fmt.Errorf("failed to generate decomposition: %w", err)
		}

		result, err := common.ParseJSON[decomposition](response)
		if err != nil {
			d.log.Warn("Skipping unparseable decomposition", "index", i, "error", err)
			continue
		}

		for _, v := range result.Vertices {
			if _, ok := v[model.FieldType]; !ok {
				v[model.FieldType] = string(model.KindVertex)
			}
			out = append(out, v)
		}
		for _, e := range result.Edges {
			if _, ok := e[model.FieldType]; !ok {
				e[model.FieldType] = string(model.KindEdge)
			}
			out = append(out, e)
		}
	}
	return out, nil
}

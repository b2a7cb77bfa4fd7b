package merge

import (
	"fmt"

	"github.com/agenthands/graphmerge/internal/core/model"
)

// IdentityError reports an edge whose endpoint has no resolved vertex in the
// current pass. The edge is dropped and counted.
type IdentityError struct {
	Label    string
	Endpoint string
	Key      model.VertexKey
}

func (e *IdentityError) Error() string {
	return fmt.Sprintf("edge %q: %s endpoint %s has no resolved vertex", e.Label, e.Endpoint, e.Key)
}

// PolicyError wraps a merge policy failure for one group. The group is
// counted as failed and the pass carries on.
type PolicyError struct {
	Kind model.ElementKind
	Key  string
	Err  error
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("merge policy failed for %s %s: %v", e.Kind, e.Key, e.Err)
}

func (e *PolicyError) Unwrap() error {
	return e.Err
}

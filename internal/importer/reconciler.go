package importer

import (
	"context"
	"fmt"

	"github.com/CiscoSE/MaxmindAsnImporter/internal/maxmind"
	"github.com/CiscoSE/MaxmindAsnImporter/internal/stealthwatch"
)

// ActionType distinguishes the two ways an organization's result lands on the
// SMC.
type ActionType string

const (
	ActionCreate ActionType = "create"
	ActionUpdate ActionType = "update"
)

// Action is one reconciliation decision. Updates carry the id of the matched
// remote tag; creates leave it zero. Ranges always replace the remote
// membership wholesale.
type Action struct {
	Type     ActionType
	ParentID int
	TagID    int
	Name     string
	Ranges   []string
}

// TagReader fetches a tag's detail just-in-time. The tag listing does not
// include parent scope, so the reconciler resolves it per candidate.
type TagReader interface {
	Tag(ctx context.Context, id int) (*stealthwatch.TagDetail, error)
}

// Reconciler maps aggregated per-organization results onto the existing
// remote tags, deciding create versus update.
type Reconciler struct {
	tags TagReader
}

// NewReconciler creates a Reconciler that resolves tag details through tags.
func NewReconciler(tags TagReader) *Reconciler {
	return &Reconciler{tags: tags}
}

// Reconcile emits one Action per OrgResult, in result order. An organization
// updates an existing tag only when a tag with the same name lives under
// parentID; a same-named tag under any other parent is a different logical
// entity and is skipped, never merged. Candidates are examined in listing
// order and the walk stops at the first parent-scope match.
//
// Parent scope is compared by value. A detail fetch failure aborts the whole
// pass: the create/update phase is all-or-nothing against the remote system.
func (r *Reconciler) Reconcile(ctx context.Context, results []maxmind.OrgResult, existing []stealthwatch.TagSummary, parentID int) ([]Action, error) {
	actions := make([]Action, 0, len(results))

	for _, org := range results {
		tagID := 0
		for _, candidate := range existing {
			if candidate.Name != org.Name {
				continue
			}

			detail, err := r.tags.Tag(ctx, candidate.ID)
			if err != nil {
				return nil, fmt.Errorf("reconcile %q: %w", org.Name, err)
			}
			if detail.ParentID == parentID {
				tagID = candidate.ID
				break
			}
		}

		if tagID != 0 {
			actions = append(actions, Action{
				Type:     ActionUpdate,
				ParentID: parentID,
				TagID:    tagID,
				Name:     org.Name,
				Ranges:   org.Ranges,
			})
		} else {
			actions = append(actions, Action{
				Type:     ActionCreate,
				ParentID: parentID,
				Name:     org.Name,
				Ranges:   org.Ranges,
			})
		}
	}

	return actions, nil
}

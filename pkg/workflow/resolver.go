package workflow

import (
	"github.com/ourworldcn/powerlms-workflow/pkg/models"
)

// FirstNode returns the unique template node no other node references via
// NextID. The successor set is computed once per call rather than by repeated
// scans. A chain with zero or multiple first-node candidates is malformed.
func FirstNode(template *models.Template) (*models.TemplateNode, error) {
	if len(template.Nodes) == 0 {
		return nil, ErrMalformedTemplate
	}

	referenced := make(map[string]struct{}, len(template.Nodes))

	for _, node := range template.Nodes {
		if node.NextID != nil {
			referenced[*node.NextID] = struct{}{}
		}
	}

	var first *models.TemplateNode

	for _, node := range template.Nodes {
		if _, ok := referenced[node.ID]; ok {
			continue
		}

		if first != nil {
			return nil, ErrMalformedTemplate
		}

		first = node
	}

	if first == nil {
		// Every node is referenced: the chain is a cycle.
		return nil, ErrMalformedTemplate
	}

	return first, nil
}

// ChainOrder returns the template's nodes in chain order, first node onward.
// Dangling NextID references terminate the walk; a visited set guards against
// malformed cycles.
func ChainOrder(template *models.Template) ([]*models.TemplateNode, error) {
	first, err := FirstNode(template)
	if err != nil {
		return nil, err
	}

	ordered := make([]*models.TemplateNode, 0, len(template.Nodes))
	visited := make(map[string]struct{}, len(template.Nodes))

	for node := first; node != nil; {
		if _, ok := visited[node.ID]; ok {
			return nil, ErrMalformedTemplate
		}

		visited[node.ID] = struct{}{}
		ordered = append(ordered, node)

		if node.NextID == nil {
			break
		}

		node = template.NodeByID(*node.NextID)
	}

	return ordered, nil
}

// NodeForOperator returns the first node, in chain order, where the operator
// is an eligible approver, or nil when the operator owns no step.
func NodeForOperator(template *models.Template, operatorID string) (*models.TemplateNode, error) {
	ordered, err := ChainOrder(template)
	if err != nil {
		return nil, err
	}

	for _, node := range ordered {
		if node.ApproverItem(operatorID) != nil {
			return node, nil
		}
	}

	return nil, nil
}

// ResolveNextStep determines where the chain travels after the current node
// when the caller nominates the given operator. The current node's NextID is
// the sole source of truth for the successor; the nomination only validates
// that the operator is an approver there. The returned display name is the
// successor item's snapshot for denormalizing onto the new decision record.
func ResolveNextStep(template *models.Template, current *models.TemplateNode, nextOperatorID string) (*models.TemplateNode, string, error) {
	if current.NextID == nil {
		return nil, "", ErrNoSuchTransition
	}

	next := template.NodeByID(*current.NextID)
	if next == nil {
		return nil, "", ErrNoSuchTransition
	}

	item := next.ApproverItem(nextOperatorID)
	if item == nil {
		return nil, "", ErrNoSuchTransition
	}

	return next, item.OperatorDisplayName, nil
}

// Package workflow implements the approval routing core: template chain
// resolution, the routing engine that advances a document through its chain,
// and the read-only state evaluator.
package workflow

import (
	"errors"

	"github.com/ourworldcn/powerlms-workflow/pkg/persistence"
)

var (
	// ErrTemplateNotFound is returned when the referenced template does not exist.
	ErrTemplateNotFound = persistence.ErrTemplateNotFound

	// ErrMalformedTemplate indicates a template whose chain has zero or more
	// than one first node. This is a configuration error that template
	// authoring is expected to catch; the routing engine refuses to guess.
	ErrMalformedTemplate = errors.New("malformed template: chain must have exactly one first node")

	// ErrNoEligibleStep indicates the acting operator is not an approver at
	// any step reachable in the template chain.
	ErrNoEligibleStep = errors.New("operator has no eligible step in template")

	// ErrNoSuchTransition indicates the nominated next operator is not an
	// approver at the current step's successor.
	ErrNoSuchTransition = errors.New("nominated operator is not eligible for the next step")

	// ErrRejectWithNext indicates a rejection combined with a next-operator
	// nomination; a rejected document does not travel further.
	ErrRejectWithNext = errors.New("cannot nominate a next operator while rejecting")

	// ErrInstanceClosed indicates the document's latest traversal already
	// completed or terminated; it accepts no further decisions.
	ErrInstanceClosed = errors.New("workflow instance is closed")

	// ErrDocBusy indicates the document is mid-traversal under a different
	// template. A document carries at most one active traversal; a second
	// chain may only start after the current one closes.
	ErrDocBusy = errors.New("document has an active traversal under another template")

	// ErrAlreadyDecided indicates the acting operator already recorded a
	// decision at the current step.
	ErrAlreadyDecided = errors.New("operator already decided at this step")

	// ErrConcurrencyConflict indicates per-document serialization or the
	// optimistic save retry gave up.
	ErrConcurrencyConflict = errors.New("concurrent modification of workflow instance")
)

// IsCallerError reports whether err is a 4xx-equivalent failure of the Send
// operation, as opposed to an infrastructure fault.
func IsCallerError(err error) bool {
	return errors.Is(err, ErrTemplateNotFound) ||
		errors.Is(err, ErrMalformedTemplate) ||
		errors.Is(err, ErrNoEligibleStep) ||
		errors.Is(err, ErrNoSuchTransition) ||
		errors.Is(err, ErrRejectWithNext) ||
		errors.Is(err, ErrInstanceClosed) ||
		errors.Is(err, ErrDocBusy) ||
		errors.Is(err, ErrAlreadyDecided)
}

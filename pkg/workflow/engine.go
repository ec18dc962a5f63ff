package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ourworldcn/powerlms-workflow/pkg/eventbus"
	"github.com/ourworldcn/powerlms-workflow/pkg/events"
	"github.com/ourworldcn/powerlms-workflow/pkg/keylock"
	"github.com/ourworldcn/powerlms-workflow/pkg/models"
	"github.com/ourworldcn/powerlms-workflow/pkg/otelhelper"
	"github.com/ourworldcn/powerlms-workflow/pkg/persistence"
	"github.com/ourworldcn/powerlms-workflow/pkg/retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// arrivalIncrement keeps arrival timestamps strictly increasing within one
	// instance when the wall clock does not produce distinct values.
	arrivalIncrement = time.Millisecond

	saveAttempts = 3
	saveDelay    = 20 * time.Millisecond
)

// SendRequest carries one routing action for one document.
type SendRequest struct {
	TemplateID       string
	DocID            string
	ActorID          string
	ActorDisplayName string
	Comment          string

	// Approved is the actor's decision at their current step.
	Approved bool

	// NextOperatorID, when set, nominates the approver the chain travels to
	// next. Empty means record-only: the decision lands on the current node
	// without appending a new arrival.
	NextOperatorID string

	// Restart opens a fresh traversal when the document's previous one has
	// already completed or terminated.
	Restart bool
}

// Engine is the only mutator of workflow instances. All mutation for one Send
// call happens under a per-document lock and commits as one atomic save.
type Engine struct {
	persistence persistence.Persistence
	bus         eventbus.EventBus
	locks       *keylock.KeyLock
	logger      *slog.Logger
	tracer      trace.Tracer
	lockWait    time.Duration
	now         func() time.Time
}

// NewEngine creates a routing engine. The event bus may be nil; lifecycle
// events are then skipped.
func NewEngine(p persistence.Persistence, bus eventbus.EventBus, logger *slog.Logger) *Engine {
	return &Engine{
		persistence: p,
		bus:         bus,
		locks:       keylock.New(),
		logger:      logger,
		tracer:      otel.Tracer("powerlms-workflow/engine"),
		lockWait:    keylock.DefaultWait,
		now:         time.Now,
	}
}

// Send routes one decision for one document: it opens a traversal on first
// contact, records the actor's decision at their current step, and appends
// the next arrival when a next operator is nominated.
func (e *Engine) Send(ctx context.Context, req SendRequest) (*models.WorkflowInstance, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.send",
		attribute.String(otelhelper.TemplateIDKey, req.TemplateID),
		attribute.String(otelhelper.DocIDKey, req.DocID),
		attribute.String(otelhelper.OperatorIDKey, req.ActorID),
	)
	defer span.End()

	if !req.Approved && req.NextOperatorID != "" {
		otelhelper.SetError(span, ErrRejectWithNext)

		return nil, ErrRejectWithNext
	}

	release, err := e.locks.Acquire(ctx, req.DocID, e.lockWait)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("%w: doc %s: %v", ErrConcurrencyConflict, req.DocID, err)
	}
	defer release()

	var (
		instance *models.WorkflowInstance
		status   models.InstanceStatus
		pending  []eventbus.Event
	)

	err = retry.Do(ctx, saveAttempts, saveDelay, persistence.IsVersionConflict, func() error {
		var sendErr error
		instance, status, pending, sendErr = e.send(ctx, req)

		return sendErr
	})
	if err != nil {
		if persistence.IsVersionConflict(err) {
			err = fmt.Errorf("%w: doc %s: %v", ErrConcurrencyConflict, req.DocID, err)
		}

		otelhelper.SetError(span, err)

		return nil, err
	}

	otelhelper.SetOutcome(span, instance.ID, string(status))

	e.publish(ctx, req.DocID, pending)

	return instance, nil
}

// send performs one full read-modify-write pass. It is re-run wholesale when
// the save loses an optimistic-concurrency race.
func (e *Engine) send(ctx context.Context, req SendRequest) (*models.WorkflowInstance, models.InstanceStatus, []eventbus.Event, error) {
	template, err := e.persistence.TemplateRepository().GetByID(ctx, req.TemplateID)
	if err != nil {
		return nil, "", nil, fmt.Errorf("failed to load template %s: %w", req.TemplateID, err)
	}

	if template == nil {
		return nil, "", nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, req.TemplateID)
	}

	instance, err := e.activeInstance(ctx, req.DocID, template, req.Restart)
	if err != nil {
		return nil, "", nil, err
	}

	var (
		pending     []eventbus.Event
		currentNode *models.InstanceNode
	)

	if instance == nil {
		instance, currentNode, err = e.openInstance(template, req)
		if err != nil {
			return nil, "", nil, err
		}

		pending = append(pending, events.InstanceCreated{
			BaseEvent:      e.baseEvent(events.InstanceCreatedEvent, instance),
			ActorID:        req.ActorID,
			TemplateNodeID: currentNode.TemplateNodeID,
		})
	} else {
		currentNode = instance.LatestNodeForOperator(req.ActorID)
		if currentNode == nil {
			return nil, "", nil, fmt.Errorf("%w: operator %s has no step in instance %s",
				ErrNoEligibleStep, req.ActorID, instance.ID)
		}

		if err := e.recordDecision(currentNode, req); err != nil {
			return nil, "", nil, err
		}
	}

	if req.NextOperatorID != "" {
		advanced, err := e.advance(template, instance, currentNode, req)
		if err != nil {
			return nil, "", nil, err
		}

		pending = append(pending, advanced)
	}

	if err := e.persistence.InstanceRepository().Save(ctx, instance); err != nil {
		return nil, "", nil, err
	}

	status := Status(instance, template)

	switch status {
	case models.InstanceStatusCompleted:
		pending = append(pending, events.InstanceCompleted{
			BaseEvent: e.baseEvent(events.InstanceCompletedEvent, instance),
			ActorID:   req.ActorID,
		})
	case models.InstanceStatusTerminated:
		pending = append(pending, events.InstanceTerminated{
			BaseEvent: e.baseEvent(events.InstanceTerminatedEvent, instance),
			ActorID:   req.ActorID,
			Comment:   req.Comment,
		})
	}

	return instance, status, pending, nil
}

// activeInstance returns the document's in-progress traversal, nil when the
// next Send should open a fresh one, or ErrInstanceClosed when the latest
// traversal is closed and no restart was requested. A document carries at
// most one active traversal; when the latest in-progress one belongs to a
// different template the call fails with ErrDocBusy rather than opening a
// parallel chain.
func (e *Engine) activeInstance(ctx context.Context, docID string, template *models.Template, restart bool) (*models.WorkflowInstance, error) {
	instances, err := e.persistence.InstanceRepository().ByDocID(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to load instances for doc %s: %w", docID, err)
	}

	var latest *models.WorkflowInstance

	for _, instance := range instances {
		if latest == nil || instance.CreatedAt.After(latest.CreatedAt) {
			latest = instance
		}
	}

	if latest == nil {
		return nil, nil
	}

	latestTemplate := template
	if latest.TemplateID != template.ID {
		latestTemplate, err = e.persistence.TemplateRepository().GetByID(ctx, latest.TemplateID)
		if err != nil {
			return nil, fmt.Errorf("failed to load template %s: %w", latest.TemplateID, err)
		}

		// The traversal's template is gone, so its closure can no longer be
		// evaluated. Refuse a new chain rather than overlap it.
		if latestTemplate == nil {
			return nil, fmt.Errorf("%w: doc %s instance %s under removed template %s",
				ErrDocBusy, docID, latest.ID, latest.TemplateID)
		}
	}

	if Status(latest, latestTemplate) == models.InstanceStatusInProgress {
		if latest.TemplateID != template.ID {
			return nil, fmt.Errorf("%w: doc %s instance %s under template %s",
				ErrDocBusy, docID, latest.ID, latest.TemplateID)
		}

		return latest, nil
	}

	if !restart {
		return nil, fmt.Errorf("%w: doc %s instance %s", ErrInstanceClosed, docID, latest.ID)
	}

	return nil, nil
}

// openInstance creates a new traversal whose first arrival is the earliest
// chain step owned by the actor, carrying the actor's decision.
func (e *Engine) openInstance(template *models.Template, req SendRequest) (*models.WorkflowInstance, *models.InstanceNode, error) {
	startNode, err := NodeForOperator(template, req.ActorID)
	if err != nil {
		return nil, nil, err
	}

	if startNode == nil {
		return nil, nil, fmt.Errorf("%w: operator %s in template %s",
			ErrNoEligibleStep, req.ActorID, template.ID)
	}

	now := e.now().UTC()

	instanceID, err := newID()
	if err != nil {
		return nil, nil, err
	}

	nodeID, err := newID()
	if err != nil {
		return nil, nil, err
	}

	itemID, err := newID()
	if err != nil {
		return nil, nil, err
	}

	decision := models.DecisionApproved
	if !req.Approved {
		decision = models.DecisionRejected
	}

	node := &models.InstanceNode{
		ID:             nodeID,
		InstanceID:     instanceID,
		TemplateNodeID: startNode.ID,
		ArrivalAt:      now,
		Items: []*models.InstanceNodeItem{
			{
				ID:                  itemID,
				NodeID:              nodeID,
				OperatorID:          req.ActorID,
				OperatorDisplayName: req.ActorDisplayName,
				Kind:                models.OperationKindApprover,
				Comment:             req.Comment,
				Decision:            decision,
			},
		},
	}

	instance := &models.WorkflowInstance{
		ID:         instanceID,
		DocID:      req.DocID,
		TemplateID: template.ID,
		Nodes:      []*models.InstanceNode{node},
		CreatedAt:  now,
	}

	return instance, node, nil
}

// recordDecision lands the actor's decision on their pending item at the
// current node. A decision is written once; a repeated record-only Send is a
// caller error, while a decided actor may still advance the chain.
func (e *Engine) recordDecision(node *models.InstanceNode, req SendRequest) error {
	item := node.ItemForOperator(req.ActorID)

	if item.Decision != models.DecisionPending {
		if req.NextOperatorID == "" {
			return fmt.Errorf("%w: operator %s at node %s", ErrAlreadyDecided, req.ActorID, node.ID)
		}

		return nil
	}

	if req.Approved {
		item.Decision = models.DecisionApproved
	} else {
		item.Decision = models.DecisionRejected
	}

	item.Comment = req.Comment
	if req.ActorDisplayName != "" {
		item.OperatorDisplayName = req.ActorDisplayName
	}

	return nil
}

// advance appends the arrival at the current step's successor with a pending
// item for the nominated operator.
func (e *Engine) advance(template *models.Template, instance *models.WorkflowInstance, currentNode *models.InstanceNode, req SendRequest) (eventbus.Event, error) {
	currentTemplateNode := template.NodeByID(currentNode.TemplateNodeID)
	if currentTemplateNode == nil {
		return nil, fmt.Errorf("%w: template node %s no longer exists",
			ErrNoSuchTransition, currentNode.TemplateNodeID)
	}

	next, displayName, err := ResolveNextStep(template, currentTemplateNode, req.NextOperatorID)
	if err != nil {
		return nil, fmt.Errorf("%w: operator %s from node %s", err, req.NextOperatorID, currentTemplateNode.ID)
	}

	// A pending arrival for the nominee at the successor step means this exact
	// advance already happened; a resubmitted Send must not duplicate it.
	for _, node := range instance.Nodes {
		if node.TemplateNodeID != next.ID {
			continue
		}

		if item := node.ItemForOperator(req.NextOperatorID); item != nil && item.Decision == models.DecisionPending {
			return nil, fmt.Errorf("%w: operator %s already awaited at node %s",
				ErrAlreadyDecided, req.NextOperatorID, next.ID)
		}
	}

	arrival := e.now().UTC()
	if last := instance.LastArrival(); !arrival.After(last) {
		arrival = last.Add(arrivalIncrement)
	}

	nodeID, err := newID()
	if err != nil {
		return nil, err
	}

	itemID, err := newID()
	if err != nil {
		return nil, err
	}

	instance.Nodes = append(instance.Nodes, &models.InstanceNode{
		ID:             nodeID,
		InstanceID:     instance.ID,
		TemplateNodeID: next.ID,
		ArrivalAt:      arrival,
		Items: []*models.InstanceNodeItem{
			{
				ID:                  itemID,
				NodeID:              nodeID,
				OperatorID:          req.NextOperatorID,
				OperatorDisplayName: displayName,
				Kind:                models.OperationKindApprover,
				Decision:            models.DecisionPending,
			},
		},
	})

	return events.InstanceAdvanced{
		BaseEvent:      e.baseEvent(events.InstanceAdvancedEvent, instance),
		ActorID:        req.ActorID,
		NextOperatorID: req.NextOperatorID,
		TemplateNodeID: next.ID,
		ArrivalAt:      arrival,
	}, nil
}

func (e *Engine) baseEvent(eventType events.EventType, instance *models.WorkflowInstance) events.BaseEvent {
	return events.BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  e.now().UTC(),
		InstanceID: instance.ID,
		DocID:      instance.DocID,
		TemplateID: instance.TemplateID,
	}
}

// publish sends lifecycle events best effort; routing outcome never depends
// on the bus being reachable.
func (e *Engine) publish(ctx context.Context, key string, pending []eventbus.Event) {
	if e.bus == nil {
		return
	}

	for _, event := range pending {
		if err := e.bus.Publish(ctx, key, event); err != nil {
			e.logger.ErrorContext(ctx, "failed to publish workflow event",
				"event_type", event.GetType(), "doc_id", key, "error", err)
		}
	}
}

func newID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate id: %w", err)
	}

	return id.String(), nil
}

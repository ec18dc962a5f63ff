// Package events defines event types and structures for approval workflow
// lifecycle notifications.
package events

import (
	"time"
)

type EventType string

// Topic is the bus topic all workflow lifecycle events are published to.
const Topic = "powerlms.workflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	InstanceCreatedEvent    EventType = "workflow.instance.created"
	InstanceAdvancedEvent   EventType = "workflow.instance.advanced"
	InstanceCompletedEvent  EventType = "workflow.instance.completed"
	InstanceTerminatedEvent EventType = "workflow.instance.terminated"
)

type BaseEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	InstanceID string    `json:"instance_id"`
	DocID      string    `json:"doc_id"`
	TemplateID string    `json:"template_id"`
}

// InstanceCreated is published when a first Send opens a new traversal.
type InstanceCreated struct {
	BaseEvent

	ActorID        string `json:"actor_id"`
	TemplateNodeID string `json:"template_node_id"`
}

func (e InstanceCreated) GetType() EventType {
	return InstanceCreatedEvent
}

// InstanceAdvanced is published when a Send appends a new arrival node.
type InstanceAdvanced struct {
	BaseEvent

	ActorID        string    `json:"actor_id"`
	NextOperatorID string    `json:"next_operator_id"`
	TemplateNodeID string    `json:"template_node_id"`
	ArrivalAt      time.Time `json:"arrival_at"`
}

func (e InstanceAdvanced) GetType() EventType {
	return InstanceAdvancedEvent
}

// InstanceCompleted is published when the traversal's derived status becomes completed.
type InstanceCompleted struct {
	BaseEvent

	ActorID string `json:"actor_id"`
}

func (e InstanceCompleted) GetType() EventType {
	return InstanceCompletedEvent
}

// InstanceTerminated is published when a rejection closes the traversal.
type InstanceTerminated struct {
	BaseEvent

	ActorID string `json:"actor_id"`
	Comment string `json:"comment,omitempty"`
}

func (e InstanceTerminated) GetType() EventType {
	return InstanceTerminatedEvent
}

package domain

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned when no session matches a lookup.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionConflict is returned by SessionStore.Create when a live session
// already exists for the same contact, phone number and project.
var ErrSessionConflict = errors.New("live session already exists for contact")

// ErrFlowNotFound is returned when no flow matches a lookup.
var ErrFlowNotFound = errors.New("flow not found")

// ErrCredentialsNotFound is returned by a CredentialResolver that holds no
// credentials for a phone number. The engine then sends with empty credentials
// so the sender can apply its own default.
var ErrCredentialsNotFound = errors.New("credentials not found")

// ErrUnknownKind is returned when a node declares a type the engine cannot execute.
var ErrUnknownKind = errors.New("unknown node type")

// Failure taxonomy of the engine. Every failure ends the current session.
var (
	// ErrTriggerGap: neither a trigger nor a fallback flow matched.
	ErrTriggerGap = errors.New("no flow matched the inbound event")
	// ErrTraversalGap: a required edge is missing or points to an unknown node.
	ErrTraversalGap = errors.New("flow traversal gap")
	// ErrSendFailed: the delivery collaborator reported a failure.
	ErrSendFailed = errors.New("message send failed")
	// ErrEvaluation: a condition could not be evaluated. Never surfaced; degrades to false.
	ErrEvaluation = errors.New("condition evaluation failed")
	// ErrStepLimit: one event ran more node executions than allowed.
	ErrStepLimit = errors.New("step limit exceeded")
	// ErrUnhandled: any other failure during execution.
	ErrUnhandled = errors.New("unhandled execution error")
)

// Traversal gap details.
var (
	ErrNodeNotFound = fmt.Errorf("%w: node not found", ErrTraversalGap)
	ErrEdgeNotFound = fmt.Errorf("%w: no outgoing edge", ErrTraversalGap)
)

// NodeError attaches the failing node to an engine error.
type NodeError struct {
	FlowID string
	NodeID string
	Kind   NodeKind
	Err    error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("flow %s node %s (%s): %v", e.FlowID, e.NodeID, e.Kind, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

/*
Package domain contains the core models of the chatflow engine.

It defines flows (nodes and labeled edges), sessions and the messages the
engine exchanges with its collaborators. This package is kept pure and free
of I/O, following Hexagonal Architecture principles.

# Key Entities

  - Flow: a triggerable graph of Nodes connected by Edges.
  - Node: a typed step; its Data decodes into a kind-specific Payload.
  - Session: the persisted per-contact position inside a flow.
  - InboundEvent / Result: the input and output of one engine invocation.
  - SessionDiff: the delta published to real-time subscribers.
*/
package domain

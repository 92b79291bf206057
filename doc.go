/*
Package chatflow is a flow execution engine for a multi-tenant messaging backend.

Each inbound message from a contact is routed either to a fresh session of the
flow whose trigger keyword it matches, or to the live session that is waiting
for that contact's reply. The engine then walks the flow graph node by node,
sending messages through a MessageSender, until it must wait for input again
or the flow ends.

# Usage

	engine, err := chatflow.New(
		chatflow.WithFlowsDir("./flows"),
		chatflow.WithSender(cloudapi.New()),
	)
	res, err := engine.HandleIncomingEvent(ctx, event)

Flows can also be provided programmatically with WithFlowProvider, and
sessions can be kept in Redis with WithSessionStore and WithLocker so several
replicas share the same contacts safely.
*/
package chatflow

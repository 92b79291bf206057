/*
Package dsl provides a Go DSL for programmatically constructing chatflow flows.

It allows developers to define conversation graphs using a fluent builder
instead of hand-writing node data maps and edges. This is particularly useful
for tests, demos and flows generated at runtime.

Example usage:

	b := dsl.New("welcome").Project("p1").Trigger("hi")

	b.Start("start").Go("ask_name")

	b.Collect("ask_name", dsl.Field("name", "What is your name?")).
		Go("menu")

	b.Buttons("menu", "Nice to meet you, {$.collected_data.name}! Need help?",
		dsl.Reply("yes", "Yes"), dsl.Reply("no", "No")).
		On("yes", "agent").
		On("no", "bye")

	b.Handoff("agent", "")
	b.Text("bye", "Goodbye!")

	flow, err := b.Build()
	// ... pass memory.NewFlows(flow) to chatflow.WithFlowProvider
*/
package dsl

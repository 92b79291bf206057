package chatflow_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/chatflow"
	"github.com/aretw0/chatflow/pkg/adapters/memory"
	"github.com/aretw0/chatflow/pkg/domain"
)

// ExampleNew_memory demonstrates how to use the Engine with an in-memory flow definition.
// This is useful for testing, embedded scenarios, or when you don't want to rely on the file system.
func ExampleNew_memory() {
	flows, err := memory.NewFlowsFromYAML([]byte(`
id: menu
status: active
projectId: p1
triggerKeyword: menu
nodes:
  - id: start
    type: start
  - id: pick
    type: sendButtons
    data:
      body: "Do you want to proceed?"
      buttons:
        - id: "yes"
          title: "Yes"
        - id: "no"
          title: "No"
  - id: great
    type: sendText
    data:
      text: "Great! You moved forward."
  - id: bye
    type: sendText
    data:
      text: "Okay, bye."
edges:
  - {source: start, sourceHandle: a, target: pick}
  - {source: pick, sourceHandle: "yes", target: great}
  - {source: pick, sourceHandle: "no", target: bye}
`))
	if err != nil {
		log.Fatal(err)
	}

	sender := memory.NewSender()
	sender.OnSend = func(msg domain.OutboundMessage) {
		if msg.Type == domain.MessageText {
			fmt.Println(msg.Payload["body"])
		}
	}

	engine, err := chatflow.New(chatflow.WithFlowProvider(flows), chatflow.WithSender(sender))
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	ev := domain.InboundEvent{ContactID: "c1", PhoneNumberID: "ph1", ProjectID: "p1", UserInput: "menu"}
	res, _ := engine.HandleIncomingEvent(ctx, ev)
	fmt.Println(res.Session.Status)

	ev.UserInput, ev.InteractiveResponseID = "Yes", "yes"
	res, _ = engine.HandleIncomingEvent(ctx, ev)
	fmt.Println(res.Session.Status)

	// Output:
	// awaiting_input
	// Great! You moved forward.
	// ended
}

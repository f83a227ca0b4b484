package conversation

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	contractx "github.com/tanpawarit/chative-customer-assistant/agent/contract"
)

func (e *Engine) compileTurnGraph(
	ctx context.Context,
) (compose.Runnable[turnInput, contractx.ChatResponse], error) {
	graph := compose.NewGraph[turnInput, contractx.ChatResponse]()

	if err := graph.AddLambdaNode("append_user_turn",
		compose.InvokableLambda(func(ctx context.Context, in turnInput) (*turnState, error) {
			return appendUserTurn(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node append_user_turn: %w", err)
	}

	if err := graph.AddLambdaNode("generate_reply",
		compose.InvokableLambda(func(ctx context.Context, in *turnState) (*turnState, error) {
			return generateReply(ctx, in, e.model)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node generate_reply: %w", err)
	}

	if err := graph.AddLambdaNode("extract_intent",
		compose.InvokableLambda(func(ctx context.Context, in *turnState) (*turnState, error) {
			return extractIntent(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node extract_intent: %w", err)
	}

	if err := graph.AddLambdaNode("execute_action",
		compose.InvokableLambda(func(ctx context.Context, in *turnState) (*turnState, error) {
			return e.executeAction(ctx, in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node execute_action: %w", err)
	}

	if err := graph.AddLambdaNode("generate_follow_up",
		compose.InvokableLambda(func(ctx context.Context, in *turnState) (*turnState, error) {
			return generateFollowUp(ctx, in, e.model)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node generate_follow_up: %w", err)
	}

	if err := graph.AddLambdaNode("finalize",
		compose.InvokableLambda(func(ctx context.Context, in *turnState) (contractx.ChatResponse, error) {
			return finalize(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node finalize: %w", err)
	}

	edges := [][2]string{
		{compose.START, "append_user_turn"},
		{"append_user_turn", "generate_reply"},
		{"generate_reply", "extract_intent"},
		{"extract_intent", "execute_action"},
		{"execute_action", "generate_follow_up"},
		{"generate_follow_up", "finalize"},
		{"finalize", compose.END},
	}

	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("conversation.turn"))
	if err != nil {
		return nil, fmt.Errorf("compile turn graph: %w", err)
	}
	return runner, nil
}

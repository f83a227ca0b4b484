package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/chative-customer-assistant/agent/contract"
	"github.com/tanpawarit/chative-customer-assistant/agent/intent"
	statex "github.com/tanpawarit/chative-customer-assistant/agent/state"
)

// FallbackFollowUp replaces an empty follow-up reply from the model.
const FallbackFollowUp = "Action completed."

type turnInput struct {
	Session *statex.Session
	Message string
	Context map[string]any
}

type turnState struct {
	session *statex.Session
	reply   string
	intent  intent.Intent
	actions []contractx.ActionResult
}

func appendUserTurn(in turnInput) (*turnState, error) {
	if in.Session == nil {
		return nil, errors.New("turn has no session")
	}
	content, err := userContent(in.Message, in.Context)
	if err != nil {
		return nil, err
	}
	in.Session.Append(contractx.Message{Role: contractx.RoleUser, Content: content})
	return &turnState{session: in.Session, actions: []contractx.ActionResult{}}, nil
}

func userContent(message string, extra map[string]any) (string, error) {
	if extra == nil {
		return message, nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(extra); err != nil {
		return "", fmt.Errorf("encode request context: %w", err)
	}
	return message + "\n\nAdditional context: " + strings.TrimRight(buf.String(), "\n"), nil
}

// generateReply stores the raw reply, intent object included, so the model
// sees what it asked for on the next call.
func generateReply(ctx context.Context, st *turnState, model contractx.ChatModel) (*turnState, error) {
	reply, err := model.Complete(ctx, st.session.Messages())
	if err != nil {
		return nil, fmt.Errorf("generate reply: %w", err)
	}
	if reply == "" {
		return nil, fmt.Errorf("generate reply: %w: no response from model", contractx.ErrModelInvoke)
	}
	st.reply = reply
	st.session.Append(contractx.Message{Role: contractx.RoleAssistant, Content: reply})
	return st, nil
}

func extractIntent(st *turnState) (*turnState, error) {
	st.intent = intent.Extract(st.reply)
	return st, nil
}

func (e *Engine) executeAction(ctx context.Context, st *turnState) (*turnState, error) {
	if !st.intent.Found {
		return st, nil
	}

	var result contractx.ActionResult
	switch st.intent.Action {
	case contractx.ActionCreateCustomer:
		result = e.actions.CreateCustomer(ctx, st.intent.Data)
	default:
		result = contractx.ActionResult{
			Tool:  st.intent.Action,
			Input: st.intent.Data,
			Error: "Unknown action: " + st.intent.Action,
		}
	}
	st.actions = append(st.actions, result)

	e.logger.Info().
		Str("session_id", st.session.ID).
		Str("action", st.intent.Action).
		Bool("failed", result.Failed()).
		Msg("action executed")

	if e.audit != nil {
		if err := e.audit.Record(ctx, st.session.ID, result); err != nil {
			e.logger.Warn().Err(err).Str("session_id", st.session.ID).Msg("audit record failed")
		}
	}
	return st, nil
}

func generateFollowUp(ctx context.Context, st *turnState, model contractx.ChatModel) (*turnState, error) {
	if len(st.actions) == 0 {
		return st, nil
	}

	st.session.Append(contractx.Message{
		Role:    contractx.RoleSystem,
		Content: followUpPrompt(st.intent.Action, st.actions[len(st.actions)-1]),
	})
	reply, err := model.Complete(ctx, st.session.Messages())
	if err != nil {
		return nil, fmt.Errorf("generate follow-up: %w", err)
	}
	if reply == "" {
		reply = FallbackFollowUp
	}
	st.reply = reply
	st.session.Append(contractx.Message{Role: contractx.RoleAssistant, Content: reply})
	return st, nil
}

func followUpPrompt(action string, result contractx.ActionResult) string {
	outcome := "Error: " + result.Error
	if !result.Failed() {
		outcome = "Success: " + indent(result.Result)
	}
	return fmt.Sprintf(
		"The %s action was executed with the following result:\n%s\n\nGenerate a friendly response to inform the user about the result.",
		action, outcome,
	)
}

func indent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "null"
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

func finalize(st *turnState) (contractx.ChatResponse, error) {
	return contractx.ChatResponse{
		SessionID: st.session.ID,
		Reply:     st.reply,
		Actions:   st.actions,
	}, nil
}

package api

import (
	"github.com/tidwall/gjson"

	contractx "github.com/tanpawarit/chative-customer-assistant/agent/contract"
)

type PanelKind string

const (
	PanelSuccess PanelKind = "success"
	PanelError   PanelKind = "error"
)

// Panel is the presentation of one action result for the chat widget.
type Panel struct {
	Kind       PanelKind `json:"kind"`
	Tool       string    `json:"tool,omitempty"`
	Title      string    `json:"title"`
	CustomerID string    `json:"customer_id,omitempty"`
	Message    string    `json:"message,omitempty"`
}

// RenderActions turns action results into panels. A result whose payload has
// status "success" gets a success panel; a failed action or a payload with
// status "error" gets an error panel. Anything else renders nothing.
func RenderActions(actions []contractx.ActionResult) []Panel {
	panels := make([]Panel, 0, len(actions))
	for _, action := range actions {
		status := gjson.GetBytes(action.Result, "status").String()
		switch {
		case !action.Failed() && status == "success":
			panels = append(panels, Panel{
				Kind:       PanelSuccess,
				Tool:       action.Tool,
				Title:      "Customer Created Successfully",
				CustomerID: gjson.GetBytes(action.Result, "customerId").String(),
			})
		case action.Failed() || status == "error":
			panels = append(panels, Panel{
				Kind:    PanelError,
				Tool:    action.Tool,
				Title:   "Action Failed",
				Message: errorMessage(action),
			})
		}
	}
	return panels
}

func errorMessage(action contractx.ActionResult) string {
	if action.Error != "" {
		return action.Error
	}
	if msg := gjson.GetBytes(action.Result, "error").String(); msg != "" {
		return msg
	}
	return "Unknown error"
}

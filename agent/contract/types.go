package contract

import "encoding/json"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Action names the model may emit in an intent object.
const (
	ActionCreateCustomer      = "createCustomer"
	ActionGetAddressByZipcode = "getAddressByZipcode"
)

// ActionResult is the outcome of one executed action. Error is set when the
// action could not run or its transport failed; otherwise Result holds the
// normalized tool payload.
type ActionResult struct {
	Tool   string          `json:"tool"`
	Input  json.RawMessage `json:"input,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

func (r ActionResult) Failed() bool {
	return r.Error != ""
}

type ChatRequest struct {
	SessionID string         `json:"session_id,omitempty"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
}

type ChatResponse struct {
	SessionID string         `json:"session_id"`
	Reply     string         `json:"reply"`
	Actions   []ActionResult `json:"actions"`
}

package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	contractx "github.com/tanpawarit/chative-customer-assistant/agent/contract"
	"github.com/tanpawarit/chative-customer-assistant/agent/conversation"
	statex "github.com/tanpawarit/chative-customer-assistant/agent/state"
)

const invalidMessageDetails = "Message field is required and must be a string"

type chatRequest struct {
	Message   any            `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
}

type chatResponse struct {
	Reply     string                   `json:"reply"`
	Actions   []contractx.ActionResult `json:"actions"`
	Panels    []Panel                  `json:"panels"`
	SessionID string                   `json:"session_id"`
}

type sessionRequest struct {
	SessionID string `json:"session_id,omitempty"`
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": s.now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
}

func (s *Server) chat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return invalidRequest(c, invalidMessageDetails)
	}
	message, ok := req.Message.(string)
	if !ok || message == "" {
		return invalidRequest(c, invalidMessageDetails)
	}

	resp, err := s.conv.Chat(c.Request().Context(), contractx.ChatRequest{
		SessionID: req.SessionID,
		Message:   message,
		Context:   req.Context,
	})
	if err != nil {
		return s.domainError(c, err, req.SessionID)
	}

	actions := resp.Actions
	if actions == nil {
		actions = []contractx.ActionResult{}
	}
	return c.JSON(http.StatusOK, chatResponse{
		Reply:     resp.Reply,
		Actions:   actions,
		Panels:    RenderActions(actions),
		SessionID: resp.SessionID,
	})
}

func (s *Server) reset(c echo.Context) error {
	var req sessionRequest
	if err := c.Bind(&req); err != nil {
		return invalidRequest(c, "Request body must be a JSON object")
	}
	if err := s.conv.Reset(c.Request().Context(), req.SessionID); err != nil {
		return s.domainError(c, err, req.SessionID)
	}
	return c.JSON(http.StatusOK, statusResponse{Status: "success", Message: "Conversation reset"})
}

func (s *Server) createSession(c echo.Context) error {
	id, err := s.conv.CreateSession(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, sessionRequest{SessionID: id})
}

func (s *Server) deleteSession(c echo.Context) error {
	id := c.Param("id")
	if err := s.conv.DeleteSession(c.Request().Context(), id); err != nil {
		return s.domainError(c, err, id)
	}
	return c.JSON(http.StatusOK, statusResponse{Status: "success", Message: "Session deleted"})
}

func (s *Server) domainError(c echo.Context, err error, sessionID string) error {
	switch {
	case errors.Is(err, conversation.ErrInvalidMessage):
		return invalidRequest(c, invalidMessageDetails)
	case errors.Is(err, statex.ErrInvalidSession):
		return invalidRequest(c, "Session id must not be empty")
	case errors.Is(err, statex.ErrSessionNotFound):
		return c.JSON(http.StatusNotFound, errorBody{Error: "Session not found", Details: sessionID})
	default:
		return err
	}
}

func invalidRequest(c echo.Context, details string) error {
	return c.JSON(http.StatusBadRequest, errorBody{Error: "Invalid request", Details: details})
}

var _ Conversation = (*conversation.Engine)(nil)

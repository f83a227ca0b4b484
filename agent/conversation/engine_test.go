package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	contractx "github.com/tanpawarit/chative-customer-assistant/agent/contract"
	statex "github.com/tanpawarit/chative-customer-assistant/agent/state"
)

const testSystemPrompt = "You are a customer service assistant."

type fakeModel struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   [][]contractx.Message
}

func (f *fakeModel) Complete(ctx context.Context, messages []contractx.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, messages)
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) == 0 {
		return "", nil
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	return reply, nil
}

type fakeRunner struct {
	mu      sync.Mutex
	result  contractx.ActionResult
	created []json.RawMessage
	lookups []string
}

func (f *fakeRunner) CreateCustomer(ctx context.Context, data json.RawMessage) contractx.ActionResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, data)
	out := f.result
	out.Input = data
	return out
}

func (f *fakeRunner) LookupAddress(ctx context.Context, zipcode string) contractx.ActionResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups = append(f.lookups, zipcode)
	return contractx.ActionResult{Tool: contractx.ActionGetAddressByZipcode}
}

type auditEntry struct {
	sessionID string
	result    contractx.ActionResult
}

type fakeAudit struct {
	err     error
	entries []auditEntry
}

func (f *fakeAudit) Record(ctx context.Context, sessionID string, result contractx.ActionResult) error {
	f.entries = append(f.entries, auditEntry{sessionID: sessionID, result: result})
	return f.err
}

func newTestEngine(t *testing.T, model *fakeModel, runner *fakeRunner, opts ...Option) (*Engine, *statex.MemoryStore) {
	t.Helper()
	store := statex.NewMemoryStore(testSystemPrompt)
	engine, err := New(store, model, runner, opts...)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine, store
}

func TestChatCreatesCustomerEndToEnd(t *testing.T) {
	t.Parallel()

	model := &fakeModel{replies: []string{
		"Perfect, registering you now.\n```json\n{\"action\":\"createCustomer\",\"data\":{\"name\":\"Ana Silva\",\"email\":\"ana@example.com\",\"phone\":\"+55 11 99999-0000\"}}\n```",
		"All set, Ana! Your customer id is c-123.",
	}}
	runner := &fakeRunner{result: contractx.ActionResult{
		Tool:   contractx.ActionCreateCustomer,
		Result: json.RawMessage(`{"status":"success","customerId":"c-123","data":{"id":"c-123"}}`),
	}}
	audit := &fakeAudit{}
	engine, _ := newTestEngine(t, model, runner, WithAuditRecorder(audit))

	resp, err := engine.Chat(context.Background(), contractx.ChatRequest{
		Message: "My name is Ana Silva, ana@example.com, +55 11 99999-0000",
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}

	if resp.SessionID != statex.DefaultSessionID {
		t.Fatalf("session = %q, want %q", resp.SessionID, statex.DefaultSessionID)
	}
	if resp.Reply != "All set, Ana! Your customer id is c-123." {
		t.Fatalf("unexpected reply: %q", resp.Reply)
	}
	if len(resp.Actions) != 1 || resp.Actions[0].Failed() {
		t.Fatalf("unexpected actions: %+v", resp.Actions)
	}

	if len(runner.created) != 1 {
		t.Fatalf("expected one createCustomer call, got %d", len(runner.created))
	}
	var data map[string]string
	if err := json.Unmarshal(runner.created[0], &data); err != nil {
		t.Fatalf("decode forwarded data: %v", err)
	}
	if data["name"] != "Ana Silva" || data["email"] != "ana@example.com" || data["phone"] != "+55 11 99999-0000" {
		t.Fatalf("unexpected forwarded data: %v", data)
	}

	if len(model.calls) != 2 {
		t.Fatalf("expected two model calls, got %d", len(model.calls))
	}
	followUp := model.calls[1][len(model.calls[1])-1]
	if followUp.Role != contractx.RoleSystem {
		t.Fatalf("follow-up role = %q", followUp.Role)
	}
	if !strings.HasPrefix(followUp.Content, "The createCustomer action was executed with the following result:\nSuccess: {") {
		t.Fatalf("unexpected follow-up prompt: %q", followUp.Content)
	}
	if !strings.Contains(followUp.Content, `"customerId": "c-123"`) {
		t.Fatalf("follow-up prompt is not indented JSON: %q", followUp.Content)
	}
	if !strings.HasSuffix(followUp.Content, "\n\nGenerate a friendly response to inform the user about the result.") {
		t.Fatalf("unexpected follow-up suffix: %q", followUp.Content)
	}

	history, err := engine.History(context.Background(), "")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	wantRoles := []contractx.Role{
		contractx.RoleSystem, contractx.RoleUser, contractx.RoleAssistant,
		contractx.RoleSystem, contractx.RoleAssistant,
	}
	if len(history) != len(wantRoles) {
		t.Fatalf("history length = %d, want %d", len(history), len(wantRoles))
	}
	for i, role := range wantRoles {
		if history[i].Role != role {
			t.Fatalf("history[%d].Role = %q, want %q", i, history[i].Role, role)
		}
	}
	if !strings.Contains(history[2].Content, `"action":"createCustomer"`) {
		t.Fatalf("raw reply was not kept: %q", history[2].Content)
	}

	if len(audit.entries) != 1 || audit.entries[0].sessionID != statex.DefaultSessionID {
		t.Fatalf("unexpected audit entries: %+v", audit.entries)
	}
}

func TestChatWithoutIntentCallsModelOnce(t *testing.T) {
	t.Parallel()

	model := &fakeModel{replies: []string{"Hello! What is your name?"}}
	runner := &fakeRunner{}
	engine, _ := newTestEngine(t, model, runner)

	resp, err := engine.Chat(context.Background(), contractx.ChatRequest{Message: "hi"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Reply != "Hello! What is your name?" {
		t.Fatalf("unexpected reply: %q", resp.Reply)
	}
	if resp.Actions == nil || len(resp.Actions) != 0 {
		t.Fatalf("expected empty non-nil actions, got %#v", resp.Actions)
	}
	if len(model.calls) != 1 || len(runner.created) != 0 {
		t.Fatalf("model calls = %d, runner calls = %d", len(model.calls), len(runner.created))
	}
	history, _ := engine.History(context.Background(), "")
	if len(history) != 3 {
		t.Fatalf("history length = %d, want 3", len(history))
	}
}

func TestChatAppendsRequestContext(t *testing.T) {
	t.Parallel()

	model := &fakeModel{replies: []string{"ok"}}
	engine, _ := newTestEngine(t, model, &fakeRunner{})

	_, err := engine.Chat(context.Background(), contractx.ChatRequest{
		Message: "hi",
		Context: map[string]any{"page": "signup", "ref": "a&b"},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	user := model.calls[0][1]
	want := "hi\n\nAdditional context: {\"page\":\"signup\",\"ref\":\"a&b\"}"
	if user.Role != contractx.RoleUser || user.Content != want {
		t.Fatalf("user turn = %+v, want content %q", user, want)
	}
}

func TestChatUnknownActionSkipsRunner(t *testing.T) {
	t.Parallel()

	model := &fakeModel{replies: []string{
		`{"action":"deleteCustomer","data":{"id":"c-1"}}`,
		"Sorry, I cannot do that.",
	}}
	runner := &fakeRunner{}
	engine, _ := newTestEngine(t, model, runner)

	resp, err := engine.Chat(context.Background(), contractx.ChatRequest{Message: "delete me"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if len(runner.created) != 0 || len(runner.lookups) != 0 {
		t.Fatalf("runner must not be called for unknown actions")
	}
	if len(resp.Actions) != 1 || resp.Actions[0].Error != "Unknown action: deleteCustomer" {
		t.Fatalf("unexpected actions: %+v", resp.Actions)
	}
	if got := resp.Actions[0]; got.Tool != "deleteCustomer" || string(got.Input) != `{"id":"c-1"}` {
		t.Fatalf("unknown action lost its name or input: tool=%q input=%s", got.Tool, got.Input)
	}
	followUp := model.calls[1][len(model.calls[1])-1].Content
	if !strings.Contains(followUp, "The deleteCustomer action was executed with the following result:\nError: Unknown action: deleteCustomer") {
		t.Fatalf("unexpected follow-up prompt: %q", followUp)
	}
}

func TestChatEmptyFollowUpFallsBack(t *testing.T) {
	t.Parallel()

	model := &fakeModel{replies: []string{`{"action":"createCustomer","data":{}}`, ""}}
	runner := &fakeRunner{result: contractx.ActionResult{
		Tool:   contractx.ActionCreateCustomer,
		Result: json.RawMessage(`{"status":"error","error":"Validation failed","errors":["name is required"]}`),
	}}
	audit := &fakeAudit{err: errors.New("db down")}
	engine, _ := newTestEngine(t, model, runner, WithAuditRecorder(audit))

	resp, err := engine.Chat(context.Background(), contractx.ChatRequest{Message: "register me"})
	if err != nil {
		t.Fatalf("audit failure must not fail the turn: %v", err)
	}
	if resp.Reply != FallbackFollowUp {
		t.Fatalf("reply = %q, want %q", resp.Reply, FallbackFollowUp)
	}
	history, _ := engine.History(context.Background(), "")
	if last := history[len(history)-1]; last.Role != contractx.RoleAssistant || last.Content != FallbackFollowUp {
		t.Fatalf("unexpected last message: %+v", last)
	}
}

func TestChatModelErrorIsReturned(t *testing.T) {
	t.Parallel()

	model := &fakeModel{err: fmt.Errorf("%w: upstream 500", contractx.ErrModelInvoke)}
	engine, _ := newTestEngine(t, model, &fakeRunner{})

	_, err := engine.Chat(context.Background(), contractx.ChatRequest{Message: "hi"})
	if !errors.Is(err, contractx.ErrModelInvoke) {
		t.Fatalf("expected ErrModelInvoke, got %v", err)
	}
}

func TestChatEmptyReplyIsModelError(t *testing.T) {
	t.Parallel()

	model := &fakeModel{}
	engine, _ := newTestEngine(t, model, &fakeRunner{})

	_, err := engine.Chat(context.Background(), contractx.ChatRequest{Message: "hi"})
	if !errors.Is(err, contractx.ErrModelInvoke) {
		t.Fatalf("expected ErrModelInvoke, got %v", err)
	}
	history, _ := engine.History(context.Background(), "")
	if len(history) != 2 || history[1].Role != contractx.RoleUser {
		t.Fatalf("empty reply must not be stored: %+v", history)
	}
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	t.Parallel()

	engine, _ := newTestEngine(t, &fakeModel{}, &fakeRunner{})
	if _, err := engine.Chat(context.Background(), contractx.ChatRequest{}); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage, got %v", err)
	}
}

func TestChatUnknownSession(t *testing.T) {
	t.Parallel()

	engine, _ := newTestEngine(t, &fakeModel{}, &fakeRunner{})
	_, err := engine.Chat(context.Background(), contractx.ChatRequest{SessionID: "missing", Message: "hi"})
	if !errors.Is(err, statex.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	t.Parallel()

	model := &fakeModel{replies: []string{"one", "two"}}
	engine, _ := newTestEngine(t, model, &fakeRunner{})
	ctx := context.Background()

	first, err := engine.CreateSession(ctx)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	second, err := engine.CreateSession(ctx)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if first == second {
		t.Fatalf("session ids must differ")
	}

	if _, err := engine.Chat(ctx, contractx.ChatRequest{SessionID: first, Message: "a"}); err != nil {
		t.Fatalf("chat: %v", err)
	}
	if _, err := engine.Chat(ctx, contractx.ChatRequest{SessionID: second, Message: "b"}); err != nil {
		t.Fatalf("chat: %v", err)
	}

	h1, _ := engine.History(ctx, first)
	h2, _ := engine.History(ctx, second)
	if len(h1) != 3 || len(h2) != 3 || h1[1].Content != "a" || h2[1].Content != "b" {
		t.Fatalf("histories leaked: %+v / %+v", h1, h2)
	}

	if err := engine.DeleteSession(ctx, first); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := engine.History(ctx, first); !errors.Is(err, statex.ErrSessionNotFound) {
		t.Fatalf("expected deleted session to be gone, got %v", err)
	}
}

func TestResetIsIdempotent(t *testing.T) {
	t.Parallel()

	model := &fakeModel{replies: []string{"hello"}}
	engine, _ := newTestEngine(t, model, &fakeRunner{})
	ctx := context.Background()

	if _, err := engine.Chat(ctx, contractx.ChatRequest{Message: "hi"}); err != nil {
		t.Fatalf("chat: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := engine.Reset(ctx, ""); err != nil {
			t.Fatalf("reset %d: %v", i, err)
		}
		history, _ := engine.History(ctx, "")
		if len(history) != 1 || history[0].Role != contractx.RoleSystem || history[0].Content != testSystemPrompt {
			t.Fatalf("reset %d left %+v", i, history)
		}
	}
}

func TestConcurrentTurnsAreSerialized(t *testing.T) {
	t.Parallel()

	const turns = 10
	replies := make([]string, turns)
	for i := range replies {
		replies[i] = "ok"
	}
	model := &fakeModel{replies: replies}
	engine, _ := newTestEngine(t, model, &fakeRunner{})

	var wg sync.WaitGroup
	errs := make(chan error, turns)
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := engine.Chat(context.Background(), contractx.ChatRequest{Message: fmt.Sprintf("m%d", i)})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("chat: %v", err)
		}
	}

	history, _ := engine.History(context.Background(), "")
	if len(history) != 1+2*turns {
		t.Fatalf("history length = %d, want %d", len(history), 1+2*turns)
	}
	for i := 1; i < len(history); i += 2 {
		if history[i].Role != contractx.RoleUser || history[i+1].Role != contractx.RoleAssistant {
			t.Fatalf("turns interleaved at %d: %+v %+v", i, history[i], history[i+1])
		}
	}
}

// evictingStore drops a session right after handing it out once, the way
// the idle sweeper can between a lookup and the turn lock.
type evictingStore struct {
	*statex.MemoryStore
	mu      sync.Mutex
	evicted bool
}

func (s *evictingStore) evictOnce(ctx context.Context, sess *statex.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.evicted {
		return
	}
	s.evicted = true
	_ = s.MemoryStore.Delete(ctx, sess.ID)
}

func (s *evictingStore) Get(ctx context.Context, id string) (*statex.Session, error) {
	sess, err := s.MemoryStore.Get(ctx, id)
	if err == nil {
		s.evictOnce(ctx, sess)
	}
	return sess, err
}

func (s *evictingStore) Ensure(ctx context.Context, id string) (*statex.Session, error) {
	sess, err := s.MemoryStore.Ensure(ctx, id)
	if err == nil {
		s.evictOnce(ctx, sess)
	}
	return sess, err
}

func TestChatSessionEvictedBeforeLock(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := &evictingStore{MemoryStore: statex.NewMemoryStore(testSystemPrompt)}
	sess, err := store.MemoryStore.Create(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	model := &fakeModel{replies: []string{"hello"}}
	engine, err := New(store, model, &fakeRunner{})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	_, err = engine.Chat(ctx, contractx.ChatRequest{SessionID: sess.ID, Message: "hi"})
	if !errors.Is(err, statex.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if len(model.calls) != 0 {
		t.Fatalf("model called for an evicted session")
	}
}

func TestChatDefaultSessionRecreatedAfterEviction(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := &evictingStore{MemoryStore: statex.NewMemoryStore(testSystemPrompt)}
	model := &fakeModel{replies: []string{"hello"}}
	engine, err := New(store, model, &fakeRunner{})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	if _, err := engine.Chat(ctx, contractx.ChatRequest{Message: "hi"}); err != nil {
		t.Fatalf("chat: %v", err)
	}
	current, err := store.MemoryStore.Get(ctx, statex.DefaultSessionID)
	if err != nil {
		t.Fatalf("default session missing: %v", err)
	}
	if history := current.Messages(); len(history) != 3 {
		t.Fatalf("turn landed on a detached session: %+v", history)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore(testSystemPrompt)
	if _, err := New(nil, &fakeModel{}, &fakeRunner{}); err == nil {
		t.Fatalf("expected error for nil store")
	}
	if _, err := New(store, nil, &fakeRunner{}); err == nil {
		t.Fatalf("expected error for nil model")
	}
	if _, err := New(store, &fakeModel{}, nil); err == nil {
		t.Fatalf("expected error for nil runner")
	}
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pocketllama/chat-relay/internal/backend"
	"github.com/pocketllama/chat-relay/internal/crypto"
	"github.com/pocketllama/chat-relay/internal/model"
	"github.com/pocketllama/chat-relay/internal/store"
	"github.com/pocketllama/chat-relay/internal/upstream"
	"github.com/pocketllama/chat-relay/pkg/logger"
)

// fakeUpstream records dispatched payloads and plays back a canned stream.
type fakeUpstream struct {
	payloads []*upstream.ChatPayload
	targets  []upstream.Target
	body     string
	err      error
}

func (f *fakeUpstream) ChatStream(_ context.Context, target upstream.Target, payload *upstream.ChatPayload) (io.ReadCloser, error) {
	f.payloads = append(f.payloads, payload)
	f.targets = append(f.targets, target)
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader(f.body)), nil
}

func (f *fakeUpstream) ListLocalModels(context.Context) (*upstream.TagsResponse, error) {
	return &upstream.TagsResponse{}, nil
}

func (f *fakeUpstream) Healthy(context.Context) bool { return true }

// eventRecorder captures everything emitted to the client, JSON-encoded.
type eventRecorder struct {
	events []string
	failAt int // emit fails once len(events) reaches failAt (0 = never)
}

func (r *eventRecorder) emit(v any) error {
	if r.failAt > 0 && len(r.events) >= r.failAt {
		return errors.New("client gone")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	r.events = append(r.events, string(b))
	return nil
}

func newRelayFixture(t *testing.T, up *fakeUpstream, mode backend.Mode) (*RelayService, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "chats.db"), crypto.New("test"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	chats := NewChatService(st, logger.NewNop())
	return NewRelayService(st, chats, up, backend.Static(mode), logger.NewNop()), st
}

func userTurn(content string) []model.ChatMessage {
	return []model.ChatMessage{{Role: model.RoleUser, Content: content}}
}

const happyStream = `{"message":{"role":"assistant","content":"Hel"},"done":false}
{"message":{"role":"assistant","content":"lo!","thinking":"hmm"},"done":false}
{"message":{"role":"assistant","content":""},"done":true}
`

func TestRelay_NewChatFullExchange(t *testing.T) {
	up := &fakeUpstream{body: happyStream}
	relay, st := newRelayFixture(t, up, backend.ModeLocal)
	rec := &eventRecorder{}

	err := relay.Relay(context.Background(), &model.ChatRequest{
		ChatID:   nil,
		Model:    "llama3.2",
		Messages: userTurn("Hello there"),
	}, rec.emit)
	require.NoError(t, err)

	// chat_created precedes every content frame.
	require.GreaterOrEqual(t, len(rec.events), 4)
	require.JSONEq(t, `{"type":"chat_created","chatId":1}`, rec.events[0])
	require.JSONEq(t, `{"message":{"role":"assistant","content":"Hel"},"done":false}`, rec.events[1])

	chats, err := st.ListChats(context.Background())
	require.NoError(t, err)
	require.Len(t, chats, 1)
	require.Equal(t, "Hello there", chats[0].Title)

	messages, err := st.ListMessages(context.Background(), chats[0].ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	require.Equal(t, model.RoleUser, messages[0].Role)
	require.Equal(t, "Hello there", messages[0].Content)
	require.Equal(t, model.RoleAssistant, messages[1].Role)
	require.Equal(t, "Hello!", messages[1].Content)
	require.Equal(t, "hmm", messages[1].Thinking)

	require.Equal(t, []upstream.Target{upstream.TargetLocal}, up.targets)
}

func TestRelay_ExistingChatNoCreatedEvent(t *testing.T) {
	up := &fakeUpstream{body: happyStream}
	relay, st := newRelayFixture(t, up, backend.ModeLocal)

	chat, err := st.CreateChat(context.Background(), "existing", "llama3.2")
	require.NoError(t, err)

	rec := &eventRecorder{}
	err = relay.Relay(context.Background(), &model.ChatRequest{
		ChatID:   &chat.ID,
		Model:    "llama3.2",
		Messages: userTurn("again"),
	}, rec.emit)
	require.NoError(t, err)

	for _, ev := range rec.events {
		require.NotContains(t, ev, "chat_created")
	}

	messages, err := st.ListMessages(context.Background(), chat.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
}

func TestRelay_OnlyLastMessagePersisted(t *testing.T) {
	up := &fakeUpstream{body: happyStream}
	relay, st := newRelayFixture(t, up, backend.ModeLocal)

	chat, err := st.CreateChat(context.Background(), "existing", "llama3.2")
	require.NoError(t, err)

	rec := &eventRecorder{}
	err = relay.Relay(context.Background(), &model.ChatRequest{
		ChatID: &chat.ID,
		Model:  "llama3.2",
		Messages: []model.ChatMessage{
			{Role: model.RoleUser, Content: "old question"},
			{Role: model.RoleAssistant, Content: "old answer"},
			{Role: model.RoleUser, Content: "new question"},
		},
	}, rec.emit)
	require.NoError(t, err)

	messages, err := st.ListMessages(context.Background(), chat.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2, "prior history must not be re-persisted")
	require.Equal(t, "new question", messages[0].Content)
}

func TestRelay_ThinkForwarding(t *testing.T) {
	for _, tc := range []struct {
		think model.ThinkLevel
		want  string
	}{
		{think: "", want: ""},
		{think: model.ThinkNone, want: ""},
		{think: model.ThinkHigh, want: "high"},
		{think: model.ThinkLow, want: "low"},
	} {
		up := &fakeUpstream{body: happyStream}
		relay, _ := newRelayFixture(t, up, backend.ModeLocal)

		err := relay.Relay(context.Background(), &model.ChatRequest{
			Model:    "llama3.2",
			Messages: userTurn("hi"),
			Think:    tc.think,
		}, (&eventRecorder{}).emit)
		require.NoError(t, err)
		require.Len(t, up.payloads, 1)
		require.Equal(t, tc.want, up.payloads[0].Think, "think=%q", tc.think)
	}
}

func TestRelay_UpstreamStatusErrorEmitsSingleErrorEvent(t *testing.T) {
	up := &fakeUpstream{err: &upstream.StatusError{StatusCode: 502, Status: "502 Bad Gateway"}}
	relay, st := newRelayFixture(t, up, backend.ModeLocal)

	chat, err := st.CreateChat(context.Background(), "existing", "llama3.2")
	require.NoError(t, err)

	rec := &eventRecorder{}
	err = relay.Relay(context.Background(), &model.ChatRequest{
		ChatID:   &chat.ID,
		Model:    "llama3.2",
		Messages: userTurn("hi"),
	}, rec.emit)
	require.NoError(t, err)

	require.Len(t, rec.events, 1)
	require.JSONEq(t, `{"error":"Ollama API Error: 502 Bad Gateway"}`, rec.events[0])

	// The user turn is persisted before dispatch; no assistant turn exists.
	messages, err := st.ListMessages(context.Background(), chat.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.Equal(t, model.RoleUser, messages[0].Role)
}

func TestRelay_StreamWithoutDoneDropsPartial(t *testing.T) {
	up := &fakeUpstream{body: `{"message":{"role":"assistant","content":"par"},"done":false}` + "\n"}
	relay, st := newRelayFixture(t, up, backend.ModeLocal)

	chat, err := st.CreateChat(context.Background(), "existing", "llama3.2")
	require.NoError(t, err)

	rec := &eventRecorder{}
	err = relay.Relay(context.Background(), &model.ChatRequest{
		ChatID:   &chat.ID,
		Model:    "llama3.2",
		Messages: userTurn("hi"),
	}, rec.emit)
	require.NoError(t, err)

	messages, err := st.ListMessages(context.Background(), chat.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1, "partial assistant output must not be persisted")
}

func TestRelay_InBandErrorFrameDoesNotAbort(t *testing.T) {
	body := `{"error":"temporary hiccup"}` + "\n" + happyStream
	up := &fakeUpstream{body: body}
	relay, st := newRelayFixture(t, up, backend.ModeLocal)

	rec := &eventRecorder{}
	err := relay.Relay(context.Background(), &model.ChatRequest{
		Model:    "llama3.2",
		Messages: userTurn("hi"),
	}, rec.emit)
	require.NoError(t, err)

	// The error frame passes through verbatim and streaming continues.
	require.JSONEq(t, `{"error":"temporary hiccup"}`, rec.events[1])

	chats, err := st.ListChats(context.Background())
	require.NoError(t, err)
	messages, err := st.ListMessages(context.Background(), chats[0].ID)
	require.NoError(t, err)
	require.Equal(t, "Hello!", messages[1].Content)
}

func TestRelay_ClientDisconnectAbandonsStream(t *testing.T) {
	up := &fakeUpstream{body: happyStream}
	relay, _ := newRelayFixture(t, up, backend.ModeLocal)

	rec := &eventRecorder{failAt: 2}
	err := relay.Relay(context.Background(), &model.ChatRequest{
		Model:    "llama3.2",
		Messages: userTurn("hi"),
	}, rec.emit)
	require.Error(t, err)
}

func TestRelay_NoBackend(t *testing.T) {
	relay, _ := newRelayFixture(t, &fakeUpstream{}, backend.ModeNone)

	err := relay.Relay(context.Background(), &model.ChatRequest{
		Model:    "llama3.2",
		Messages: userTurn("hi"),
	}, (&eventRecorder{}).emit)
	require.ErrorIs(t, err, ErrNoBackend)
}

func TestDeriveTitle(t *testing.T) {
	require.Equal(t, "Hello there, how are you",
		DeriveTitle(userTurn("Hello there, how are you")))

	long := "This message is definitely longer than thirty characters"
	require.Equal(t, "This message is definitely lon...", DeriveTitle(userTurn(long)))

	require.Equal(t, "New Chat", DeriveTitle(nil))
	require.Equal(t, "New Chat", DeriveTitle([]model.ChatMessage{
		{Role: model.RoleSystem, Content: "be helpful"},
	}))

	// Truncation counts runes, not bytes.
	runes := strings.Repeat("你", 31)
	require.Equal(t, strings.Repeat("你", 30)+"...", DeriveTitle(userTurn(runes)))
}

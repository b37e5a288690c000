// ABOUTME: Tests for Teams webhook auth, activity conversion, replies, and approvals.

package teams

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-connect/internal/message"
	"github.com/2389/coven-connect/internal/platform"
)

var testSigningKey = []byte("test-signing-key")

func testKeyFunc(t *jwt.Token) (any, error) { return testSigningKey, nil }

func testAdapter() *Adapter {
	return New(Config{
		ListenAddr: "127.0.0.1:0",
		AppID:      "app-123",
		AppSecret:  "secret",
		BotName:    "Coven",
	}, testKeyFunc, nil)
}

// signedToken mints a webhook bearer token with the given claims applied
// over valid defaults.
func signedToken(t *testing.T, mutate func(jwt.MapClaims)) string {
	t.Helper()
	claims := jwt.MapClaims{
		"iss": botFrameworkIssuer,
		"aud": "app-123",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	if mutate != nil {
		mutate(claims)
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSigningKey)
	require.NoError(t, err)
	return token
}

func postActivity(t *testing.T, a *Adapter, token string, act activity, handler platform.Handler) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(act)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/messages", bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handleWebhook(context.Background(), rec, req, handler)
	return rec
}

func sampleActivity() activity {
	return activity{
		Type:       "message",
		ID:         "act-1",
		Text:       "<at>Coven</at> run the tests",
		ServiceURL: "https://smba.example.com/emea/",
		From:       account{ID: "29:user-1", Name: "User"},
		Conversation: conversationID{
			ID: "19:meeting_abc@thread.v2",
		},
		Timestamp: time.Now(),
	}
}

func TestWebhook_ValidTokenDelivers(t *testing.T) {
	a := testAdapter()

	var got *message.Unified
	rec := postActivity(t, a, signedToken(t, nil), sampleActivity(),
		func(ctx context.Context, msg *message.Unified) { got = msg })

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, message.PlatformTeams, got.Platform)
	assert.Equal(t, "run the tests", got.Text, "mention markup is stripped")
	assert.Equal(t, "19:meeting_abc@thread.v2", got.ChannelID)
	assert.Equal(t, "act-1", got.MessageID)
}

func TestWebhook_RejectsBadTokens(t *testing.T) {
	a := testAdapter()
	handler := func(ctx context.Context, msg *message.Unified) {
		t.Fatal("unauthorized request must not be delivered")
	}

	cases := map[string]string{
		"no token":       "",
		"wrong audience": signedToken(t, func(c jwt.MapClaims) { c["aud"] = "someone-else" }),
		"wrong issuer":   signedToken(t, func(c jwt.MapClaims) { c["iss"] = "https://evil.example.com" }),
		"expired":        signedToken(t, func(c jwt.MapClaims) { c["exp"] = time.Now().Add(-time.Hour).Unix() }),
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			rec := postActivity(t, a, token, sampleActivity(), handler)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestWebhook_TracksServiceURL(t *testing.T) {
	a := testAdapter()
	postActivity(t, a, signedToken(t, nil), sampleActivity(), func(context.Context, *message.Unified) {})

	a.mu.Lock()
	defer a.mu.Unlock()
	assert.Equal(t, "https://smba.example.com/emea/", a.serviceURLs["19:meeting_abc@thread.v2"])
}

func TestToUnified_Filters(t *testing.T) {
	a := testAdapter()

	typing := sampleActivity()
	typing.Type = "typing"
	assert.Nil(t, a.toUnified(&typing))

	echo := sampleActivity()
	echo.From.ID = a.botID()
	assert.Nil(t, a.toUnified(&echo))
}

func TestToUnified_ReplyBecomesThread(t *testing.T) {
	a := testAdapter()

	act := sampleActivity()
	act.ReplyToID = "root-act"
	msg := a.toUnified(&act)
	require.NotNil(t, msg)
	assert.Equal(t, "root-act", msg.ThreadID)
	assert.Equal(t,
		message.ConversationID(message.PlatformTeams, act.Conversation.ID, "root-act"),
		msg.ConversationID())
}

// stubService fakes the conversation REST endpoint and the token grant.
func stubService(t *testing.T, a *Adapter) (*httptest.Server, *[]string) {
	t.Helper()
	var mu sync.Mutex
	paths := []string{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.Method+" "+r.URL.Path)
		mu.Unlock()
		if r.URL.Path == "/token" {
			json.NewEncoder(w).Encode(map[string]any{"access_token": "svc-token", "expires_in": 3600})
			return
		}
		json.NewEncoder(w).Encode(sendResponse{ID: "new-act-1"})
	}))
	t.Cleanup(srv.Close)

	// Pre-seed a token so outbound calls skip the login endpoint.
	a.tokens.token = "svc-token"
	a.tokens.expires = time.Now().Add(time.Hour)

	a.mu.Lock()
	a.serviceURLs["conv-1"] = srv.URL
	a.mu.Unlock()
	return srv, &paths
}

func TestSendMessage_PostsToServiceURL(t *testing.T) {
	a := testAdapter()
	_, paths := stubService(t, a)

	id, err := a.SendMessage(context.Background(), "conv-1", "hello", "")
	require.NoError(t, err)
	assert.Equal(t, "new-act-1", id)
	assert.Contains(t, *paths, "POST /v3/conversations/conv-1/activities")
}

func TestSendMessage_ReplyTargetsActivity(t *testing.T) {
	a := testAdapter()
	_, paths := stubService(t, a)

	_, err := a.SendMessage(context.Background(), "conv-1", "hello", "root-act")
	require.NoError(t, err)
	assert.Contains(t, *paths, "POST /v3/conversations/conv-1/activities/root-act")
}

func TestUpdateAndDelete(t *testing.T) {
	a := testAdapter()
	_, paths := stubService(t, a)
	ctx := context.Background()

	require.NoError(t, a.UpdateMessage(ctx, "conv-1", "act-9", "edited"))
	require.NoError(t, a.DeleteMessage(ctx, "conv-1", "act-9"))
	assert.Contains(t, *paths, "PUT /v3/conversations/conv-1/activities/act-9")
	assert.Contains(t, *paths, "DELETE /v3/conversations/conv-1/activities/act-9")
}

func TestSend_UnknownConversationFails(t *testing.T) {
	a := testAdapter()

	_, err := a.SendMessage(context.Background(), "conv-unknown", "hello", "")
	assert.Error(t, err)
}

func TestApproval_CardSubmitResolves(t *testing.T) {
	a := testAdapter()
	stubService(t, a)

	prompt, err := a.CreateApprovalPrompt(context.Background(), "conv-1", "deploy?", "")
	require.NoError(t, err)

	go a.handleCardSubmit(map[string]any{"approvalId": prompt.ID(), "decision": "approve"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	decision, err := prompt.Wait(ctx)
	require.NoError(t, err)
	assert.True(t, decision)
}

func TestApproval_DenySubmission(t *testing.T) {
	a := testAdapter()
	stubService(t, a)

	prompt, err := a.CreateApprovalPrompt(context.Background(), "conv-1", "deploy?", "")
	require.NoError(t, err)

	go a.handleCardSubmit(map[string]any{"approvalId": prompt.ID(), "decision": "deny"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	decision, err := prompt.Wait(ctx)
	require.NoError(t, err)
	assert.False(t, decision)
}

func TestReactions_AreNoOps(t *testing.T) {
	a := testAdapter()
	assert.NoError(t, a.AddReaction(context.Background(), "conv-1", "act-1", "eyes"))
	assert.NoError(t, a.RemoveReaction(context.Background(), "conv-1", "act-1", "eyes"))
}

func TestWebhook_HandlerContextOutlivesResponse(t *testing.T) {
	a := testAdapter()
	listenCtx, stop := context.WithCancel(context.Background())
	defer stop()

	ctxs := make(chan context.Context, 1)
	srv := httptest.NewServer(a.webhookMux(listenCtx, func(ctx context.Context, msg *message.Unified) {
		ctxs <- ctx
	}))
	defer srv.Close()

	body, err := json.Marshal(sampleActivity())
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/messages", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, nil))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := <-ctxs
	time.Sleep(100 * time.Millisecond)
	assert.NoError(t, got.Err(),
		"the execution a webhook triggers must outlive the 200 response")

	stop()
	assert.Error(t, got.Err(), "handler context must follow the listen context")
}

func TestApproval_AbandonedPromptDeregisters(t *testing.T) {
	a := testAdapter()

	prompt := a.registerApproval("ap-1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := prompt.Wait(ctx)
	require.Error(t, err)

	a.mu.Lock()
	defer a.mu.Unlock()
	assert.Empty(t, a.approvals, "abandoned prompts must not accumulate")
}

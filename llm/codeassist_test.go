package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/duneagent/dune/errors"
	"github.com/duneagent/dune/session"
	"github.com/duneagent/dune/tools"
)

func staticToken() oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: "test-token",
		Expiry:      time.Now().Add(time.Hour),
	})
}

func testEndpoint(serverURL string) *CodeAssistEndpoint {
	return &CodeAssistEndpoint{
		tokenSource: staticToken(),
		httpClient:  http.DefaultClient,
		baseURL:     serverURL,
		model:       "gemini-2.5-pro",
		projectID:   "projects/test",
	}
}

func TestBuildCodeAssistRequest(t *testing.T) {
	descriptors := []tools.Descriptor{{Name: "ls", Description: "list files"}}
	request := buildCodeAssistRequest(sampleHistory(), descriptors, "be helpful")

	raw, err := json.Marshal(request)
	require.NoError(t, err)
	payload := string(raw)

	assert.Contains(t, payload, `"role":"user"`)
	assert.Contains(t, payload, `"role":"model"`)
	assert.Contains(t, payload, `"role":"function"`)
	assert.Contains(t, payload, `"functionCall"`)
	assert.Contains(t, payload, `"functionResponse"`)
	assert.Contains(t, payload, `"systemInstruction"`)
	assert.Contains(t, payload, `"functionDeclarations"`)
}

func TestParseCodeAssistResponseText(t *testing.T) {
	data := []byte(`{"response":{"candidates":[{"content":{"parts":[{"text":"hi "},{"text":"there"}]}}]}}`)
	reply, err := parseCodeAssistResponse(data)
	require.NoError(t, err)
	assert.Equal(t, "hi there", reply.Text)
	assert.Empty(t, reply.Calls)
}

func TestParseCodeAssistResponseFunctionCall(t *testing.T) {
	data := []byte(`{"response":{"candidates":[{"content":{"parts":[
		{"functionCall":{"name":"read_file","args":{"path":"main.go"}}}
	]}}]}}`)
	reply, err := parseCodeAssistResponse(data)
	require.NoError(t, err)
	require.Len(t, reply.Calls, 1)
	assert.Equal(t, "read_file", reply.Calls[0].Name)
	assert.Equal(t, map[string]interface{}{"path": "main.go"}, reply.Calls[0].Args)
	assert.NotEmpty(t, reply.Calls[0].ID, "call IDs are synthesized")
}

func TestParseCodeAssistResponseEmptyCandidates(t *testing.T) {
	_, err := parseCodeAssistResponse([]byte(`{"response":{"candidates":[]}}`))
	var malformed *MalformedReplyError
	assert.ErrorAs(t, err, &malformed)
}

func TestParseCodeAssistResponseGarbage(t *testing.T) {
	_, err := parseCodeAssistResponse([]byte(`not json at all`))
	var malformed *MalformedReplyError
	assert.ErrorAs(t, err, &malformed)
}

func TestCodeAssistGenerate(t *testing.T) {
	var gotPath, gotAuth, gotUA string
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotUA = r.Header.Get("User-Agent")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		fmt.Fprint(w, `{"response":{"candidates":[{"content":{"parts":[{"text":"done"}]}}]}}`)
	}))
	defer server.Close()

	ep := testEndpoint(server.URL)
	reply, err := ep.Generate(context.Background(), []Turn{UserTurn{Text: "hi"}}, nil, "prompt")
	require.NoError(t, err)
	assert.Equal(t, "done", reply.Text)

	assert.Equal(t, "/v1internal:generateContent", gotPath)
	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Equal(t, codeAssistUserAgent, gotUA)
	assert.Equal(t, "projects/test", gotBody["project"])
	assert.Equal(t, "gemini-2.5-pro", gotBody["model"])
}

func TestCodeAssistTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	ep := testEndpoint(server.URL)
	_, err := ep.Generate(context.Background(), []Turn{UserTurn{Text: "hi"}}, nil, "")
	var transport *errors.TransportError
	require.ErrorAs(t, err, &transport)
	assert.Equal(t, http.StatusTooManyRequests, transport.Status)
	assert.Contains(t, transport.Body, "quota exceeded")
}

func TestCodeAssistOnboardDiscoversProject(t *testing.T) {
	var methods []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.URL.Path)
		switch r.URL.Path {
		case "/v1internal:loadCodeAssist":
			fmt.Fprint(w, `{"allowedTiers":[{"id":"free-tier","isDefault":true}],"cloudaicompanionProject":"projects/fresh"}`)
		case "/v1internal:onboardUser":
			fmt.Fprint(w, `{"done":true,"response":{"cloudaicompanionProject":{"id":"projects/fresh"}}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	ep := testEndpoint(server.URL)
	projectID, err := ep.onboard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "projects/fresh", projectID)
	assert.Equal(t, []string{"/v1internal:loadCodeAssist", "/v1internal:onboardUser"}, methods)
}

func TestCodeAssistOnboardWithoutProjectID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1internal:loadCodeAssist":
			fmt.Fprint(w, `{}`)
		case "/v1internal:onboardUser":
			fmt.Fprint(w, `{"done":true,"response":{}}`)
		}
	}))
	defer server.Close()

	ep := testEndpoint(server.URL)
	_, err := ep.onboard(context.Background())
	assert.Error(t, err)
}

func TestNewCodeAssistEndpointUsesCachedProjectID(t *testing.T) {
	cache := session.NewCacheAt(filepath.Join(t.TempDir(), "project_id.json"))
	require.NoError(t, cache.Save("projects/cached"))

	// With a cached project ID no onboarding request is made, so the real
	// base URL is never contacted.
	ep, err := NewCodeAssistEndpoint(context.Background(), "", staticToken(), cache)
	require.NoError(t, err)
	assert.Equal(t, "projects/cached", ep.ProjectID())
	assert.Equal(t, defaultGeminiModel, ep.model)
}

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/duneagent/dune/errors"
	"github.com/duneagent/dune/session"
	"github.com/duneagent/dune/tools"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// Constants from the Code Assist API used by the Gemini CLI.
const (
	codeAssistEndpoint   = "https://cloudcode-pa.googleapis.com"
	codeAssistAPIVersion = "v1internal"
	codeAssistUserAgent  = "GeminiCLI/20.18.1 (darwin; arm64)"

	onboardPollInterval = 5 * time.Second
)

// CodeAssistEndpoint talks to Gemini through the Code Assist API using OAuth
// credentials. The one-time onboarding flow yields a project ID which is
// persisted by the session cache so subsequent runs skip onboarding.
//
// The endpoint is constructed explicitly and injected; there is no hidden
// process-wide instance.
type CodeAssistEndpoint struct {
	tokenSource oauth2.TokenSource
	httpClient  *http.Client
	baseURL     string
	model       string
	projectID   string
}

// NewCodeAssistEndpoint builds the endpoint, running the onboarding flow if
// no project ID is cached yet.
func NewCodeAssistEndpoint(ctx context.Context, modelName string, ts oauth2.TokenSource, cache *session.Cache) (*CodeAssistEndpoint, error) {
	if modelName == "" {
		modelName = defaultGeminiModel
	}
	ep := &CodeAssistEndpoint{
		tokenSource: ts,
		httpClient:  &http.Client{Timeout: 120 * time.Second},
		baseURL:     codeAssistEndpoint,
		model:       modelName,
	}

	projectID := cache.Load()
	if projectID == "" {
		var err error
		projectID, err = ep.onboard(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "onboarding failed")
		}
		if err := cache.Save(projectID); err != nil {
			fmt.Printf("Warning: failed to cache project ID: %v\n", err)
		}
	} else {
		fmt.Println("Using cached project ID, skipping onboarding.")
	}
	ep.projectID = projectID

	return ep, nil
}

// ProjectID returns the onboarded project identifier.
func (e *CodeAssistEndpoint) ProjectID() string { return e.projectID }

// Generate sends the full history through the Code Assist generateContent
// method and converts the reply into the generic two-variant result.
func (e *CodeAssistEndpoint) Generate(ctx context.Context, history []Turn, descriptors []tools.Descriptor, systemPrompt string) (*Reply, error) {
	reqBody := map[string]interface{}{
		"model":   e.model,
		"project": e.projectID,
		"request": buildCodeAssistRequest(history, descriptors, systemPrompt),
	}

	respData, err := e.apiRequest(ctx, "generateContent", reqBody)
	if err != nil {
		return nil, err
	}
	return parseCodeAssistResponse(respData)
}

// Wire shapes for the generateContent request.

type caPart struct {
	Text             string              `json:"text,omitempty"`
	FunctionCall     *caFunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *caFunctionResponse `json:"functionResponse,omitempty"`
}

type caFunctionCall struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args,omitempty"`
}

type caFunctionResponse struct {
	Name     string                 `json:"name"`
	Response map[string]interface{} `json:"response"`
}

type caContent struct {
	Role  string   `json:"role"`
	Parts []caPart `json:"parts"`
}

// buildCodeAssistRequest converts the generic history into the nested
// request body the Code Assist API expects.
func buildCodeAssistRequest(history []Turn, descriptors []tools.Descriptor, systemPrompt string) map[string]interface{} {
	var contents []caContent
	for _, turn := range history {
		switch t := turn.(type) {
		case UserTurn:
			contents = append(contents, caContent{Role: "user", Parts: []caPart{{Text: t.Text}}})
		case ModelTextTurn:
			contents = append(contents, caContent{Role: "model", Parts: []caPart{{Text: t.Text}}})
		case ModelToolCallTurn:
			parts := make([]caPart, 0, len(t.Calls))
			for _, call := range t.Calls {
				parts = append(parts, caPart{FunctionCall: &caFunctionCall{Name: call.Name, Args: call.Args}})
			}
			contents = append(contents, caContent{Role: "model", Parts: parts})
		case ToolResultTurn:
			contents = append(contents, caContent{
				Role: "function",
				Parts: []caPart{{FunctionResponse: &caFunctionResponse{
					Name:     t.ToolName,
					Response: t.Result.Body(),
				}}},
			})
		}
	}

	request := map[string]interface{}{"contents": contents}
	if systemPrompt != "" {
		request["systemInstruction"] = caContent{
			Role:  "system",
			Parts: []caPart{{Text: systemPrompt}},
		}
	}
	if len(descriptors) > 0 {
		request["tools"] = []map[string]interface{}{
			{"functionDeclarations": descriptors},
		}
	}
	return request
}

// parseCodeAssistResponse extracts the first candidate's parts. A response
// holding neither text nor a function call is malformed.
func parseCodeAssistResponse(data []byte) (*Reply, error) {
	var payload struct {
		Response struct {
			Candidates []struct {
				Content struct {
					Parts []struct {
						Text         string          `json:"text"`
						FunctionCall *caFunctionCall `json:"functionCall"`
					} `json:"parts"`
				} `json:"content"`
			} `json:"candidates"`
		} `json:"response"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, &MalformedReplyError{Detail: fmt.Sprintf("unparseable Code Assist response: %v", err)}
	}
	if len(payload.Response.Candidates) == 0 {
		return nil, &MalformedReplyError{Detail: "empty candidate list in Code Assist response"}
	}

	reply := &Reply{}
	for _, part := range payload.Response.Candidates[0].Content.Parts {
		if part.FunctionCall != nil {
			reply.Calls = append(reply.Calls, ToolCall{
				ID:   uuid.NewString(),
				Name: part.FunctionCall.Name,
				Args: part.FunctionCall.Args,
			})
			continue
		}
		reply.Text += part.Text
	}
	return reply, nil
}

// onboard performs the one-time onboarding flow: loadCodeAssist to discover
// the tier, then onboardUser polled until the long-running operation is done.
func (e *CodeAssistEndpoint) onboard(ctx context.Context) (string, error) {
	fmt.Println("Performing one-time onboarding with Google...")

	clientMetadata := map[string]interface{}{
		"ideType":    "IDE_UNSPECIFIED",
		"platform":   "PLATFORM_UNSPECIFIED",
		"pluginType": "GEMINI",
	}

	loadData, err := e.apiRequest(ctx, "loadCodeAssist", map[string]interface{}{
		"metadata": clientMetadata,
	})
	if err != nil {
		return "", err
	}

	var loadRes struct {
		AllowedTiers []struct {
			ID        string `json:"id"`
			IsDefault bool   `json:"isDefault"`
		} `json:"allowedTiers"`
		CloudAICompanionProject string `json:"cloudaicompanionProject"`
	}
	if err := json.Unmarshal(loadData, &loadRes); err != nil {
		return "", errors.Wrapf(err, "unparseable loadCodeAssist response")
	}

	tierID := "legacy-tier"
	for _, tier := range loadRes.AllowedTiers {
		if tier.IsDefault {
			tierID = tier.ID
			break
		}
	}

	onboardBody := map[string]interface{}{
		"tierId":                  tierID,
		"cloudaicompanionProject": loadRes.CloudAICompanionProject,
		"metadata":                clientMetadata,
	}

	for {
		fmt.Println("Polling onboardUser status...")
		lroData, err := e.apiRequest(ctx, "onboardUser", onboardBody)
		if err != nil {
			return "", err
		}

		var lro struct {
			Done     bool `json:"done"`
			Response struct {
				CloudAICompanionProject struct {
					ID string `json:"id"`
				} `json:"cloudaicompanionProject"`
			} `json:"response"`
		}
		if err := json.Unmarshal(lroData, &lro); err != nil {
			return "", errors.Wrapf(err, "unparseable onboardUser response")
		}
		if lro.Done {
			if lro.Response.CloudAICompanionProject.ID == "" {
				return "", errors.New("onboarding completed without a project ID")
			}
			fmt.Println("Onboarding successful.")
			return lro.Response.CloudAICompanionProject.ID, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(onboardPollInterval):
		}
	}
}

// apiRequest posts one Code Assist method call. Credential refresh happens
// inside the token source; a refresh failure is terminal.
func (e *CodeAssistEndpoint) apiRequest(ctx context.Context, method string, body interface{}) ([]byte, error) {
	token, err := e.tokenSource.Token()
	if err != nil {
		return nil, errors.Wrapf(err, "could not refresh credentials")
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode %s request", method)
	}

	url := fmt.Sprintf("%s/%s:%s", e.baseURL, codeAssistAPIVersion, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build %s request", method)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", codeAssistUserAgent)
	token.SetAuthHeader(req)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, &errors.TransportError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &errors.TransportError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &errors.TransportError{Status: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}

// oauthCredsFile mirrors the token file written by the Gemini CLI login
// flow.
type oauthCredsFile struct {
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"client_secret"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Expiry       time.Time `json:"expiry"`
}

// LoadOAuthCredentials reads cached OAuth credentials from
// ~/.dune/oauth_creds.json and returns a token source that refreshes the
// access token on expiry. A missing file means the user has not logged in.
func LoadOAuthCredentials(ctx context.Context) (oauth2.TokenSource, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.Wrapf(err, "could not determine home directory")
	}
	path := filepath.Join(home, ".dune", "oauth_creds.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "no cached OAuth credentials at %s; set GEMINI_API_KEY or log in with the Gemini CLI first", path)
	}

	var creds oauthCredsFile
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, errors.Wrapf(err, "unparseable OAuth credentials at %s", path)
	}
	if creds.RefreshToken == "" {
		return nil, errors.New("cached OAuth credentials at %s have no refresh token", path)
	}

	conf := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://accounts.google.com/o/oauth2/auth",
			TokenURL: "https://oauth2.googleapis.com/token",
		},
	}
	token := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		Expiry:       creds.Expiry,
	}
	return conf.TokenSource(ctx, token), nil
}

package gemini

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agentscope-ai/agentscope-go/internal/tlsutil"
	"github.com/agentscope-ai/agentscope-go/llm"
	"github.com/agentscope-ai/agentscope-go/llm/providers"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	fallbackModel  = "gemini-2.0-flash"
)

// Provider is the Google Gemini client.
type Provider struct {
	cfg    providers.GeminiConfig
	client *http.Client
	logger *zap.Logger
}

// New creates a Gemini provider.
func New(cfg providers.GeminiConfig, logger *zap.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Provider{
		cfg:    cfg,
		client: tlsutil.Client(timeout),
		logger: logger.With(zap.String("provider", "gemini")),
	}
}

func (p *Provider) Name() string { return "gemini" }

func (p *Provider) SupportsNativeFunctionCalling() bool { return true }

// HealthCheck probes the models listing endpoint.
func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint("/v1beta/models"), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return &llm.HealthStatus{Healthy: false, Latency: latency}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := readErrMsg(resp.Body)
		return &llm.HealthStatus{Healthy: false, Latency: latency},
			fmt.Errorf("gemini health check failed: status=%d msg=%s", resp.StatusCode, msg)
	}
	return &llm.HealthStatus{Healthy: true, Latency: latency}, nil
}

// ListModels returns the available models, with the "models/" name prefix
// stripped so IDs line up with what ChatRequest.Model expects.
func (p *Provider) ListModels(ctx context.Context) ([]llm.Model, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint("/v1beta/models"), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, upstreamErr(err, p.Name())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, providers.MapHTTPError(resp.StatusCode, readErrMsg(resp.Body), p.Name())
	}

	var modelsResp struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&modelsResp); err != nil {
		return nil, upstreamErr(err, p.Name())
	}

	models := make([]llm.Model, 0, len(modelsResp.Models))
	for _, m := range modelsResp.Models {
		models = append(models, llm.Model{
			ID:      strings.TrimPrefix(m.Name, "models/"),
			Object:  "model",
			OwnedBy: "google",
		})
	}
	return models, nil
}

// Wire types for generateContent.

type geminiContent struct {
	Role  string       `json:"role,omitempty"` // user or model
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text             string                  `json:"text,omitempty"`
	FunctionCall     *geminiFunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResponse `json:"functionResponse,omitempty"`
}

type geminiFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type geminiFunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFunctionDeclaration `json:"functionDeclarations,omitempty"`
}

type geminiFunctionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature     float32  `json:"temperature,omitempty"`
	TopP            float32  `json:"topP,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	Tools             []geminiTool            `json:"tools,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
	Index        int           `json:"index"`
}

type geminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate    `json:"candidates"`
	UsageMetadata *geminiUsageMetadata `json:"usageMetadata,omitempty"`
	ResponseID    string               `json:"responseId,omitempty"`
}

func (p *Provider) endpoint(path string) string {
	return strings.TrimRight(p.cfg.BaseURL, "/") + path
}

func (p *Provider) buildHeaders(req *http.Request) {
	req.Header.Set("x-goog-api-key", p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
}

// convertContents splits out the system instruction and maps the remaining
// messages to Gemini's role/parts form.
func convertContents(msgs []llm.Message) (*geminiContent, []geminiContent) {
	var system *geminiContent
	var contents []geminiContent

	for _, m := range msgs {
		if m.Role == llm.RoleSystem {
			system = &geminiContent{Parts: []geminiPart{{Text: m.Content}}}
			continue
		}

		if m.Role == llm.RoleTool {
			// Tool results travel back as functionResponse parts on a user
			// turn. Non-JSON output is wrapped so the payload stays an object.
			var response map[string]any
			if err := json.Unmarshal([]byte(m.Content), &response); err != nil {
				response = map[string]any{"result": m.Content}
			}
			contents = append(contents, geminiContent{
				Role: "user",
				Parts: []geminiPart{{
					FunctionResponse: &geminiFunctionResponse{Name: m.Name, Response: response},
				}},
			})
			continue
		}

		role := string(m.Role)
		if m.Role == llm.RoleAssistant {
			role = "model"
		}

		content := geminiContent{Role: role}
		if m.Content != "" {
			content.Parts = append(content.Parts, geminiPart{Text: m.Content})
		}
		for _, tc := range m.ToolCalls {
			var args map[string]any
			if err := json.Unmarshal(tc.Arguments, &args); err != nil {
				continue
			}
			content.Parts = append(content.Parts, geminiPart{
				FunctionCall: &geminiFunctionCall{Name: tc.Name, Args: args},
			})
		}
		if len(content.Parts) > 0 {
			contents = append(contents, content)
		}
	}
	return system, contents
}

func convertGeminiTools(tools []llm.ToolSchema) []geminiTool {
	if len(tools) == 0 {
		return nil
	}
	declarations := make([]geminiFunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		var params map[string]any
		if err := json.Unmarshal(t.Parameters, &params); err != nil {
			continue
		}
		declarations = append(declarations, geminiFunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  params,
		})
	}
	if len(declarations) == 0 {
		return nil
	}
	return []geminiTool{{FunctionDeclarations: declarations}}
}

func (p *Provider) buildWireRequest(req *llm.ChatRequest) geminiRequest {
	system, contents := convertContents(req.Messages)
	body := geminiRequest{
		Contents:          contents,
		Tools:             convertGeminiTools(req.Tools),
		SystemInstruction: system,
	}
	if req.Temperature > 0 || req.TopP > 0 || req.MaxTokens > 0 || len(req.Stop) > 0 {
		body.GenerationConfig = &geminiGenerationConfig{
			Temperature:     req.Temperature,
			TopP:            req.TopP,
			MaxOutputTokens: req.MaxTokens,
			StopSequences:   req.Stop,
		}
	}
	return body
}

func (p *Provider) post(ctx context.Context, req *llm.ChatRequest, action string) (*http.Response, string, error) {
	payload, err := json.Marshal(p.buildWireRequest(req))
	if err != nil {
		return nil, "", fmt.Errorf("marshal request: %w", err)
	}
	model := providers.ChooseModel(req, p.cfg.Model, fallbackModel)
	endpoint := p.endpoint(fmt.Sprintf("/v1beta/models/%s:%s", model, action))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, "", upstreamErr(err, p.Name())
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, "", providers.MapHTTPError(resp.StatusCode, readErrMsg(resp.Body), p.Name())
	}
	return resp, model, nil
}

// Completion performs a synchronous generateContent request.
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	resp, model, err := p.post(ctx, req, "generateContent")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var wire geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, upstreamErr(err, p.Name())
	}
	return toChatResponse(wire, p.Name(), model), nil
}

// Stream performs a streamGenerateContent request with alt=sse, so the
// server emits one complete JSON object per data: frame. Without alt=sse
// Gemini returns a pretty-printed JSON array whose objects span lines.
func (p *Provider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	resp, model, err := p.post(ctx, req, "streamGenerateContent?alt=sse")
	if err != nil {
		return nil, err
	}

	ch := make(chan llm.StreamChunk)
	go func() {
		defer resp.Body.Close()
		defer close(ch)
		p.readStream(ctx, resp.Body, ch, model)
	}()
	return ch, nil
}

func (p *Provider) readStream(ctx context.Context, body io.Reader, ch chan<- llm.StreamChunk, model string) {
	reader := bufio.NewReader(body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				emit(ctx, ch, llm.StreamChunk{Err: upstreamErr(err, p.Name())})
			}
			return
		}

		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

		var wire geminiResponse
		if err := json.Unmarshal([]byte(data), &wire); err != nil {
			emit(ctx, ch, llm.StreamChunk{Err: upstreamErr(err, p.Name())})
			return
		}

		for _, candidate := range wire.Candidates {
			chunk := llm.StreamChunk{
				ID:           wire.ResponseID,
				Provider:     p.Name(),
				Model:        model,
				Index:        candidate.Index,
				FinishReason: candidate.FinishReason,
				Delta:        llm.Message{Role: llm.RoleAssistant},
			}
			callIdx := 0
			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					chunk.Delta.Content += part.Text
				}
				if part.FunctionCall != nil {
					args, _ := json.Marshal(part.FunctionCall.Args)
					chunk.Delta.ToolCalls = append(chunk.Delta.ToolCalls, llm.ToolCall{
						ID:        synthCallID(part.FunctionCall.Name, candidate.Index, callIdx),
						Name:      part.FunctionCall.Name,
						Arguments: args,
					})
					callIdx++
				}
			}
			if !emit(ctx, ch, chunk) {
				return
			}
		}

		if wire.UsageMetadata != nil {
			ok := emit(ctx, ch, llm.StreamChunk{
				Provider: p.Name(),
				Model:    model,
				Usage: &llm.ChatUsage{
					PromptTokens:     wire.UsageMetadata.PromptTokenCount,
					CompletionTokens: wire.UsageMetadata.CandidatesTokenCount,
					TotalTokens:      wire.UsageMetadata.TotalTokenCount,
				},
			})
			if !ok {
				return
			}
		}
	}
}

func toChatResponse(wire geminiResponse, provider, model string) *llm.ChatResponse {
	choices := make([]llm.ChatChoice, 0, len(wire.Candidates))
	for _, candidate := range wire.Candidates {
		msg := llm.Message{Role: llm.RoleAssistant}
		callIdx := 0
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				msg.Content += part.Text
			}
			if part.FunctionCall != nil {
				args, _ := json.Marshal(part.FunctionCall.Args)
				msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
					ID:        synthCallID(part.FunctionCall.Name, candidate.Index, callIdx),
					Name:      part.FunctionCall.Name,
					Arguments: args,
				})
				callIdx++
			}
		}
		choices = append(choices, llm.ChatChoice{
			Index:        candidate.Index,
			FinishReason: candidate.FinishReason,
			Message:      msg,
		})
	}

	resp := &llm.ChatResponse{ID: wire.ResponseID, Provider: provider, Model: model, Choices: choices}
	if wire.UsageMetadata != nil {
		resp.Usage = llm.ChatUsage{
			PromptTokens:     wire.UsageMetadata.PromptTokenCount,
			CompletionTokens: wire.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      wire.UsageMetadata.TotalTokenCount,
		}
	}
	return resp
}

// synthCallID fabricates a deterministic tool call ID; Gemini does not
// assign them, but the toolkit needs one to correlate results.
func synthCallID(name string, candidateIdx, callIdx int) string {
	return fmt.Sprintf("call_%s_%d_%d", name, candidateIdx, callIdx)
}

func upstreamErr(err error, provider string) *llm.Error {
	return &llm.Error{
		Code: llm.ErrUpstreamError, Message: err.Error(),
		HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: provider,
	}
}

// readErrMsg parses the Google error envelope, falling back to raw text.
func readErrMsg(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, 64<<10))
	var errResp struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		return fmt.Sprintf("%s (status: %s)", errResp.Error.Message, errResp.Error.Status)
	}
	return string(data)
}

func emit(ctx context.Context, ch chan<- llm.StreamChunk, chunk llm.StreamChunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

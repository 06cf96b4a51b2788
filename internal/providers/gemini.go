package providers

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
)

const (
	defaultGeminiModel = "gemini-2.5-flash"
	geminiAPIBase      = "https://generativelanguage.googleapis.com/v1beta"
)

// GeminiProvider implements Provider using the Google Gemini API via net/http.
type GeminiProvider struct {
	apiKey       string
	baseURL      string
	defaultModel string
	client       *http.Client
	retryConfig  RetryConfig
}

// NewGeminiProvider creates a new Gemini provider.
func NewGeminiProvider(apiKey string, opts ...GeminiOption) *GeminiProvider {
	p := &GeminiProvider{
		apiKey:       apiKey,
		baseURL:      geminiAPIBase,
		defaultModel: defaultGeminiModel,
		client:       &http.Client{Timeout: 120 * time.Second},
		retryConfig:  DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

type GeminiOption func(*GeminiProvider)

func WithGeminiModel(model string) GeminiOption {
	return func(p *GeminiProvider) {
		if model != "" {
			p.defaultModel = model
		}
	}
}

func WithGeminiBaseURL(baseURL string) GeminiOption {
	return func(p *GeminiProvider) {
		if baseURL != "" {
			p.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

func (p *GeminiProvider) Name() string         { return "google" }
func (p *GeminiProvider) DefaultModel() string { return p.defaultModel }

func (p *GeminiProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	body := p.buildRequestBody(req)
	url := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, model)

	return RetryDo(ctx, p.retryConfig, func() (*ChatResponse, error) {
		respBody, err := p.doRequest(ctx, url, body)
		if err != nil {
			return nil, err
		}
		defer respBody.Close()

		var resp geminiResponse
		if err := json.NewDecoder(respBody).Decode(&resp); err != nil {
			return nil, fmt.Errorf("gemini: decode response: %w", err)
		}

		return p.parseResponse(model, &resp), nil
	})
}

func (p *GeminiProvider) ChatStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	body := p.buildRequestBody(req)
	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", p.baseURL, model)

	// Retry only the connection phase; once streaming starts, no retry.
	respBody, err := RetryDo(ctx, p.retryConfig, func() (io.ReadCloser, error) {
		return p.doRequest(ctx, url, body)
	})
	if err != nil {
		return nil, err
	}
	defer respBody.Close()

	result := &ChatResponse{FinishReason: "stop", Model: model}

	scanner := bufio.NewScanner(respBody)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		var chunk geminiResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}

		partial := p.parseResponse(model, &chunk)
		if partial.Content != "" {
			result.Content += partial.Content
			if onChunk != nil {
				onChunk(StreamChunk{Content: partial.Content})
			}
		}
		result.ToolCalls = append(result.ToolCalls, partial.ToolCalls...)
		if partial.FinishReason != "" {
			result.FinishReason = partial.FinishReason
		}
		if partial.Usage != nil {
			result.Usage = partial.Usage
		}
	}

	if len(result.ToolCalls) > 0 {
		result.FinishReason = "tool_calls"
	}

	if onChunk != nil {
		onChunk(StreamChunk{Done: true})
	}

	return result, nil
}

func (p *GeminiProvider) buildRequestBody(req ChatRequest) map[string]interface{} {
	// System messages become system_instruction; assistant turns use the
	// "model" role; tool results become functionResponse parts.
	var systemParts []map[string]interface{}
	var contents []map[string]interface{}

	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			systemParts = append(systemParts, map[string]interface{}{
				"text": msg.Content,
			})

		case "user":
			contents = append(contents, map[string]interface{}{
				"role": "user",
				"parts": []map[string]interface{}{
					{"text": msg.Content},
				},
			})

		case "assistant":
			var parts []map[string]interface{}
			if msg.Content != "" {
				parts = append(parts, map[string]interface{}{
					"text": msg.Content,
				})
			}
			for _, tc := range msg.ToolCalls {
				args := tc.Arguments
				if args == nil {
					args = map[string]interface{}{}
				}
				parts = append(parts, map[string]interface{}{
					"functionCall": map[string]interface{}{
						"name": tc.Name,
						"args": args,
					},
				})
			}
			if len(parts) > 0 {
				contents = append(contents, map[string]interface{}{
					"role":  "model",
					"parts": parts,
				})
			}

		case "tool":
			contents = append(contents, map[string]interface{}{
				"role": "user",
				"parts": []map[string]interface{}{
					{
						"functionResponse": map[string]interface{}{
							"name": msg.ToolName,
							"response": map[string]interface{}{
								"result": msg.Content,
							},
						},
					},
				},
			})
		}
	}

	body := map[string]interface{}{
		"contents": contents,
	}

	if len(systemParts) > 0 {
		body["system_instruction"] = map[string]interface{}{
			"parts": systemParts,
		}
	}

	if len(req.Tools) > 0 {
		var decls []map[string]interface{}
		for _, t := range req.Tools {
			decls = append(decls, map[string]interface{}{
				"name":        t.Function.Name,
				"description": t.Function.Description,
				"parameters":  t.Function.Parameters,
			})
		}
		body["tools"] = []map[string]interface{}{
			{"functionDeclarations": decls},
		}
		if v, ok := req.Options[OptToolChoice].(string); ok && v == "required" {
			body["tool_config"] = map[string]interface{}{
				"function_calling_config": map[string]interface{}{"mode": "ANY"},
			}
		}
	}

	genConfig := map[string]interface{}{}
	if v, ok := req.Options[OptMaxTokens]; ok {
		genConfig["maxOutputTokens"] = v
	}
	if v, ok := req.Options[OptTemperature]; ok {
		genConfig["temperature"] = v
	}
	if len(genConfig) > 0 {
		body["generationConfig"] = genConfig
	}

	return body
}

func (p *GeminiProvider) doRequest(ctx context.Context, url string, body interface{}) (io.ReadCloser, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("gemini: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gemini: create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gemini: request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &HTTPError{
			Status:     resp.StatusCode,
			Body:       fmt.Sprintf("gemini: %s", string(respBody)),
			RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	return resp.Body, nil
}

func (p *GeminiProvider) parseResponse(model string, resp *geminiResponse) *ChatResponse {
	result := &ChatResponse{FinishReason: "stop", Model: model}

	if len(resp.Candidates) > 0 {
		cand := resp.Candidates[0]
		callSeq := 0
		for _, part := range cand.Content.Parts {
			if part.Text != "" {
				result.Content += part.Text
			}
			if part.FunctionCall != nil {
				args := make(map[string]interface{})
				if len(part.FunctionCall.Args) > 0 {
					_ = json.Unmarshal(part.FunctionCall.Args, &args)
				}
				// Gemini doesn't assign call IDs; synthesize stable ones
				// so tool results can be correlated downstream.
				result.ToolCalls = append(result.ToolCalls, ToolCall{
					ID:        fmt.Sprintf("call_%s_%d", part.FunctionCall.Name, callSeq),
					Name:      part.FunctionCall.Name,
					Arguments: args,
				})
				callSeq++
			}
		}

		switch cand.FinishReason {
		case "MAX_TOKENS":
			result.FinishReason = "length"
		}
	}

	if len(result.ToolCalls) > 0 {
		result.FinishReason = "tool_calls"
	}

	if resp.UsageMetadata != nil {
		result.Usage = &Usage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		}
	}

	return result
}

// --- Gemini API types (internal) ---

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text         string `json:"text,omitempty"`
				FunctionCall *struct {
					Name string          `json:"name"`
					Args json.RawMessage `json:"args,omitempty"`
				} `json:"functionCall,omitempty"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

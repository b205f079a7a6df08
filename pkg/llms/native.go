package llms

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

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/paddockai/paddock/pkg/httpclient"
	"github.com/paddockai/paddock/pkg/observability"
)

const defaultNativeBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// NativeProvider speaks the native generation REST API directly:
// generateContent for one-shot calls and streamGenerateContent with SSE
// framing for streaming.
type NativeProvider struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *httpclient.Client
}

type NativeProviderOptions struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
}

func NewNativeProvider(opts NativeProviderOptions) (*NativeProvider, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("native provider API key is required")
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultNativeBaseURL
	}

	return &NativeProvider{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		apiKey:      opts.APIKey,
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		httpClient: httpclient.New(
			httpclient.WithMaxRetries(3),
			httpclient.WithBaseDelay(2*time.Second),
			httpclient.WithHeaderParser(httpclient.ParseGeminiHeaders),
		),
	}, nil
}

type nativeRequest struct {
	Contents         []nativeContent         `json:"contents"`
	Tools            []nativeToolSet         `json:"tools,omitempty"`
	GenerationConfig *nativeGenerationConfig `json:"generationConfig,omitempty"`
}

type nativeGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type nativeContent struct {
	Role  string       `json:"role"`
	Parts []nativePart `json:"parts"`
}

type nativePart map[string]any

type nativeToolSet struct {
	FunctionDeclarations []nativeFunctionDeclaration `json:"functionDeclarations"`
}

type nativeFunctionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type nativeResponse struct {
	Candidates    []nativeCandidate    `json:"candidates"`
	UsageMetadata *nativeUsageMetadata `json:"usageMetadata,omitempty"`
	Error         *nativeError         `json:"error,omitempty"`
}

type nativeCandidate struct {
	Content      nativeContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type nativeUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type nativeError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

func (p *NativeProvider) ModelName() string {
	return p.model
}

func (p *NativeProvider) Close() error {
	return nil
}

func (p *NativeProvider) Generate(ctx context.Context, messages []Message, tools []ToolDefinition) (*Response, error) {
	startTime := time.Now()

	tracer := observability.GetTracer("paddock.llm")
	ctx, span := tracer.Start(ctx, observability.SpanLLMGenerate,
		trace.WithAttributes(
			attribute.String(observability.AttrLLMModel, p.model),
			attribute.String("provider", "native"),
			attribute.Bool("streaming", false),
		),
	)
	defer span.End()

	respBody, err := p.post(ctx, ":generateContent", p.buildRequest(messages, tools))
	duration := time.Since(startTime)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordLLMCall(ctx, p.model, duration, Usage{}, err)
		return nil, err
	}

	var resp nativeResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		err = fmt.Errorf("failed to parse response: %w", err)
		span.RecordError(err)
		recordLLMCall(ctx, p.model, duration, Usage{}, err)
		return nil, err
	}
	if resp.Error != nil {
		err = fmt.Errorf("generation API error: %s", resp.Error.Message)
		span.RecordError(err)
		span.SetStatus(codes.Error, resp.Error.Message)
		recordLLMCall(ctx, p.model, duration, Usage{}, err)
		return nil, err
	}

	result, err := p.parseResponse(&resp)
	if err != nil {
		span.RecordError(err)
		recordLLMCall(ctx, p.model, duration, Usage{}, err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int(observability.AttrLLMTokensInput, result.Usage.PromptTokens),
		attribute.Int(observability.AttrLLMTokensOutput, result.Usage.CompletionTokens),
		attribute.Int("llm.tool_calls", len(result.ToolCalls)),
	)
	span.SetStatus(codes.Ok, "success")
	recordLLMCall(ctx, p.model, duration, result.Usage, nil)

	return result, nil
}

func (p *NativeProvider) GenerateStreaming(ctx context.Context, messages []Message, tools []ToolDefinition) (<-chan StreamChunk, error) {
	request := p.buildRequest(messages, tools)
	chunks := make(chan StreamChunk, 10)

	go func() {
		defer close(chunks)

		reqBody, err := json.Marshal(request)
		if err != nil {
			sendChunk(ctx, chunks, StreamChunk{Type: ChunkTypeError, Err: fmt.Errorf("failed to marshal request: %w", err)})
			return
		}

		url := fmt.Sprintf("%s/models/%s:streamGenerateContent?key=%s&alt=sse", p.baseURL, p.model, p.apiKey)
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
		if err != nil {
			sendChunk(ctx, chunks, StreamChunk{Type: ChunkTypeError, Err: err})
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(reqBody)), nil
		}

		resp, err := p.httpClient.Do(httpReq)
		if err != nil {
			sendChunk(ctx, chunks, StreamChunk{Type: ChunkTypeError, Err: fmt.Errorf("generation request failed: %w", err)})
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			sendChunk(ctx, chunks, StreamChunk{Type: ChunkTypeError, Err: fmt.Errorf("generation API error (HTTP %d): %s", resp.StatusCode, string(body))})
			return
		}

		p.parseStream(ctx, resp.Body, chunks)
	}()

	return chunks, nil
}

func (p *NativeProvider) post(ctx context.Context, method string, request *nativeRequest) ([]byte, error) {
	reqBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s%s?key=%s", p.baseURL, p.model, method, p.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(reqBody)), nil
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("generation request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("generation API error (HTTP %d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func (p *NativeProvider) buildRequest(messages []Message, tools []ToolDefinition) *nativeRequest {
	genConfig := &nativeGenerationConfig{MaxOutputTokens: p.maxTokens}
	if p.temperature > 0 {
		temp := p.temperature
		genConfig.Temperature = &temp
	}

	req := &nativeRequest{
		Contents:         convertMessagesToNative(messages),
		GenerationConfig: genConfig,
	}
	if len(tools) > 0 {
		declarations := make([]nativeFunctionDeclaration, len(tools))
		for i, tool := range tools {
			declarations[i] = nativeFunctionDeclaration{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			}
		}
		req.Tools = []nativeToolSet{{FunctionDeclarations: declarations}}
	}
	return req
}

// convertMessagesToNative maps provider-neutral messages to the wire
// format. The API has no system role; system prompts become a leading
// user turn. Assistant turns use the "model" role.
func convertMessagesToNative(messages []Message) []nativeContent {
	var contents []nativeContent

	for _, msg := range messages {
		role := msg.Role
		switch role {
		case RoleAssistant:
			role = "model"
		case RoleSystem, RoleTool:
			role = "user"
		}

		var parts []nativePart

		if msg.Role == RoleTool {
			parts = append(parts, nativePart{
				"functionResponse": map[string]any{
					"name": msg.Name,
					"response": map[string]any{
						"content": msg.Content,
					},
				},
			})
		} else if msg.Content != "" {
			parts = append(parts, nativePart{"text": msg.Content})
		}

		for _, tc := range msg.ToolCalls {
			parts = append(parts, nativePart{
				"functionCall": map[string]any{
					"name": tc.Name,
					"args": tc.Arguments,
				},
			})
		}

		if len(parts) > 0 {
			contents = append(contents, nativeContent{Role: role, Parts: parts})
		}
	}

	return contents
}

func (p *NativeProvider) parseResponse(resp *nativeResponse) (*Response, error) {
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("no candidates in response")
	}

	candidate := resp.Candidates[0]
	var textParts []string
	var toolCalls []ToolCall

	for _, part := range candidate.Content.Parts {
		if text, ok := part["text"].(string); ok {
			textParts = append(textParts, text)
		}
		if fc, ok := part["functionCall"].(map[string]any); ok {
			name, _ := fc["name"].(string)
			args, _ := fc["args"].(map[string]any)
			toolCalls = append(toolCalls, ToolCall{
				ID:        fmt.Sprintf("call_%d", len(toolCalls)),
				Name:      name,
				Arguments: args,
			})
		}
	}

	result := &Response{
		Text:         strings.Join(textParts, ""),
		ToolCalls:    toolCalls,
		FinishReason: normalizeNativeFinishReason(candidate.FinishReason, len(toolCalls) > 0),
	}
	if resp.UsageMetadata != nil {
		result.Usage = Usage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		}
	}
	return result, nil
}

func normalizeNativeFinishReason(reason string, hasToolCalls bool) string {
	if hasToolCalls {
		return FinishToolCalls
	}
	switch reason {
	case "MAX_TOKENS":
		return FinishLength
	default:
		return FinishStop
	}
}

func (p *NativeProvider) parseStream(ctx context.Context, body io.Reader, chunks chan<- StreamChunk) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	usage := Usage{}
	finishReason := FinishStop
	sawToolCall := false
	callSeq := 0

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		var resp nativeResponse
		if err := json.Unmarshal([]byte(data), &resp); err != nil {
			continue
		}

		if resp.Error != nil {
			sendChunk(ctx, chunks, StreamChunk{Type: ChunkTypeError, Err: fmt.Errorf("generation API error: %s", resp.Error.Message)})
			return
		}

		if len(resp.Candidates) > 0 {
			candidate := resp.Candidates[0]
			if candidate.FinishReason == "MAX_TOKENS" {
				finishReason = FinishLength
			}

			for _, part := range candidate.Content.Parts {
				if text, ok := part["text"].(string); ok && text != "" {
					if !sendChunk(ctx, chunks, StreamChunk{Type: ChunkTypeText, Text: text}) {
						return
					}
				}
				if fc, ok := part["functionCall"].(map[string]any); ok {
					name, _ := fc["name"].(string)
					args, _ := fc["args"].(map[string]any)
					sawToolCall = true
					sent := sendChunk(ctx, chunks, StreamChunk{
						Type: ChunkTypeToolCall,
						ToolCall: &ToolCall{
							ID:        fmt.Sprintf("call_%d", callSeq),
							Name:      name,
							Arguments: args,
						},
					})
					if !sent {
						return
					}
					callSeq++
				}
			}
		}

		if resp.UsageMetadata != nil {
			usage = Usage{
				PromptTokens:     resp.UsageMetadata.PromptTokenCount,
				CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
				TotalTokens:      resp.UsageMetadata.TotalTokenCount,
			}
		}
	}

	if err := scanner.Err(); err != nil {
		sendChunk(ctx, chunks, StreamChunk{Type: ChunkTypeError, Err: fmt.Errorf("failed to read stream: %w", err)})
		return
	}

	if sawToolCall {
		finishReason = FinishToolCalls
	}
	sendChunk(ctx, chunks, StreamChunk{Type: ChunkTypeDone, FinishReason: finishReason, Usage: usage})
}

func recordLLMCall(ctx context.Context, model string, duration time.Duration, usage Usage, err error) {
	if metrics := observability.GetGlobalMetrics(); metrics != nil {
		metrics.RecordLLMCall(ctx, model, duration, usage.PromptTokens, usage.CompletionTokens, err)
	}
}

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

// OpenAIProvider speaks the OpenAI-compatible chat completions API. It
// works against any endpoint that implements /chat/completions,
// including self-hosted gateways.
type OpenAIProvider struct {
	baseURL     string
	apiKey      string
	headers     map[string]string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *httpclient.Client
}

type OpenAIProviderOptions struct {
	BaseURL     string
	APIKey      string
	Headers     map[string]string
	Model       string
	Temperature float64
	MaxTokens   int
}

func NewOpenAIProvider(opts OpenAIProviderOptions) (*OpenAIProvider, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("openai-compatible provider base URL is required")
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	return &OpenAIProvider{
		baseURL:     strings.TrimSuffix(opts.BaseURL, "/"),
		apiKey:      opts.APIKey,
		headers:     opts.Headers,
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		httpClient: httpclient.New(
			httpclient.WithMaxRetries(3),
			httpclient.WithBaseDelay(2*time.Second),
			httpclient.WithHeaderParser(httpclient.ParseOpenAIHeaders),
		),
	}, nil
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Tools       []openAITool    `json:"tools,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	Name       string           `json:"name,omitempty"`
}

type openAIToolCall struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Function openAIFunction `json:"function"`
}

type openAIFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openAITool struct {
	Type     string            `json:"type"`
	Function openAIToolDetails `json:"function"`
}

type openAIToolDetails struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type openAIResponse struct {
	Choices []openAIChoice `json:"choices"`
	Usage   *openAIUsage   `json:"usage,omitempty"`
	Error   *openAIError   `json:"error,omitempty"`
}

type openAIChoice struct {
	Message      openAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openAIStreamResponse struct {
	Choices []openAIStreamChoice `json:"choices"`
	Usage   *openAIUsage         `json:"usage,omitempty"`
	Error   *openAIError         `json:"error,omitempty"`
}

type openAIStreamChoice struct {
	Delta        openAIStreamDelta `json:"delta"`
	FinishReason string            `json:"finish_reason"`
}

type openAIStreamDelta struct {
	Content   string                 `json:"content"`
	ToolCalls []openAIStreamToolCall `json:"tool_calls,omitempty"`
}

type openAIStreamToolCall struct {
	Index    int            `json:"index"`
	ID       string         `json:"id"`
	Function openAIFunction `json:"function"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (p *OpenAIProvider) ModelName() string {
	return p.model
}

func (p *OpenAIProvider) Close() error {
	return nil
}

func (p *OpenAIProvider) Generate(ctx context.Context, messages []Message, tools []ToolDefinition) (*Response, error) {
	startTime := time.Now()

	tracer := observability.GetTracer("paddock.llm")
	ctx, span := tracer.Start(ctx, observability.SpanLLMGenerate,
		trace.WithAttributes(
			attribute.String(observability.AttrLLMModel, p.model),
			attribute.String("provider", "openai-compatible"),
			attribute.Bool("streaming", false),
		),
	)
	defer span.End()

	respBody, err := p.post(ctx, p.buildRequest(messages, tools, false))
	duration := time.Since(startTime)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordLLMCall(ctx, p.model, duration, Usage{}, err)
		return nil, err
	}

	var resp openAIResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		err = fmt.Errorf("failed to parse response: %w", err)
		span.RecordError(err)
		recordLLMCall(ctx, p.model, duration, Usage{}, err)
		return nil, err
	}
	if resp.Error != nil {
		err = fmt.Errorf("chat completions API error: %s", resp.Error.Message)
		span.RecordError(err)
		span.SetStatus(codes.Error, resp.Error.Message)
		recordLLMCall(ctx, p.model, duration, Usage{}, err)
		return nil, err
	}
	if len(resp.Choices) == 0 {
		err = fmt.Errorf("no choices in response")
		span.RecordError(err)
		recordLLMCall(ctx, p.model, duration, Usage{}, err)
		return nil, err
	}

	choice := resp.Choices[0]
	result := &Response{
		Text:         choice.Message.Content,
		ToolCalls:    parseOpenAIToolCalls(choice.Message.ToolCalls),
		FinishReason: normalizeOpenAIFinishReason(choice.FinishReason),
	}
	// Reported tool_calls with nothing parseable ends the turn as a
	// plain stop, so the caller never sees a terminal tool_calls reason.
	if result.FinishReason == FinishToolCalls && len(result.ToolCalls) == 0 {
		result.FinishReason = FinishStop
	}
	if resp.Usage != nil {
		result.Usage = Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
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

func (p *OpenAIProvider) GenerateStreaming(ctx context.Context, messages []Message, tools []ToolDefinition) (<-chan StreamChunk, error) {
	request := p.buildRequest(messages, tools, true)
	chunks := make(chan StreamChunk, 10)

	go func() {
		defer close(chunks)

		resp, err := p.send(ctx, request)
		if err != nil {
			sendChunk(ctx, chunks, StreamChunk{Type: ChunkTypeError, Err: err})
			return
		}
		defer resp.Body.Close()

		p.parseStream(ctx, resp.Body, chunks)
	}()

	return chunks, nil
}

func (p *OpenAIProvider) post(ctx context.Context, request *openAIRequest) ([]byte, error) {
	resp, err := p.send(ctx, request)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

func (p *OpenAIProvider) send(ctx context.Context, request *openAIRequest) (*http.Response, error) {
	reqBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := p.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	for k, v := range p.headers {
		httpReq.Header.Set(k, v)
	}
	httpReq.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(reqBody)), nil
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat completions request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("chat completions API error (HTTP %d): %s", resp.StatusCode, string(body))
	}
	return resp, nil
}

func (p *OpenAIProvider) buildRequest(messages []Message, tools []ToolDefinition, stream bool) *openAIRequest {
	req := &openAIRequest{
		Model:       p.model,
		Messages:    convertMessagesToOpenAI(messages),
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
		Stream:      stream,
	}
	for _, tool := range tools {
		req.Tools = append(req.Tools, openAITool{
			Type: "function",
			Function: openAIToolDetails{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}
	return req
}

func convertMessagesToOpenAI(messages []Message) []openAIMessage {
	result := make([]openAIMessage, 0, len(messages))
	for _, msg := range messages {
		m := openAIMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
			Name:       msg.Name,
		}
		for _, tc := range msg.ToolCalls {
			args, err := json.Marshal(tc.Arguments)
			if err != nil {
				args = []byte("{}")
			}
			m.ToolCalls = append(m.ToolCalls, openAIToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: openAIFunction{
					Name:      tc.Name,
					Arguments: string(args),
				},
			})
		}
		result = append(result, m)
	}
	return result
}

func parseOpenAIToolCalls(calls []openAIToolCall) []ToolCall {
	var result []ToolCall
	for _, call := range calls {
		args := make(map[string]any)
		if call.Function.Arguments != "" {
			// Malformed arguments surface downstream as an empty map
			// rather than failing the whole response.
			_ = json.Unmarshal([]byte(call.Function.Arguments), &args)
		}
		result = append(result, ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: args,
		})
	}
	return result
}

func normalizeOpenAIFinishReason(reason string) string {
	switch reason {
	case "length":
		return FinishLength
	case "tool_calls":
		return FinishToolCalls
	default:
		return FinishStop
	}
}

func (p *OpenAIProvider) parseStream(ctx context.Context, body io.Reader, chunks chan<- StreamChunk) {
	reader := bufio.NewReader(body)

	usage := Usage{}
	finishReason := FinishStop
	toolCallsByIndex := make(map[int]*openAIToolCall)
	var toolCallOrder []int

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				sendChunk(ctx, chunks, StreamChunk{Type: ChunkTypeError, Err: fmt.Errorf("failed to read stream: %w", err)})
				return
			}
			break
		}

		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var resp openAIStreamResponse
		if err := json.Unmarshal([]byte(data), &resp); err != nil {
			continue
		}

		if resp.Error != nil {
			sendChunk(ctx, chunks, StreamChunk{Type: ChunkTypeError, Err: fmt.Errorf("chat completions API error: %s", resp.Error.Message)})
			return
		}
		if resp.Usage != nil {
			usage = Usage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			}
		}
		if len(resp.Choices) == 0 {
			continue
		}

		choice := resp.Choices[0]
		if choice.Delta.Content != "" {
			if !sendChunk(ctx, chunks, StreamChunk{Type: ChunkTypeText, Text: choice.Delta.Content}) {
				return
			}
		}

		for _, delta := range choice.Delta.ToolCalls {
			call, ok := toolCallsByIndex[delta.Index]
			if !ok {
				call = &openAIToolCall{}
				toolCallsByIndex[delta.Index] = call
				toolCallOrder = append(toolCallOrder, delta.Index)
			}
			if delta.ID != "" {
				call.ID = delta.ID
			}
			if delta.Function.Name != "" {
				call.Function.Name = delta.Function.Name
			}
			call.Function.Arguments += delta.Function.Arguments
		}

		if choice.FinishReason != "" {
			finishReason = normalizeOpenAIFinishReason(choice.FinishReason)
		}
	}

	emitted := 0
	for _, idx := range toolCallOrder {
		call := toolCallsByIndex[idx]
		parsed := parseOpenAIToolCalls([]openAIToolCall{*call})
		if len(parsed) == 1 {
			tc := parsed[0]
			if !sendChunk(ctx, chunks, StreamChunk{Type: ChunkTypeToolCall, ToolCall: &tc}) {
				return
			}
			emitted++
		}
	}
	// The finish reason follows the calls actually emitted: a model
	// that claims tool_calls but produced none ends as a plain stop.
	if emitted > 0 {
		finishReason = FinishToolCalls
	} else if finishReason == FinishToolCalls {
		finishReason = FinishStop
	}

	sendChunk(ctx, chunks, StreamChunk{Type: ChunkTypeDone, FinishReason: finishReason, Usage: usage})
}

package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kestrel-agent/kestrel/internal/interfaces"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
	log     *slog.Logger
}

var _ interfaces.StreamingProvider = (*Client)(nil)

// NewClient builds a client for the given endpoint. baseURL may be empty
// for the OpenAI default; any server speaking the chat completions protocol
// works.
func NewClient(baseURL, apiKey, model string, log *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		http:    &http.Client{Timeout: 120 * time.Second},
		log:     log,
	}
}

type wireRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
	Tools    []wireTool    `json:"tools,omitempty"`
	Stream   bool          `json:"stream,omitempty"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	Index    int          `json:"index,omitempty"`
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type wireTool struct {
	Type     string         `json:"type"`
	Function wireToolSchema `json:"function"`
}

type wireToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type wireResponse struct {
	Choices []struct {
		Message wireMessage `json:"message"`
	} `json:"choices"`
}

type wireChunk struct {
	Choices []struct {
		Delta wireMessage `json:"delta"`
	} `json:"choices"`
}

// Chat performs a blocking completion call.
func (c *Client) Chat(ctx context.Context, messages []interfaces.Message, tools []interfaces.ToolDefinition) (*interfaces.Reply, error) {
	resp, err := c.post(ctx, wireRequest{
		Model:    c.model,
		Messages: encodeMessages(messages),
		Tools:    encodeTools(tools),
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var decoded wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode completion: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return nil, fmt.Errorf("completion returned no choices")
	}
	return decodeReply(decoded.Choices[0].Message)
}

// ChatStream performs a streaming completion call, invoking onDelta for
// each text fragment as it arrives.
func (c *Client) ChatStream(ctx context.Context, messages []interfaces.Message, tools []interfaces.ToolDefinition, onDelta func(string)) (*interfaces.Reply, error) {
	resp, err := c.post(ctx, wireRequest{
		Model:    c.model,
		Messages: encodeMessages(messages),
		Tools:    encodeTools(tools),
		Stream:   true,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var (
		content strings.Builder
		calls   []wireToolCall // accumulated by index
	)
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "" || data == "[DONE]" {
			continue
		}
		var chunk wireChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			c.log.Debug("skipping undecodable stream chunk", "error", err)
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			content.WriteString(delta.Content)
			if onDelta != nil {
				onDelta(delta.Content)
			}
		}
		for _, tc := range delta.ToolCalls {
			for len(calls) <= tc.Index {
				calls = append(calls, wireToolCall{})
			}
			acc := &calls[tc.Index]
			if tc.ID != "" {
				acc.ID = tc.ID
			}
			if tc.Function.Name != "" {
				acc.Function.Name = tc.Function.Name
			}
			acc.Function.Arguments += tc.Function.Arguments
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: read stream: %v", ErrConnectivity, err)
	}

	return decodeReply(wireMessage{Content: content.String(), ToolCalls: calls})
}

func (c *Client) post(ctx context.Context, body wireRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectivity, err)
	}
	c.log.Debug("completion request",
		"model", c.model, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d", ErrAuth, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: status %d", ErrRateLimited, resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrConnectivity, resp.StatusCode)
	default:
		return nil, fmt.Errorf("completion failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
}

func encodeMessages(messages []interfaces.Message) []wireMessage {
	out := make([]wireMessage, len(messages))
	for i, msg := range messages {
		wm := wireMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		for _, call := range msg.ToolCalls {
			args, err := json.Marshal(call.Arguments)
			if err != nil {
				args = []byte("{}")
			}
			wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
				ID:       call.ID,
				Type:     "function",
				Function: wireFunction{Name: call.Name, Arguments: string(args)},
			})
		}
		out[i] = wm
	}
	return out
}

func encodeTools(tools []interfaces.ToolDefinition) []wireTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]wireTool, len(tools))
	for i, def := range tools {
		out[i] = wireTool{
			Type: "function",
			Function: wireToolSchema{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		}
	}
	return out
}

func decodeReply(msg wireMessage) (*interfaces.Reply, error) {
	reply := &interfaces.Reply{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		if tc.Function.Name == "" {
			continue
		}
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("decode tool arguments for %s: %w", tc.Function.Name, err)
			}
		}
		reply.ToolCalls = append(reply.ToolCalls, interfaces.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	return reply, nil
}

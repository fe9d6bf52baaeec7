package llm

// Message is one entry in a chat-completion request (spec §6.1).
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolDefinition describes a tool the model may choose to invoke, in the
// JSON-schema shape the local inference server expects.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Options carries the sampling/shape controls from spec §6.1.
type Options struct {
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"topP,omitempty"`
	MaxTokens   int     `json:"maxTokens,omitempty"`
	Format      string  `json:"format,omitempty"`
}

// chatRequest is the wire shape POSTed to {baseURL}/api/chat.
type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	System   string    `json:"system,omitempty"`
	Stream   bool      `json:"stream"`
	Options  Options   `json:"options,omitempty"`
}

// chatMessage is the message object embedded in a chat response/chunk.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the non-streaming reply shape.
type chatResponse struct {
	Message       chatMessage `json:"message"`
	Done          bool        `json:"done"`
	TotalDuration int64       `json:"totalDuration"`
	Error         string      `json:"error,omitempty"`
}

// StreamChunk is one decoded NDJSON line from a streaming response.
type StreamChunk struct {
	Content       string
	Done          bool
	TotalDuration int64
	Err           error
}

// CompletionResult is the aggregate result of a non-streaming Complete call.
type CompletionResult struct {
	Content       string
	TotalDuration int64
}

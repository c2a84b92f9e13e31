// Package chat provides a unified interface for conversational LLM inference.
//
// The package abstracts chat completions behind a single Provider interface,
// enabling seamless switching between providers like OpenAI, Ollama, vLLM,
// Together, and others that implement the OpenAI-compatible API.
//
// Example usage:
//
//	client, _ := chat.NewClient(
//	    chat.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
//	    chat.WithModel("gpt-4o-mini"),
//	)
//	defer client.Close()
//
//	resp, _ := client.Chat(ctx, &chat.Request{
//	    Messages: []chat.Message{
//	        chat.NewUserMessage("Hello!"),
//	    },
//	})
package chat

import "context"

// Provider is the chat completion interface.
// All implementations must satisfy this interface.
type Provider interface {
	// Chat generates a response from a sequence of messages.
	Chat(ctx context.Context, req *Request) (*Response, error)

	// Health checks provider connectivity and API key validity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// Request for chat completions.
type Request struct {
	// Messages is the conversation history, system turn first.
	Messages []Message

	// Model overrides the default model.
	Model string

	// MaxTokens limits the response length.
	MaxTokens int

	// Temperature controls randomness (0.0-2.0).
	Temperature float64

	// Stop sequences that halt generation.
	Stop []string
}

// Response from chat completion.
type Response struct {
	// Message is the assistant's response.
	Message Message

	// FinishReason indicates why generation stopped.
	FinishReason string

	// Usage tracks token consumption.
	Usage Usage

	// Model used for generation.
	Model string

	// LatencyMs is the response time in milliseconds.
	LatencyMs int64
}

// Usage tracks token consumption for billing and limits.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

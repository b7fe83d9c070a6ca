package llm

import "encoding/json"

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// openAIRequest is the chat completions body.
type openAIRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// anthropicRequest is the messages API body.
type anthropicRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	System    string        `json:"system,omitempty"`
	Messages  []chatMessage `json:"messages"`
	Stream    bool          `json:"stream,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// streamFrame covers both OpenAI chunks and Anthropic stream events.
type streamFrame struct {
	Type    string `json:"type"`
	Choices []struct {
		Delta struct {
			Content *string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Delta *struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Model is an entry of the /models listing. OpenAI reports "object",
// Anthropic "type"; OpenRouter reports "name", Anthropic "display_name".
type Model struct {
	ID            string `json:"id" yaml:"id"`
	Object        string `json:"object,omitempty" yaml:"object,omitempty"`
	OwnedBy       string `json:"owned_by,omitempty" yaml:"owned_by,omitempty"`
	Name          string `json:"name,omitempty" yaml:"name,omitempty"`
	Description   string `json:"description,omitempty" yaml:"description,omitempty"`
	ContextLength uint64 `json:"context_length,omitempty" yaml:"context_length,omitempty"`
}

func (m *Model) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID            string `json:"id"`
		Object        string `json:"object"`
		Type          string `json:"type"`
		OwnedBy       string `json:"owned_by"`
		Name          string `json:"name"`
		DisplayName   string `json:"display_name"`
		Description   string `json:"description"`
		ContextLength uint64 `json:"context_length"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = Model{
		ID:            raw.ID,
		Object:        firstNonEmpty(raw.Object, raw.Type),
		OwnedBy:       raw.OwnedBy,
		Name:          firstNonEmpty(raw.Name, raw.DisplayName),
		Description:   raw.Description,
		ContextLength: raw.ContextLength,
	}
	return nil
}

type modelsResponse struct {
	Data []Model `json:"data"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

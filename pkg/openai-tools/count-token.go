package openai_tools

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
	"github.com/sashabaranov/go-openai"
)

const fallbackEncoding = "cl100k_base"

// CountToken estimates prompt tokens for messages the way the OpenAI cookbook does for chat models.
func CountToken(messages []openai.ChatCompletionMessage, model string) (int, error) {
	tkm, err := tiktoken.EncodingForModel(model)
	if err != nil {
		tkm, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return 0, fmt.Errorf("failed to get encoding: %w", err)
		}
	}

	const (
		tokensPerMessage = 3
		tokensPerName    = 1
		replyPriming     = 3
	)

	numTokens := replyPriming
	for _, message := range messages {
		numTokens += tokensPerMessage
		numTokens += len(tkm.Encode(message.Content, nil, nil))
		numTokens += len(tkm.Encode(message.Role, nil, nil))
		if message.Name != "" {
			numTokens += tokensPerName
			numTokens += len(tkm.Encode(message.Name, nil, nil))
		}
	}
	return numTokens, nil
}

// TrimToLimit drops the oldest non-system messages until the prompt fits in limit tokens.
// The first message is kept when it carries the system role; the last message is never dropped.
func TrimToLimit(messages []openai.ChatCompletionMessage, model string, limit int) ([]openai.ChatCompletionMessage, bool, error) {
	if limit <= 0 {
		return messages, false, nil
	}
	var head []openai.ChatCompletionMessage
	rest := messages
	if len(rest) > 0 && rest[0].Role == openai.ChatMessageRoleSystem {
		head, rest = rest[:1], rest[1:]
	}

	trimmed := false
	for {
		candidate := append(append([]openai.ChatCompletionMessage{}, head...), rest...)
		tokenCount, err := CountToken(candidate, model)
		if err != nil {
			return messages, false, err
		}
		if tokenCount < limit || len(rest) <= 1 {
			return candidate, trimmed, nil
		}
		rest = rest[1:]
		trimmed = true
	}
}

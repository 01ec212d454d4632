package app

import (
	"studylm/internal/chat"
	"studylm/pkg/ai"
)

// GeminiChatBackend adapts *ai.Client to the chat store's Backend
// interface.
type GeminiChatBackend struct {
	Client *ai.Client
}

func (b GeminiChatBackend) NewChat(model, systemInstruction string) chat.Handle {
	return b.Client.NewChat(model, systemInstruction)
}

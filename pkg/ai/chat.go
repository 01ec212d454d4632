package ai

import (
	"context"
	"fmt"
	"strings"
)

// Chat is a stateful multi-turn session. The Gemini REST API holds no
// server-side conversation state, so the full history rides along with
// every call; turns are appended only after a successful exchange.
type Chat struct {
	client  *Client
	model   string
	system  string
	history []content
}

// NewChat opens a chat session against the given model.
func (c *Client) NewChat(model, systemInstruction string) *Chat {
	return &Chat{
		client: c,
		model:  model,
		system: systemInstruction,
	}
}

// Model returns the model this session talks to.
func (ch *Chat) Model() string {
	return ch.model
}

// Send submits one user turn and returns the full model reply.
func (ch *Chat) Send(ctx context.Context, parts []Part) (string, error) {
	userTurn := content{Role: "user", Parts: wireParts(parts)}
	body := ch.request(userTurn)
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", ch.client.baseURL, normalizeModel(ch.model), ch.client.apiKey)
	var resp generateResponse
	if err := ch.client.doJSON(ctx, url, body, &resp); err != nil {
		return "", err
	}
	text := resp.text()
	if text == "" {
		return "", fmt.Errorf("empty response from gemini")
	}
	ch.commit(userTurn, text)
	return text, nil
}

// SendStream submits one user turn and streams the reply through fn,
// returning the accumulated full text.
func (ch *Chat) SendStream(ctx context.Context, parts []Part, fn func(chunk string) error) (string, error) {
	userTurn := content{Role: "user", Parts: wireParts(parts)}
	body := ch.request(userTurn)
	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s", ch.client.baseURL, normalizeModel(ch.model), ch.client.apiKey)

	var full strings.Builder
	err := ch.client.doStream(ctx, url, body, func(chunk string) error {
		full.WriteString(chunk)
		return fn(chunk)
	})
	if err != nil {
		return "", err
	}
	text := full.String()
	ch.commit(userTurn, text)
	return text, nil
}

func (ch *Chat) request(userTurn content) generateRequest {
	contents := make([]content, 0, len(ch.history)+1)
	contents = append(contents, ch.history...)
	contents = append(contents, userTurn)
	out := generateRequest{Contents: contents}
	if strings.TrimSpace(ch.system) != "" {
		out.SystemInstruction = &content{Parts: []part{{Text: ch.system}}}
	}
	return out
}

func (ch *Chat) commit(userTurn content, reply string) {
	ch.history = append(ch.history, userTurn)
	ch.history = append(ch.history, content{Role: "model", Parts: []part{{Text: reply}}})
}

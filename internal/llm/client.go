package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/xela07ax/atlas-chatops/internal/domain"
	"github.com/xela07ax/atlas-chatops/internal/infra"

	"go.uber.org/zap"
)

// Client — тонкая обертка над messages-API ассистента. Используется строго
// как fallback: классификация намерения, когда шаблоны не сработали, и
// необязательная шлифовка готового ответа. Любая ошибка здесь не фатальна,
// вызывающая сторона обязана уметь жить без ассистента.
type Client struct {
	cfg    infra.AssistantConfig
	http   *http.Client
	logger *zap.Logger
}

func NewClient(cfg infra.AssistantConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: timeout},
		logger: logger.With(zap.String("mod", "llm")),
	}
}

func (c *Client) Enabled() bool {
	return c != nil && c.cfg.Enabled && c.cfg.Endpoint != ""
}

type apiRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	System    string       `json:"system,omitempty"`
	Messages  []apiMessage `json:"messages"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

const intentSystemPrompt = `You classify a single chat message about a database platform into exactly one intent name from the provided list. Respond with the intent name only, nothing else. If no intent fits, respond with "unknown".`

// SuggestIntent просит ассистента отнести текст к одному из известных
// намерений. Ответ вне закрытого списка приравнивается к unknown.
func (c *Client) SuggestIntent(ctx context.Context, text string) (domain.Intent, error) {
	if !c.Enabled() {
		return domain.IntentUnknown, fmt.Errorf("assistant disabled")
	}

	names := make([]string, 0, len(domain.Intents))
	for _, it := range domain.Intents {
		names = append(names, string(it))
	}

	prompt := fmt.Sprintf("Known intents: %s\n\nMessage: %s", strings.Join(names, ", "), text)
	reply, err := c.complete(ctx, intentSystemPrompt, prompt, 32)
	if err != nil {
		return domain.IntentUnknown, err
	}

	candidate := domain.Intent(strings.ToLower(strings.TrimSpace(reply)))
	for _, it := range domain.Intents {
		if candidate == it {
			return it, nil
		}
	}
	return domain.IntentUnknown, nil
}

const polishSystemPrompt = `You rewrite a chat bot reply to be friendlier and easier to read. Keep every fact, number, name and warning intact. Do not add information. Respond with the rewritten reply only.`

// Polish возвращает отшлифованный текст ответа либо ошибку, по которой
// вызывающий откатится на детерминированный вариант.
func (c *Client) Polish(ctx context.Context, draft string) (string, error) {
	if !c.Enabled() {
		return "", fmt.Errorf("assistant disabled")
	}
	reply, err := c.complete(ctx, polishSystemPrompt, draft, 1024)
	if err != nil {
		return "", err
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", fmt.Errorf("assistant returned empty reply")
	}
	return reply, nil
}

func (c *Client) complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	body, err := json.Marshal(apiRequest{
		Model:     c.cfg.Model,
		MaxTokens: maxTokens,
		System:    system,
		Messages:  []apiMessage{{Role: "user", Content: user}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal assistant request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build assistant request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("assistant call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("assistant returned status %d", resp.StatusCode)
	}

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode assistant response: %w", err)
	}
	if len(parsed.Content) == 0 {
		return "", fmt.Errorf("assistant response has no content")
	}
	return parsed.Content[0].Text, nil
}

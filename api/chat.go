package api

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Message roles within a chat session.
const (
	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
)

// ChatMessage is one message in a conversation. ID is assigned by the
// server; optimistically appended user messages carry none.
type ChatMessage struct {
	ID        int64     `json:"id,omitempty"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// ChatSession is one logical conversation thread.
type ChatSession struct {
	SessionID   string        `json:"sessionId"`
	Title       string        `json:"title,omitempty"`
	ContextType string        `json:"contextType,omitempty"`
	Messages    []ChatMessage `json:"messages,omitempty"`
}

func (c *Client) ListChatSessions(ctx context.Context) ([]ChatSession, error) {
	var out listEnvelope[ChatSession]
	if err := c.Do(ctx, http.MethodGet, "/chat/sessions/", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *Client) CreateChatSession(ctx context.Context, contextType string) (*ChatSession, error) {
	var out ChatSession
	body := map[string]string{"contextType": contextType}
	if err := c.Do(ctx, http.MethodPost, "/chat/sessions/", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetChatSession returns session metadata together with its prior messages.
func (c *Client) GetChatSession(ctx context.Context, sessionID string) (*ChatSession, error) {
	var out ChatSession
	if err := c.Do(ctx, http.MethodGet, fmt.Sprintf("/chat/sessions/%s/", sessionID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteChatSession(ctx context.Context, sessionID string) error {
	return c.Do(ctx, http.MethodDelete, fmt.Sprintf("/chat/sessions/%s/", sessionID), nil, nil)
}

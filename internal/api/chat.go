package api

import (
	"context"
	"net/http"

	"github.com/weiawesome/fin-dashboard/internal/domain"
)

// ChatHistory returns the server's chat history, oldest first.
func (c *Client) ChatHistory(ctx context.Context) ([]domain.Message, error) {
	var msgs []domain.Message
	if err := c.call(ctx, http.MethodGet, "/api/chat/history", nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Health probes the backend.
func (c *Client) Health(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

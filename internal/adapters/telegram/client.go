/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/HamedShams/portfolio-pulse/internal/config"
	"github.com/rs/zerolog"
)

const defaultAPI = "https://api.telegram.org"

type Client struct {
	token string
	api   string
	http  *http.Client
	log   zerolog.Logger
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
	return &Client{token: cfg.TelegramToken, api: defaultAPI, http: &http.Client{Timeout: 10 * time.Second}, log: log}
}

// SendMarkdownV2 sends a message using MarkdownV2 parse mode. The text must
// already be escaped.
func (c *Client) SendMarkdownV2(ctx context.Context, chatID int64, text string) error {
	return c.send(ctx, map[string]any{"chat_id": chatID, "text": text, "parse_mode": "MarkdownV2", "disable_web_page_preview": true})
}

// SendPlain sends without parse_mode; used when a MarkdownV2 send is rejected.
func (c *Client) SendPlain(ctx context.Context, chatID int64, text string) error {
	return c.send(ctx, map[string]any{"chat_id": chatID, "text": text, "disable_web_page_preview": true})
}

func (c *Client) send(ctx context.Context, body map[string]any) error {
	if c.token == "" || body["chat_id"] == int64(0) {
		return fmt.Errorf("telegram: missing token or chat id")
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", c.api, c.token)
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("telegram sendMessage status=%d body=%s", resp.StatusCode, string(bodyBytes))
	}
	return nil
}

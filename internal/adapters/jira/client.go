/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/HamedShams/portfolio-pulse/internal/config"
	"github.com/rs/zerolog"
)

const (
	pageSize    = 100
	maxAttempts = 3
)

// StatusError is a non-2xx answer from Jira.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("jira api status=%d body=%s", e.Code, e.Body)
}

func (e *StatusError) retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

type Client struct {
	baseURL string
	token   string
	user    string
	pass    string
	http    *http.Client
	log     zerolog.Logger
	apiVer  string
	backoff time.Duration
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
	return &Client{
		baseURL: cfg.JiraBaseURL,
		token:   cfg.JiraPAT,
		user:    cfg.JiraUsername,
		pass:    cfg.JiraPassword,
		http:    &http.Client{Timeout: cfg.HTTPTimeout},
		log:     log,
		apiVer:  cfg.JiraAPIVersion,
		backoff: 300 * time.Millisecond,
	}
}

func (c *Client) apiURL(path string, q url.Values) string {
	base := strings.TrimRight(c.baseURL, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := base + path
	if len(q) > 0 {
		u = u + "?" + q.Encode()
	}
	return u
}

// doJSON decodes the response body into out.
func (c *Client) doJSON(ctx context.Context, method, u string, body, out any) error {
	if c.baseURL == "" {
		return errors.New("jira: empty baseURL")
	}
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = b
	}
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := c.once(ctx, method, u, payload, out)
		if err == nil {
			return nil
		}
		var se *StatusError
		if errors.As(err, &se) && !se.retryable() {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
		c.log.Debug().Err(err).Int("attempt", attempt+1).Str("url", u).Msg("jira: retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.backoff * time.Duration(1<<attempt)):
		}
	}
	return lastErr
}

func (c *Client) once(ctx context.Context, method, u string, payload []byte, out any) error {
	var r io.Reader
	if payload != nil {
		r = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	} else if c.user != "" && c.pass != "" {
		req.SetBasicAuth(c.user, c.pass)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("jira: decode response: %w", err)
	}
	return nil
}

// Page is one page of a JQL search.
type Page struct {
	Issues  []map[string]any
	StartAt int
	Total   int
}

func (c *Client) Search(ctx context.Context, jql string, startAt, max int) (Page, error) {
	if jql == "" {
		return Page{}, errors.New("jira: empty jql")
	}
	var (
		raw map[string]any
		err error
	)
	if c.apiVer == "2" {
		q := url.Values{}
		q.Set("jql", jql)
		if startAt > 0 {
			q.Set("startAt", fmt.Sprint(startAt))
		}
		if max > 0 {
			q.Set("maxResults", fmt.Sprint(max))
		}
		q.Set("fields", "*all")
		err = c.doJSON(ctx, http.MethodGet, c.apiURL("/rest/api/2/search", q), nil, &raw)
	} else {
		body := map[string]any{"jql": jql, "startAt": startAt, "maxResults": max, "fields": []string{"*all"}}
		err = c.doJSON(ctx, http.MethodPost, c.apiURL("/rest/api/3/search", nil), body, &raw)
	}
	if err != nil {
		return Page{}, err
	}
	p := Page{StartAt: startAt, Total: int(number(raw["total"]))}
	if items, ok := raw["issues"].([]any); ok {
		for _, it := range items {
			if m, ok := it.(map[string]any); ok {
				p.Issues = append(p.Issues, m)
			}
		}
	}
	return p, nil
}

// SearchAll walks every page of a JQL search.
func (c *Client) SearchAll(ctx context.Context, jql string) ([]map[string]any, error) {
	var out []map[string]any
	start := 0
	for {
		p, err := c.Search(ctx, jql, start, pageSize)
		if err != nil {
			return nil, err
		}
		out = append(out, p.Issues...)
		start += len(p.Issues)
		if len(p.Issues) == 0 || start >= p.Total {
			break
		}
	}
	c.log.Debug().Str("jql", jql).Int("issues", len(out)).Msg("jira: search done")
	return out, nil
}

// Field is one entry of the field catalogue.
type Field struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name"`
}

// Fields lists every system and custom field of the instance.
func (c *Client) Fields(ctx context.Context) ([]Field, error) {
	var out []Field
	if err := c.doJSON(ctx, http.MethodGet, c.apiURL("/rest/api/"+c.apiVer+"/field", nil), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DiscoverFields fills unset Epic Link and Story Points ids by field name.
// Configured ids always win. Lookup failures leave n unchanged.
func (c *Client) DiscoverFields(ctx context.Context, n Normalizer) Normalizer {
	if n.EpicLinkField != "" && n.StoryPointsField != "" {
		return n
	}
	fields, err := c.Fields(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("jira: field discovery failed")
		return n
	}
	for _, f := range fields {
		id := f.Key
		if id == "" {
			id = f.ID
		}
		switch strings.ToLower(strings.TrimSpace(f.Name)) {
		case "epic link":
			if n.EpicLinkField == "" {
				n.EpicLinkField = id
			}
		case "story points":
			if n.StoryPointsField == "" {
				n.StoryPointsField = id
			}
		}
	}
	c.log.Debug().Str("epic_link", n.EpicLinkField).Str("story_points", n.StoryPointsField).Msg("jira: fields discovered")
	return n
}

func number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	}
	return 0
}

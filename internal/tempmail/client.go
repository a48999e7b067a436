// Package tempmail creates disposable mailboxes on 1secmail.
package tempmail

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/zinin/homeops-bot/internal/httpapi"
)

const DefaultBaseURL = "https://www.1secmail.com/api/v1/"

var ErrBadAddress = errors.New("malformed mailbox address")

type Summary struct {
	ID      int    `json:"id"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Date    string `json:"date"`
}

type Message struct {
	Summary
	TextBody string `json:"textBody"`
	HTMLBody string `json:"htmlBody"`
}

// Body prefers the plain text part.
func (m *Message) Body() string {
	if strings.TrimSpace(m.TextBody) != "" {
		return m.TextBody
	}
	return m.HTMLBody
}

type Client struct {
	api *httpapi.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{api: httpapi.New(baseURL, nil, timeout)}
}

// Generate returns a new random address.
func (c *Client) Generate(ctx context.Context) (string, error) {
	var boxes []string
	if err := c.api.Get(ctx, "/?action=genRandomMailbox&count=1", &boxes); err != nil {
		return "", fmt.Errorf("generate mailbox: %w", err)
	}
	if len(boxes) == 0 {
		return "", errors.New("generate mailbox: empty response")
	}
	return boxes[0], nil
}

func (c *Client) Inbox(ctx context.Context, address string) ([]Summary, error) {
	q, err := mailboxQuery("getMessages", address)
	if err != nil {
		return nil, err
	}
	var msgs []Summary
	if err := c.api.Get(ctx, "/?"+q.Encode(), &msgs); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

func (c *Client) Read(ctx context.Context, address string, id int) (*Message, error) {
	q, err := mailboxQuery("readMessage", address)
	if err != nil {
		return nil, err
	}
	q.Set("id", fmt.Sprint(id))
	var msg Message
	if err := c.api.Get(ctx, "/?"+q.Encode(), &msg); err != nil {
		return nil, fmt.Errorf("read message %d: %w", id, err)
	}
	return &msg, nil
}

func mailboxQuery(action, address string) (url.Values, error) {
	login, domain, ok := strings.Cut(address, "@")
	if !ok || login == "" || domain == "" || strings.Contains(domain, "@") {
		return nil, fmt.Errorf("%w: %q", ErrBadAddress, address)
	}
	q := url.Values{}
	q.Set("action", action)
	q.Set("login", login)
	q.Set("domain", domain)
	return q, nil
}

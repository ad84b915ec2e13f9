// Package whatsapp wraps the WhatsApp Graph API for the two operations
// the agent needs: joining a group by invite and sending a text to a
// group. It is a plain protocol adapter — no retries, no idempotency.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// APIError is the translated form of any join/send failure: rejection by
// the API, a network error, or a timeout. Code is the HTTP status when
// one was received, 0 otherwise.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Code == 0 {
		return fmt.Sprintf("whatsapp api: %s", e.Message)
	}
	return fmt.Sprintf("whatsapp api: status %d: %s", e.Code, e.Message)
}

// GroupHandle is the API's view of a joined group.
type GroupHandle struct {
	ID          string `json:"group_id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// SendReceipt acknowledges an accepted outbound message.
type SendReceipt struct {
	MessageID string    `json:"messageId"`
	Timestamp time.Time `json:"timestamp"`
}

// Client calls the Graph API on behalf of one phone number.
type Client struct {
	baseURL       string
	accessToken   string
	phoneNumberID string
	httpClient    *http.Client
}

// NewClient creates a Graph API client. timeout bounds every request in
// addition to the caller's context.
func NewClient(baseURL, accessToken, phoneNumberID string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		accessToken:   accessToken,
		phoneNumberID: phoneNumberID,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type joinRequest struct {
	InviteCode  string `json:"invite_code"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// JoinGroup redeems an invite code. Rejections (invalid/expired invite,
// rate limit) and transport failures all surface as *APIError; the
// caller decides whether to retry.
func (c *Client) JoinGroup(ctx context.Context, inviteCode, name, description string) (*GroupHandle, error) {
	body, err := c.post(ctx, "/group_joins", joinRequest{
		InviteCode:  inviteCode,
		Name:        name,
		Description: description,
	})
	if err != nil {
		return nil, err
	}

	var handle GroupHandle
	if err := json.Unmarshal(body, &handle); err != nil {
		return nil, &APIError{Message: fmt.Sprintf("decode join response: %v", err)}
	}
	if handle.ID == "" {
		return nil, &APIError{Message: "join response carried no group id"}
	}
	return &handle, nil
}

type sendRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             sendText `json:"text"`
}

type sendText struct {
	Body string `json:"body"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// SendMessage posts a text message to a group. Duplicate calls may
// duplicate delivery; the API offers no idempotency key.
func (c *Client) SendMessage(ctx context.Context, groupID, content string) (*SendReceipt, error) {
	body, err := c.post(ctx, "/messages", sendRequest{
		MessagingProduct: "whatsapp",
		To:               groupID,
		Type:             "text",
		Text:             sendText{Body: content},
	})
	if err != nil {
		return nil, err
	}

	var resp sendResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &APIError{Message: fmt.Sprintf("decode send response: %v", err)}
	}
	receipt := &SendReceipt{Timestamp: time.Now()}
	if len(resp.Messages) > 0 {
		receipt.MessageID = resp.Messages[0].ID
	}
	return receipt, nil
}

type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	endpoint, err := c.safeURL(path)
	if err != nil {
		return nil, &APIError{Message: err.Error()}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, &APIError{Message: fmt.Sprintf("encode request: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, &APIError{Message: fmt.Sprintf("create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Message: fmt.Sprintf("read response: %v", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var eb apiErrorBody
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &eb) == nil && eb.Error.Message != "" {
			msg = eb.Error.Message
		}
		return nil, &APIError{Code: resp.StatusCode, Message: msg}
	}
	return body, nil
}

// safeHost matches valid hostname:port patterns.
var safeHost = regexp.MustCompile(`^[a-zA-Z0-9._:-]+$`)

// safeURL validates the configured base URL and builds the endpoint for
// this client's phone number.
func (c *Client) safeURL(path string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported URL scheme: %s", u.Scheme)
	}
	if !safeHost.MatchString(u.Host) {
		return "", fmt.Errorf("invalid host: %s", u.Host)
	}
	return u.Scheme + "://" + u.Host + strings.TrimRight(u.Path, "/") + "/" + c.phoneNumberID + path, nil
}

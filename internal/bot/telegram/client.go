// Package telegram is a thin Bot API client: long-polling updates source,
// throttled message sending, and webhook cleanup. The rest of the system only
// sees stream.Event values; Bot API wire details stay here.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/dmitrijs2005/debatekeeper/internal/bot/stream"
	"github.com/dmitrijs2005/debatekeeper/internal/common"
)

const defaultBaseURL = "https://api.telegram.org"

// Bot API global send limit is ~30 messages/second; stay under it.
const sendRateLimit = 25

// Client talks to the Telegram Bot API. Poll is intended for a single
// consumer loop per process and is not safe for concurrent use; SendMessage
// is safe for concurrent use and rate-limited.
type Client struct {
	baseURL     string
	token       string
	pollTimeout time.Duration
	httpClient  *http.Client
	limiter     *rate.Limiter

	offset int64
}

// NewClient constructs a client. baseURL is overridable for tests; pass an
// empty string for the public API endpoint.
func NewClient(token, baseURL string, pollTimeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		token:       token,
		pollTimeout: pollTimeout,
		// The request must outlive the server-side long-poll window.
		httpClient: &http.Client{Timeout: pollTimeout + 10*time.Second},
		limiter:    rate.NewLimiter(rate.Limit(sendRateLimit), sendRateLimit),
	}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
}

type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		From *struct {
			ID       int64  `json:"id"`
			Username string `json:"username"`
		} `json:"from"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		Text string `json:"text"`
	} `json:"message"`
}

// Poll long-polls getUpdates and maps message updates to stream events.
// An HTTP 409 from the API (another getUpdates consumer, or an active
// webhook) is returned as common.ErrConflict.
func (c *Client) Poll(ctx context.Context) ([]stream.Event, error) {
	q := url.Values{}
	q.Set("timeout", strconv.Itoa(int(c.pollTimeout.Seconds())))
	if c.offset != 0 {
		q.Set("offset", strconv.FormatInt(c.offset, 10))
	}

	var updates []update
	if err := c.call(ctx, "getUpdates", q, &updates); err != nil {
		return nil, err
	}

	events := make([]stream.Event, 0, len(updates))
	for _, u := range updates {
		if u.UpdateID >= c.offset {
			c.offset = u.UpdateID + 1
		}
		if u.Message == nil || u.Message.From == nil {
			continue
		}
		events = append(events, stream.Event{
			UpdateID: u.UpdateID,
			UserID:   u.Message.From.ID,
			ChatID:   u.Message.Chat.ID,
			Username: u.Message.From.Username,
			Text:     u.Message.Text,
		})
	}
	return events, nil
}

// SendMessage delivers text to the chat, waiting on the rate limiter first.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	payload := map[string]any{"chat_id": chatID, "text": text}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.methodURL("sendMessage"), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, nil)
}

// DeleteWebhook clears any push-style registration so long polling can own
// the stream. Run once at startup.
func (c *Client) DeleteWebhook(ctx context.Context, dropPending bool) error {
	q := url.Values{}
	if dropPending {
		q.Set("drop_pending_updates", "true")
	}
	return c.call(ctx, "deleteWebhook", q, nil)
}

func (c *Client) methodURL(method string) string {
	return c.baseURL + "/bot" + c.token + "/" + method
}

func (c *Client) call(ctx context.Context, method string, q url.Values, out any) error {
	u := c.methodURL(method)
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request: %w", err)
	}
	defer resp.Body.Close()

	var api apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&api); err != nil {
		return fmt.Errorf("telegram response decode: %w", err)
	}

	if !api.OK {
		if resp.StatusCode == http.StatusConflict || api.ErrorCode == http.StatusConflict {
			return fmt.Errorf("%w: %s", common.ErrConflict, api.Description)
		}
		return fmt.Errorf("telegram api error %d: %s", api.ErrorCode, api.Description)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(api.Result, out); err != nil {
		return fmt.Errorf("telegram result decode: %w", err)
	}
	return nil
}

package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/kimmyxpow/focus-sub001/internal/apperrors"
	"github.com/kimmyxpow/focus-sub001/internal/models"
)

// HTTPClient is the Fetcher backed by the command/query API.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient creates a client for the API at baseURL, authenticating
// every request with the given bearer token.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type sessionViewResponse struct {
	Session *models.Session      `json:"session"`
	Timer   models.TimerSnapshot `json:"timer"`
}

type messageResponse struct {
	Message *models.ChatMessage `json:"message"`
}

type messagesResponse struct {
	Messages []models.ChatMessage `json:"messages"`
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *HTTPClient) FetchSession(ctx context.Context, sessionID uuid.UUID) (*models.Session, models.TimerSnapshot, error) {
	var out sessionViewResponse
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/sessions/%s", sessionID), nil, &out)
	if err != nil {
		return nil, models.TimerSnapshot{}, err
	}
	return out.Session, out.Timer, nil
}

// FetchActiveSession returns (nil, zero, nil) when the user has no active
// session; that is the probe's steady state, not an error.
func (c *HTTPClient) FetchActiveSession(ctx context.Context) (*models.Session, models.TimerSnapshot, error) {
	var out sessionViewResponse
	err := c.do(ctx, http.MethodGet, "/api/sessions/active", nil, &out)
	if apperrors.IsNotFound(err) {
		return nil, models.TimerSnapshot{}, nil
	}
	if err != nil {
		return nil, models.TimerSnapshot{}, err
	}
	return out.Session, out.Timer, nil
}

func (c *HTTPClient) FetchMessages(ctx context.Context, sessionID uuid.UUID) ([]models.ChatMessage, error) {
	var out messagesResponse
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/sessions/%s/messages", sessionID), nil, &out)
	if err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (c *HTTPClient) SendMessage(ctx context.Context, sessionID uuid.UUID, text string) (*models.ChatMessage, error) {
	var out messageResponse
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/sessions/%s/messages", sessionID), map[string]string{"text": text}, &out)
	if err != nil {
		return nil, err
	}
	return out.Message, nil
}

func (c *HTTPClient) SendTyping(ctx context.Context, sessionID uuid.UUID, typing bool) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/sessions/%s/typing", sessionID), map[string]bool{"typing": typing}, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return apperrors.Transport("encode_failed", "failed to encode request body").Wrap(err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return apperrors.Transport("request_failed", "failed to build request").Wrap(err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return apperrors.Transport("request_failed", "request failed").Wrap(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Transport("decode_failed", "failed to decode response").Wrap(err)
	}
	return nil
}

// decodeError maps an API error envelope back onto the local error taxonomy
// so callers can keep matching by kind on either side of the wire.
func decodeError(resp *http.Response) error {
	var env errorEnvelope
	code, message := "unknown", fmt.Sprintf("request failed with status %d", resp.StatusCode)
	if err := json.NewDecoder(resp.Body).Decode(&env); err == nil && env.Error.Code != "" {
		code, message = env.Error.Code, env.Error.Message
	}

	switch resp.StatusCode {
	case http.StatusBadRequest:
		return apperrors.Validation(code, message)
	case http.StatusForbidden:
		return apperrors.Permission(code, message)
	case http.StatusNotFound:
		return apperrors.NotFound(code, message)
	case http.StatusConflict:
		return apperrors.StateConflict(code, message)
	default:
		return apperrors.Transport(code, message)
	}
}

package client

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

	"github.com/dkeye/Chat/internal/domain"
)

// APIError is a failed response from the fallback routes.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chat api: %d %s: %s", e.Status, e.Code, e.Message)
}

// Definitive reports whether retrying the same request cannot succeed.
func (e *APIError) Definitive() bool {
	return e.Status >= 400 && e.Status < 500
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// API talks to the stateless message routes.
type API struct {
	base string
	http *http.Client
}

func NewAPI(base string, hc *http.Client) *API {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &API{base: strings.TrimRight(base, "/"), http: hc}
}

// PostMessage sends through the fallback route. clientID makes a retry of a
// timed-out live send resolve to the same stored message.
func (a *API) PostMessage(ctx context.Context, room domain.RoomID, user domain.UserID, content, clientID string) (*domain.Message, error) {
	body, err := json.Marshal(map[string]string{
		"userId":   string(user),
		"content":  content,
		"clientId": clientID,
	})
	if err != nil {
		return nil, err
	}
	var msg domain.Message
	if err := a.do(ctx, http.MethodPost, a.path(room, ""), nil, body, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (a *API) Recent(ctx context.Context, room domain.RoomID, limit int) ([]domain.Message, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out struct {
		Messages []domain.Message `json:"messages"`
	}
	if err := a.do(ctx, http.MethodGet, a.path(room, ""), q, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (a *API) History(ctx context.Context, room domain.RoomID, user domain.UserID, cursor string, limit int) (*domain.HistoryPage, error) {
	q := url.Values{}
	q.Set("userId", string(user))
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var page domain.HistoryPage
	if err := a.do(ctx, http.MethodGet, a.path(room, "/history"), q, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (a *API) path(room domain.RoomID, suffix string) string {
	return a.base + "/messages/" + url.PathEscape(string(room)) + suffix
}

func (a *API) do(ctx context.Context, method, u string, q url.Values, body []byte, out any) error {
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return &APIError{Status: resp.StatusCode, Code: "bad_response", Message: err.Error()}
	}
	if !env.Success || resp.StatusCode >= 300 {
		e := &APIError{Status: resp.StatusCode}
		if env.Error != nil {
			e.Code, e.Message = env.Error.Code, env.Error.Message
		}
		return e
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

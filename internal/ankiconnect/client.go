package ankiconnect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const (
	DEFAULT_URL     = "http://127.0.0.1:8765"
	DEFAULT_VERSION = 6
)

// AnkiConnect 动作名
const (
	ActionVersion         = "version"
	ActionModelNames      = "modelNames"
	ActionModelFieldNames = "modelFieldNames"
)

// TransportError 网络层失败：连不上、非 2xx、响应不是合法信封
type TransportError struct {
	Status int // 没拿到响应时为 0
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("AnkiConnect Error: failed to connect to AnkiConnect (status %d)", e.Status)
	}
	return fmt.Sprintf("AnkiConnect Error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ApplicationError AnkiConnect 收到请求但在信封里返回了 error
type ApplicationError struct {
	Action  string
	Message string
}

func (e *ApplicationError) Error() string {
	return "AnkiConnect Error: " + e.Message
}

type request struct {
	Action  string            `json:"action"`
	Version int               `json:"version"`
	Params  map[string]string `json:"params"`
}

type envelope struct {
	Result json.RawMessage `json:"result"`
	Error  *string         `json:"error"`
}

// Client 对 AnkiConnect 的一次性 POST 调用做了薄封装，不重试也不设超时
type Client struct {
	HTTP       *http.Client
	URL        string
	APIVersion int
}

func NewClient(url string, version int) *Client {
	if url == "" {
		url = DEFAULT_URL
	}
	if version <= 0 {
		version = DEFAULT_VERSION
	}
	return &Client{
		HTTP:       &http.Client{},
		URL:        url,
		APIVersion: version,
	}
}

// Invoke 发送 {action, version, params}，成功时原样返回信封里的 result
func (c *Client) Invoke(ctx context.Context, action string, version int, params map[string]string) (json.RawMessage, error) {
	if params == nil {
		params = map[string]string{}
	}
	body, err := json.Marshal(request{Action: action, Version: version, Params: params})
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("encode request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &TransportError{Status: resp.StatusCode}
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, &TransportError{Err: fmt.Errorf("decode response: %w", err)}
	}
	if env.Error != nil {
		return nil, &ApplicationError{Action: action, Message: *env.Error}
	}
	return env.Result, nil
}

// ---- 用到的三个动作 ----

func (c *Client) Version(ctx context.Context) (int, error) {
	var v int
	err := c.invokeInto(ctx, ActionVersion, nil, &v)
	return v, err
}

func (c *Client) ModelNames(ctx context.Context) ([]string, error) {
	var names []string
	err := c.invokeInto(ctx, ActionModelNames, nil, &names)
	return names, err
}

func (c *Client) ModelFieldNames(ctx context.Context, modelName string) ([]string, error) {
	var names []string
	err := c.invokeInto(ctx, ActionModelFieldNames, map[string]string{"modelName": modelName}, &names)
	return names, err
}

func (c *Client) invokeInto(ctx context.Context, action string, params map[string]string, dst any) error {
	raw, err := c.Invoke(ctx, action, c.APIVersion, params)
	if err != nil {
		return err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &TransportError{Err: fmt.Errorf("decode %s result: %w", action, err)}
	}
	return nil
}

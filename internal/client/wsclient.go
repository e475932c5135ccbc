package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/anki-agent/internal/transport"
)

var ErrClosed = errors.New("bridge connection closed")

// WSClient 连到 agentd 的 /ws，按 id 把回复分发给等待中的调用
type WSClient struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan transport.MsgResponse
	err     error
	done    chan struct{}
}

func NewWSClient(rawURL, token string) (*WSClient, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("bad bridge url: %w", err)
	}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}

	d := &websocket.Dialer{HandshakeTimeout: 8 * time.Second}
	c, resp, err := d.Dial(u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial failed: %w (status %s)", err, resp.Status)
		}
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	w := &WSClient{
		conn:    c,
		pending: make(map[string]chan transport.MsgResponse),
		done:    make(chan struct{}),
	}
	go w.readLoop()
	return w, nil
}

func (w *WSClient) Close() error {
	if w.conn == nil {
		return nil
	}
	return w.conn.Close()
}

// Done 在读循环退出后关闭
func (w *WSClient) Done() <-chan struct{} { return w.done }

func (w *WSClient) readLoop() {
	defer close(w.done)
	for {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			w.fail(err)
			return
		}
		var resp transport.MsgResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			continue
		}
		w.mu.Lock()
		ch, ok := w.pending[resp.ID]
		delete(w.pending, resp.ID)
		w.mu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

func (w *WSClient) fail(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err == nil {
		w.err = fmt.Errorf("%w: %v", ErrClosed, err)
	}
	for id, ch := range w.pending {
		close(ch)
		delete(w.pending, id)
	}
}

// Call 发送一次请求并等待对应 id 的回复；返回的是回复里的 result 原文
func (w *WSClient) Call(ctx context.Context, action string, params map[string]string) (json.RawMessage, error) {
	id := uuid.NewString()
	ch := make(chan transport.MsgResponse, 1)

	w.mu.Lock()
	if w.err != nil {
		err := w.err
		w.mu.Unlock()
		return nil, err
	}
	w.pending[id] = ch
	w.mu.Unlock()

	req := transport.MsgRequest{ID: id, Action: action, Params: params}
	w.writeMu.Lock()
	err := w.conn.WriteJSON(req)
	w.writeMu.Unlock()
	if err != nil {
		w.forget(id)
		return nil, fmt.Errorf("send %s: %w", action, err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			w.mu.Lock()
			err := w.err
			w.mu.Unlock()
			return nil, err
		}
		return resp.Result, nil
	case <-ctx.Done():
		w.forget(id)
		return nil, ctx.Err()
	}
}

func (w *WSClient) forget(id string) {
	w.mu.Lock()
	delete(w.pending, id)
	w.mu.Unlock()
}

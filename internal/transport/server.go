package transport

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/anki-agent/internal/dispatcher"
	"github.com/anki-agent/internal/logger"
)

const (
	maxMessageBytes = 64 << 10
	pingInterval    = 15 * time.Second
	writeWait       = 5 * time.Second
	tokenHeader     = "X-Agent-Token"
	senderHeader    = "X-Agent-Sender"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatcher.Request) dispatcher.Result
}

type Sender interface {
	Send(v any) error
}

type WsSender struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (s *WsSender) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.c.SetWriteDeadline(time.Now().Add(writeWait))
	return s.c.WriteJSON(v)
}

func (s *WsSender) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeWait))
}

type Options struct {
	Token     string  // 为空时不校验
	RateLimit float64 // 每个连接每秒请求数，0 = 不限
	RateBurst int
	Logger    *logger.Logger
}

// Server 是 Message Bridge：WebSocket 和一次性 HTTP 两个入口共用同一个 Dispatcher
type Server struct {
	disp     Dispatcher
	opts     Options
	log      *logger.Logger
	upgrader websocket.Upgrader

	httpLimiter *rate.Limiter

	baseCtx  context.Context
	stop     context.CancelFunc
	inFlight sync.WaitGroup

	mu  sync.Mutex
	srv *http.Server
}

func NewServer(disp Dispatcher, opts Options) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		disp:    disp,
		opts:    opts,
		log:     opts.Logger,
		baseCtx: ctx,
		stop:    cancel,
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: checkOrigin}
	s.httpLimiter = newLimiter(opts)
	return s
}

func newLimiter(opts Options) *rate.Limiter {
	if opts.RateLimit <= 0 {
		return nil
	}
	burst := opts.RateBurst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/message", s.handleMessage)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// ListenAndServe 阻塞直到 Shutdown 被调用
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Shutdown 可能先于这里执行；之后拿到 srv 的 Shutdown 会让 ListenAndServe 直接返回
	s.mu.Lock()
	if s.baseCtx.Err() != nil {
		s.mu.Unlock()
		return nil
	}
	s.srv = srv
	s.mu.Unlock()

	s.log.Info("bridge listening on %s", addr)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown 停止接收新连接，取消进行中的请求并等它们回完
func (s *Server) Shutdown(ctx context.Context) error {
	s.stop()
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() { s.inFlight.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

func (s *Server) authorized(r *http.Request) bool {
	if s.opts.Token == "" {
		return true
	}
	got := r.URL.Query().Get("token")
	if got == "" {
		got = r.Header.Get(tokenHeader)
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.Token)) == 1
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "missing or invalid token", http.StatusUnauthorized)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageBytes)

	who := describeSender(r)
	s.log.Info("bridge connected: %s", who)

	ctx, cancel := context.WithCancel(s.baseCtx)
	sender := &WsSender{c: conn}
	limiter := newLimiter(s.opts)
	var conns sync.WaitGroup

	// 心跳，连接关闭后退出
	go func() {
		t := time.NewTicker(pingInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if err := sender.ping(); err != nil {
					return
				}
			}
		}
	}()

	// 服务关闭时打断阻塞的读
	go func() {
		<-ctx.Done()
		_ = conn.SetReadDeadline(time.Now())
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var msg MsgRequest
		if err := json.Unmarshal(data, &msg); err != nil {
			s.log.Warn("bridge: bad frame from %s: %v", who, err)
			// 能认出 id 就回一条 bad json，调用方不会一直挂着
			if m, ok := frameHead(data); ok {
				_ = sender.Send(rejected(m, "bad json"))
			}
			continue
		}
		if ctx.Err() != nil {
			break
		}
		if limiter != nil && !limiter.Allow() {
			_ = sender.Send(rejected(msg, "rate limit exceeded"))
			continue
		}

		// 每个请求一个 goroutine，互不阻塞
		conns.Add(1)
		s.inFlight.Add(1)
		go func(m MsgRequest) {
			defer s.inFlight.Done()
			defer conns.Done()
			resp := s.dispatch(ctx, m, who)
			if err := sender.Send(resp); err != nil {
				s.log.Warn("bridge: reply %s to %s failed: %v", m.ID, who, err)
			}
		}(msg)
	}

	cancel()
	conns.Wait()
	s.log.Info("bridge disconnected: %s", who)
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.authorized(r) {
		writeJSONError(w, http.StatusUnauthorized, "missing or invalid token")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxMessageBytes)

	var msg MsgRequest
	if err := readJSON(r.Body, &msg); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.httpLimiter != nil && !s.httpLimiter.Allow() {
		writeJSON(w, http.StatusTooManyRequests, rejected(msg, "rate limit exceeded").Result)
		return
	}

	s.inFlight.Add(1)
	defer s.inFlight.Done()
	ctx, cancel := mergeCancel(r.Context(), s.baseCtx)
	defer cancel()

	resp := s.dispatch(ctx, msg, describeSender(r))
	writeJSON(w, http.StatusOK, resp.Result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := Health{Status: "ok"}
	for _, a := range dispatcher.Actions() {
		h.Actions = append(h.Actions, string(a))
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) dispatch(ctx context.Context, m MsgRequest, who string) MsgResponse {
	res := s.disp.Dispatch(ctx, dispatcher.Request{
		Action: m.Action,
		Params: m.Params,
		Sender: who,
	})
	raw, err := json.Marshal(res)
	if err != nil {
		s.log.Error("bridge: encode %s result: %v", m.Action, err)
		return rejected(m, "encode result: "+err.Error())
	}
	return MsgResponse{ID: m.ID, Action: m.Action, Result: raw}
}

// frameHead 从解不开的帧里尽量取出 id 和 action，取不到 id 就放弃
func frameHead(data []byte) (MsgRequest, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return MsgRequest{}, false
	}
	var m MsgRequest
	if err := json.Unmarshal(fields["id"], &m.ID); err != nil || m.ID == "" {
		return MsgRequest{}, false
	}
	_ = json.Unmarshal(fields["action"], &m.Action)
	return m, true
}

func rejected(m MsgRequest, reason string) MsgResponse {
	raw, _ := json.Marshal(dispatcher.Result{Err: reason})
	return MsgResponse{ID: m.ID, Action: m.Action, Result: raw}
}

// mergeCancel 任一父 context 结束都会取消返回的 context
func mergeCancel(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	stop := context.AfterFunc(b, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func readJSON(body io.Reader, dst any) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errors.New("request body too large")
		}
		return errors.New("bad json")
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("bad json")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, dispatcher.Result{Err: msg})
}

// describeSender 给日志用，尽量说清楚是谁发来的
func describeSender(r *http.Request) string {
	if s := strings.TrimSpace(r.Header.Get(senderHeader)); s != "" {
		return s
	}
	if o := r.Header.Get("Origin"); o != "" {
		return o
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "Unknown Sender"
}

// checkOrigin 只放行本机页面、浏览器扩展和没有 Origin 的本地进程
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "chrome-extension", "moz-extension", "safari-web-extension":
		return true
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

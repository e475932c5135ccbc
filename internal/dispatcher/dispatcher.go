package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anki-agent/internal/logger"
)

// AnkiClient 是 handler 需要的 AnkiConnect 能力，*ankiconnect.Client 满足它
type AnkiClient interface {
	Version(ctx context.Context) (int, error)
	ModelNames(ctx context.Context) ([]string, error)
	ModelFieldNames(ctx context.Context, modelName string) ([]string, error)
}

// Config 在启动时构造一次，之后不再修改
type Config struct {
	Client AnkiClient
	Logger *logger.Logger
}

// Handler 处理单个动作；失败必须放进 Result，不能返回 error
type Handler func(ctx context.Context, params map[string]string) Result

// Dispatcher 持有只读的 action -> handler 表，可被多个 goroutine 同时使用
type Dispatcher struct {
	log      *logger.Logger
	handlers map[Action]Handler
}

func New(cfg Config) *Dispatcher {
	d := &Dispatcher{log: cfg.Logger}
	d.handlers = map[Action]Handler{
		ActionTestAnkiConnect: d.testAnkiConnect(cfg.Client),
		ActionFetchModels:     d.fetchModels(cfg.Client),
		ActionFetchFields:     d.fetchFields(cfg.Client),
	}
	return d
}

// Dispatch 查表并执行；任何失败都以 {error} 的形式返回，不会 panic 到调用方
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (res Result) {
	if req.Params == nil {
		req.Params = map[string]string{}
	}
	sender := req.Sender
	if sender == "" {
		sender = "Unknown Sender"
	}
	d.log.Info("Sender: %s Action: %s Params: %v", sender, req.Action, req.Params)

	action, ok := ParseAction(req.Action)
	if !ok {
		msg := fmt.Sprintf("Action %s is not found on the Action Map", req.Action)
		d.log.Warn("%s", msg)
		return failure(msg)
	}

	defer func() {
		if p := recover(); p != nil {
			msg := fmt.Sprintf("%s action failure: handler panic: %v", action, p)
			d.log.Error("%s", msg)
			res = failure(msg)
		}
	}()
	return d.handlers[action](ctx, req.Params)
}

// TEST-ANKICONNECT 只报告能否连通，从不返回 {error}
func (d *Dispatcher) testAnkiConnect(c AnkiClient) Handler {
	return func(ctx context.Context, _ map[string]string) Result {
		v, err := c.Version(ctx)
		if err != nil {
			d.log.Info("%s action failure: %v", ActionTestAnkiConnect, err)
			return success(Reachability{Response: false})
		}
		d.log.Info("%s action success: AnkiConnect version %d", ActionTestAnkiConnect, v)
		return success(Reachability{Response: true})
	}
}

func (d *Dispatcher) fetchModels(c AnkiClient) Handler {
	return func(ctx context.Context, _ map[string]string) Result {
		models, err := c.ModelNames(ctx)
		if err != nil {
			return d.fail(ActionFetchModels, err)
		}
		d.log.Info("%s action success: %d models", ActionFetchModels, len(models))
		return success(nonNil(models))
	}
}

func (d *Dispatcher) fetchFields(c AnkiClient) Handler {
	return func(ctx context.Context, params map[string]string) Result {
		modelName := params["modelName"]
		if strings.TrimSpace(modelName) == "" {
			return d.fail(ActionFetchFields, errors.New("missing required param modelName"))
		}
		fields, err := c.ModelFieldNames(ctx, modelName)
		if err != nil {
			return d.fail(ActionFetchFields, err)
		}
		d.log.Info("%s action success: %d fields for %q", ActionFetchFields, len(fields), modelName)
		return success(nonNil(fields))
	}
}

func (d *Dispatcher) fail(action Action, err error) Result {
	msg := fmt.Sprintf("%s action failure: %v", action, err)
	d.log.Error("%s", msg)
	return failure(msg)
}

// 空列表序列化成 [] 而不是 null
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

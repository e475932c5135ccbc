package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anki-agent/internal/dispatcher"
	"github.com/anki-agent/internal/transport"
)

// Caller 是把动作送到后台的任意通道
type Caller interface {
	Call(ctx context.Context, action string, params map[string]string) (json.RawMessage, error)
}

// Service 把几个动作包装成 UI 直接可用的函数；带 error 键的回复变成 Go error
type Service struct {
	caller Caller
}

func NewService(caller Caller) *Service {
	return &Service{caller: caller}
}

// ConnectionStatus AnkiConnect 能否连通
func (s *Service) ConnectionStatus(ctx context.Context) (bool, error) {
	var r dispatcher.Reachability
	if err := s.call(ctx, dispatcher.ActionTestAnkiConnect, nil, &r); err != nil {
		return false, err
	}
	return r.Response, nil
}

// Models 获取所有笔记类型（model）名
func (s *Service) Models(ctx context.Context) ([]string, error) {
	var models []string
	err := s.call(ctx, dispatcher.ActionFetchModels, nil, &models)
	return models, err
}

// FieldNames 获取某个 model 的字段名
func (s *Service) FieldNames(ctx context.Context, model string) ([]string, error) {
	var fields []string
	err := s.call(ctx, dispatcher.ActionFetchFields, map[string]string{"modelName": model}, &fields)
	return fields, err
}

// Raw 发送任意动作，只做 error 键检查
func (s *Service) Raw(ctx context.Context, action string, params map[string]string) (json.RawMessage, error) {
	raw, err := s.caller.Call(ctx, action, params)
	if err != nil {
		return nil, fmt.Errorf("callBackgroundService Error: %w", err)
	}
	if msg, failed := transport.ErrorOf(raw); failed {
		return raw, fmt.Errorf("callBackgroundService Error: %s", msg)
	}
	return raw, nil
}

func (s *Service) call(ctx context.Context, action dispatcher.Action, params map[string]string, dst any) error {
	raw, err := s.Raw(ctx, string(action), params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("callBackgroundService Error: decode %s reply: %w", action, err)
	}
	return nil
}

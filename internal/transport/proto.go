package transport

import "encoding/json"

// MsgRequest UI -> agentd
type MsgRequest struct {
	ID     string            `json:"id,omitempty"`     // 调用方生成，回复里原样带回（HTTP 通道可省略）
	Action string            `json:"action"`           // TEST-ANKICONNECT | FETCH-ANKI-MODELS | FETCH-ANKI-FIELDS
	Params map[string]string `json:"params,omitempty"` // 动作参数，缺省为 {}
}

// MsgResponse agentd -> UI，每个请求恰好一条
type MsgResponse struct {
	ID     string          `json:"id,omitempty"`
	Action string          `json:"action"`
	Result json.RawMessage `json:"result"` // 成功值，或 {"error": "..."}
}

// ErrorOf 从回复体里取出 error 字段；有没有 error 键是唯一的失败判断
func ErrorOf(result json.RawMessage) (string, bool) {
	var env struct {
		Error *string `json:"error"`
	}
	// 列表等非对象结果解析失败，视为成功
	if err := json.Unmarshal(result, &env); err != nil || env.Error == nil {
		return "", false
	}
	return *env.Error, true
}

// Health 是 GET /health 的返回体
type Health struct {
	Status  string   `json:"status"`
	Actions []string `json:"actions"`
}

package dispatcher

import "encoding/json"

// Action 是 UI 可以请求后台执行的动作，集合是封闭的
type Action string

const (
	ActionTestAnkiConnect Action = "TEST-ANKICONNECT"
	ActionFetchModels     Action = "FETCH-ANKI-MODELS"
	ActionFetchFields     Action = "FETCH-ANKI-FIELDS"
)

var allActions = []Action{ActionTestAnkiConnect, ActionFetchModels, ActionFetchFields}

// ParseAction 只认识上面三个名字
func ParseAction(name string) (Action, bool) {
	for _, a := range allActions {
		if string(a) == name {
			return a, true
		}
	}
	return "", false
}

// Actions returns the closed action set in a stable order.
func Actions() []Action {
	out := make([]Action, len(allActions))
	copy(out, allActions)
	return out
}

// Request 一次动作请求；Sender 只用于日志
type Request struct {
	Action string
	Params map[string]string
	Sender string
}

// Reachability 是 TEST-ANKICONNECT 的返回体
type Reachability struct {
	Response bool `json:"response"`
}

// Result 要么是成功值，要么是错误信息；序列化后 error 键是唯一的失败信号
type Result struct {
	Value any
	Err   string
}

func success(v any) Result { return Result{Value: v} }

func failure(msg string) Result { return Result{Err: msg} }

func (r Result) Failed() bool { return r.Err != "" }

func (r Result) MarshalJSON() ([]byte, error) {
	if r.Failed() {
		return json.Marshal(struct {
			Error string `json:"error"`
		}{r.Err})
	}
	return json.Marshal(r.Value)
}

// Package settings persists the user's note model, field and shortcut choices.
//
// Every operation fails closed: a read that cannot complete reports "not set",
// and a write that cannot complete reports false. Callers check the sentinel
// instead of handling errors.
package settings

import (
	"sync"

	"github.com/anki-agent/internal/logger"
)

type Key string

const (
	KeyModel         Key = "model"
	KeyImageField    Key = "imageField"
	KeyAudioField    Key = "audioField"
	KeyImageShortcut Key = "imageShortcut"
	KeyAudioShortcut Key = "audioShortcut"
)

const (
	DefaultImageShortcut = "BracketLeft"
	DefaultAudioShortcut = "BracketRight"
)

var knownKeys = map[Key]bool{
	KeyModel:         true,
	KeyImageField:    true,
	KeyAudioField:    true,
	KeyImageShortcut: true,
	KeyAudioShortcut: true,
}

// ParseKey 只接受上面五个键
func ParseKey(s string) (Key, bool) {
	k := Key(s)
	return k, knownKeys[k]
}

type Store struct {
	mu      sync.Mutex // 让读-改-写在本进程内是原子的
	backend Backend
	log     *logger.Logger
}

func NewStore(backend Backend, log *logger.Logger) *Store {
	return &Store{backend: backend, log: log}
}

// Open 用文件存储打开设置
func Open(path string, log *logger.Logger) *Store {
	return NewStore(NewFileBackend(path), log)
}

func (s *Store) Get(key Key) (string, bool) {
	if !knownKeys[key] {
		s.log.Warn("settings: unknown key %q", key)
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.backend.Load()
	if err != nil {
		s.log.Error("settings: read %s: %v", key, err)
		return "", false
	}
	v, ok := values[string(key)]
	return v, ok
}

func (s *Store) Set(key Key, value string) bool {
	if !knownKeys[key] {
		s.log.Warn("settings: unknown key %q", key)
		return false
	}
	if (key == KeyImageShortcut || key == KeyAudioShortcut) && value == "" {
		s.log.Warn("settings: empty %s rejected", key)
		return false
	}
	return s.update(func(values map[string]string) {
		values[string(key)] = value
	})
}

// Remove 删除若干键，不存在的键直接忽略
func (s *Store) Remove(keys ...Key) bool {
	for _, k := range keys {
		if !knownKeys[k] {
			s.log.Warn("settings: unknown key %q", k)
			return false
		}
	}
	return s.update(func(values map[string]string) {
		for _, k := range keys {
			delete(values, string(k))
		}
	})
}

// SetModel 保存模型；cascadeClear 为 true 时一并清掉图片/音频字段，
// 因为字段名只对原来的模型有意义
func (s *Store) SetModel(model string, cascadeClear bool) bool {
	return s.update(func(values map[string]string) {
		values[string(KeyModel)] = model
		if cascadeClear {
			delete(values, string(KeyImageField))
			delete(values, string(KeyAudioField))
		}
	})
}

func (s *Store) update(mutate func(map[string]string)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.backend.Load()
	if err != nil {
		s.log.Error("settings: load: %v", err)
		return false
	}
	mutate(values)
	if err := s.backend.Save(values); err != nil {
		s.log.Error("settings: save: %v", err)
		return false
	}
	return true
}

// ---- typed accessors ----

func (s *Store) SavedModel() (string, bool) { return s.Get(KeyModel) }
func (s *Store) SavedImageField() (string, bool) { return s.Get(KeyImageField) }
func (s *Store) SavedAudioField() (string, bool) { return s.Get(KeyAudioField) }

func (s *Store) SavedImageShortcut() string {
	if v, ok := s.Get(KeyImageShortcut); ok {
		return v
	}
	return DefaultImageShortcut
}

func (s *Store) SavedAudioShortcut() string {
	if v, ok := s.Get(KeyAudioShortcut); ok {
		return v
	}
	return DefaultAudioShortcut
}

func (s *Store) SetSavedImageField(field string) bool { return s.Set(KeyImageField, field) }
func (s *Store) SetSavedAudioField(field string) bool { return s.Set(KeyAudioField, field) }
func (s *Store) SetSavedImageShortcut(code string) bool { return s.Set(KeyImageShortcut, code) }
func (s *Store) SetSavedAudioShortcut(code string) bool { return s.Set(KeyAudioShortcut, code) }

// Snapshot 一次性读出所有设置，快捷键带默认值
type Snapshot struct {
	Model         string
	ImageField    string
	AudioField    string
	ImageShortcut string
	AudioShortcut string
}

func (s *Store) Snapshot() Snapshot {
	snap := Snapshot{
		ImageShortcut: s.SavedImageShortcut(),
		AudioShortcut: s.SavedAudioShortcut(),
	}
	snap.Model, _ = s.SavedModel()
	snap.ImageField, _ = s.SavedImageField()
	snap.AudioField, _ = s.SavedAudioField()
	return snap
}

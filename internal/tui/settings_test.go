package tui

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/anki-agent/internal/settings"
)

type fakeBackend struct {
	online bool
	models []string
	fields map[string][]string
}

func (f *fakeBackend) ConnectionStatus(context.Context) (bool, error) { return f.online, nil }

func (f *fakeBackend) Models(context.Context) ([]string, error) {
	if !f.online {
		return nil, errors.New("callBackgroundService Error: AnkiConnect Error: refused")
	}
	return f.models, nil
}

func (f *fakeBackend) FieldNames(_ context.Context, model string) ([]string, error) {
	fields, ok := f.fields[model]
	if !ok {
		return nil, errors.New("callBackgroundService Error: model not found")
	}
	return fields, nil
}

func newBackend() *fakeBackend {
	return &fakeBackend{
		online: true,
		models: []string{"Basic", "Cloze"},
		fields: map[string][]string{
			"Basic": {"Front", "Back", "Picture"},
			"Cloze": {"Text", "Extra"},
		},
	}
}

func newStore(t *testing.T) *settings.Store {
	t.Helper()
	return settings.Open(filepath.Join(t.TempDir(), "settings.json"), nil)
}

// step 把 cmd 同步执行一遍，直到没有后续命令
func step(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, cmd := m.Update(msg)
	m = next.(Model)
	for cmd != nil {
		out := cmd()
		if _, quit := out.(tea.QuitMsg); quit {
			return m
		}
		next, cmd = m.Update(out)
		m = next.(Model)
	}
	return m
}

func start(t *testing.T, b Backend, s Store) Model {
	t.Helper()
	m := New(b, s)
	return step(t, m, m.Init()())
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "backspace":
		return tea.KeyMsg{Type: tea.KeyBackspace}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func typeText(t *testing.T, m Model, s string) Model {
	for _, r := range s {
		m = step(t, m, key(string(r)))
	}
	return m
}

func clearInput(t *testing.T, m Model) Model {
	for range []rune(m.input) {
		m = step(t, m, key("backspace"))
	}
	return m
}

func TestFullFlowSavesSettings(t *testing.T) {
	store := newStore(t)
	m := start(t, newBackend(), store)
	if m.stage != stageModel {
		t.Fatalf("stage = %v, want model selection", m.stage)
	}
	if !strings.Contains(m.View(), "Connected to Anki") {
		t.Errorf("view lacks connected status:\n%s", m.View())
	}

	m = step(t, m, key("enter")) // Basic
	if m.stage != stageImageField {
		t.Fatalf("stage = %v, want image field", m.stage)
	}
	m = step(t, m, key("down"))
	m = step(t, m, key("down"))
	m = step(t, m, key("enter")) // Picture
	m = step(t, m, key("down"))
	m = step(t, m, key("enter")) // Back

	if m.stage != stageImageShortcut || m.input != settings.DefaultImageShortcut {
		t.Fatalf("stage = %v input = %q", m.stage, m.input)
	}
	m = clearInput(t, m)
	m = typeText(t, m, "KeyA")
	m = step(t, m, key("enter"))
	m = step(t, m, key("enter")) // keep audio default

	if m.stage != stageDone {
		t.Fatalf("stage = %v, want done", m.stage)
	}
	want := settings.Snapshot{
		Model:         "Basic",
		ImageField:    "Picture",
		AudioField:    "Back",
		ImageShortcut: "KeyA",
		AudioShortcut: settings.DefaultAudioShortcut,
	}
	if got := store.Snapshot(); got != want {
		t.Errorf("stored = %+v, want %+v", got, want)
	}
	if m.Snapshot() != want {
		t.Errorf("panel snapshot = %+v", m.Snapshot())
	}
}

func TestChangingModelClearsFields(t *testing.T) {
	store := newStore(t)
	store.SetModel("Basic", true)
	store.SetSavedImageField("Picture")
	store.SetSavedAudioField("Back")

	m := start(t, newBackend(), store)
	if m.cursor != 0 {
		t.Errorf("cursor should start on saved model, got %d", m.cursor)
	}
	m = step(t, m, key("down"))
	m = step(t, m, key("enter")) // Cloze

	if _, ok := store.SavedImageField(); ok {
		t.Error("imageField survived a model change")
	}
	if _, ok := store.SavedAudioField(); ok {
		t.Error("audioField survived a model change")
	}
	if m.stage != stageImageField || len(m.fields) != 2 {
		t.Errorf("stage = %v fields = %v", m.stage, m.fields)
	}
}

func TestReselectingSameModelKeepsFields(t *testing.T) {
	store := newStore(t)
	store.SetModel("Basic", true)
	store.SetSavedImageField("Picture")

	m := start(t, newBackend(), store)
	m = step(t, m, key("enter"))
	if v, _ := store.SavedImageField(); v != "Picture" {
		t.Errorf("imageField = %q", v)
	}
	if m.cursor != 2 {
		t.Errorf("cursor should preselect saved field, got %d", m.cursor)
	}
}

func TestOfflineAndReconnect(t *testing.T) {
	b := newBackend()
	b.online = false
	m := start(t, b, newStore(t))
	if m.stage != stageOffline {
		t.Fatalf("stage = %v, want offline", m.stage)
	}
	if !strings.Contains(m.View(), "Not Connected to Anki") {
		t.Errorf("view:\n%s", m.View())
	}

	b.online = true
	m = step(t, m, key("r"))
	if m.stage != stageModel {
		t.Errorf("stage after reconnect = %v", m.stage)
	}
}

func TestFieldErrorStaysOnModel(t *testing.T) {
	b := newBackend()
	b.models = append(b.models, "Ghost")
	m := start(t, b, newStore(t))
	m = step(t, m, key("down"))
	m = step(t, m, key("down"))
	m = step(t, m, key("enter"))
	if m.stage != stageModel || !strings.Contains(m.err, "model not found") {
		t.Errorf("stage = %v err = %q", m.stage, m.err)
	}
}

func TestEmptyShortcutRejected(t *testing.T) {
	m := start(t, newBackend(), newStore(t))
	m = step(t, m, key("enter"))
	m = step(t, m, key("enter"))
	m = step(t, m, key("enter"))
	m = clearInput(t, m)
	m = step(t, m, key("enter"))
	if m.stage != stageImageShortcut || m.err == "" {
		t.Errorf("stage = %v err = %q", m.stage, m.err)
	}
}

func TestEscGoesBack(t *testing.T) {
	m := start(t, newBackend(), newStore(t))
	m = step(t, m, key("enter"))
	m = step(t, m, key("esc"))
	if m.stage != stageModel {
		t.Errorf("stage = %v, want model", m.stage)
	}
}

func TestQuit(t *testing.T) {
	m := start(t, newBackend(), newStore(t))
	_, cmd := m.Update(key("q"))
	if cmd == nil {
		t.Fatal("q should return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}

// Package tui is the terminal settings panel: it checks the AnkiConnect
// connection through the bridge, then walks the user through picking a note
// model, the image and audio fields, and the two capture shortcuts.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/anki-agent/internal/settings"
)

const callTimeout = 30 * time.Second

// Backend 是面板需要的三个后台动作，*client.Service 满足它
type Backend interface {
	ConnectionStatus(ctx context.Context) (bool, error)
	Models(ctx context.Context) ([]string, error)
	FieldNames(ctx context.Context, model string) ([]string, error)
}

// Store 是面板读写的设置，*settings.Store 满足它
type Store interface {
	Snapshot() settings.Snapshot
	SetModel(model string, cascadeClear bool) bool
	SetSavedImageField(field string) bool
	SetSavedAudioField(field string) bool
	SetSavedImageShortcut(code string) bool
	SetSavedAudioShortcut(code string) bool
}

type stage int

const (
	stageChecking stage = iota
	stageOffline
	stageLoading
	stageModel
	stageImageField
	stageAudioField
	stageImageShortcut
	stageAudioShortcut
	stageDone
)

type connMsg struct {
	ok  bool
	err error
}

type modelsMsg struct {
	models []string
	err    error
}

type fieldsMsg struct {
	model  string
	fields []string
	err    error
}

type Model struct {
	backend Backend
	store   Store
	theme   theme

	stage  stage
	status string
	err    string

	snap   settings.Snapshot
	models []string
	fields []string
	cursor int
	input  string
}

func New(backend Backend, store Store) Model {
	return Model{
		backend: backend,
		store:   store,
		theme:   defaultTheme(),
		stage:   stageChecking,
		status:  "Checking Connection...",
		snap:    store.Snapshot(),
	}
}

// Run 以全屏方式运行面板直到用户退出
func Run(backend Backend, store Store) error {
	_, err := tea.NewProgram(New(backend, store), tea.WithAltScreen()).Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return m.checkConnection()
}

// ---- commands ----

func (m Model) checkConnection() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		ok, err := m.backend.ConnectionStatus(ctx)
		return connMsg{ok: ok, err: err}
	}
}

func (m Model) loadModels() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		models, err := m.backend.Models(ctx)
		return modelsMsg{models: models, err: err}
	}
}

func (m Model) loadFields(model string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		fields, err := m.backend.FieldNames(ctx, model)
		return fieldsMsg{model: model, fields: fields, err: err}
	}
}

// ---- update ----

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch t := msg.(type) {
	case connMsg:
		if t.err != nil || !t.ok {
			m.stage = stageOffline
			m.status = "Not Connected to Anki"
			if t.err != nil {
				m.err = t.err.Error()
			}
			return m, nil
		}
		m.stage = stageLoading
		m.status = "Connected to Anki"
		m.err = ""
		return m, m.loadModels()

	case modelsMsg:
		if t.err != nil {
			// 拉取失败多半是连接断了，回到离线状态重新检查
			m.stage = stageOffline
			m.status = "Not Connected to Anki"
			m.err = t.err.Error()
			return m, nil
		}
		m.models = t.models
		m.stage = stageModel
		m.cursor = indexOf(m.models, m.snap.Model)
		return m, nil

	case fieldsMsg:
		if t.err != nil {
			m.stage = stageModel
			m.err = t.err.Error()
			return m, nil
		}
		m.fields = t.fields
		m.stage = stageImageField
		m.cursor = indexOf(m.fields, m.snap.ImageField)
		m.err = ""
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(t)
	}
	return m, nil
}

func (m Model) handleKey(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := k.String()
	if key == "ctrl+c" {
		return m, tea.Quit
	}
	if m.stage == stageImageShortcut || m.stage == stageAudioShortcut {
		return m.handleShortcutKey(k)
	}

	switch key {
	case "q":
		return m, tea.Quit
	case "r":
		if m.stage == stageOffline || m.stage == stageDone {
			m.stage = stageChecking
			m.status = "Checking Connection..."
			m.err = ""
			return m, m.checkConnection()
		}
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.options())-1 {
			m.cursor++
		}
	case "esc":
		return m.back(), nil
	case "enter":
		return m.choose()
	}
	return m, nil
}

func (m Model) handleShortcutKey(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch k.Type {
	case tea.KeyEsc:
		return m.back(), nil
	case tea.KeyBackspace:
		if r := []rune(m.input); len(r) > 0 {
			m.input = string(r[:len(r)-1])
		}
		return m, nil
	case tea.KeyRunes:
		m.input += string(k.Runes)
		return m, nil
	case tea.KeyEnter:
		code := strings.TrimSpace(m.input)
		if code == "" {
			m.err = "shortcut must not be empty"
			return m, nil
		}
		m.err = ""
		if m.stage == stageImageShortcut {
			if !m.store.SetSavedImageShortcut(code) {
				m.err = "failed to save image shortcut"
				return m, nil
			}
			m.snap.ImageShortcut = code
			m.stage = stageAudioShortcut
			m.input = m.snap.AudioShortcut
			return m, nil
		}
		if !m.store.SetSavedAudioShortcut(code) {
			m.err = "failed to save audio shortcut"
			return m, nil
		}
		m.snap.AudioShortcut = code
		m.stage = stageDone
		m.input = ""
	}
	return m, nil
}

func (m Model) choose() (tea.Model, tea.Cmd) {
	opts := m.options()
	if len(opts) == 0 || m.cursor < 0 || m.cursor >= len(opts) {
		return m, nil
	}
	picked := opts[m.cursor]

	switch m.stage {
	case stageModel:
		// 换了模型才清字段，重复选同一个不丢已有设置
		if picked != m.snap.Model {
			if !m.store.SetModel(picked, true) {
				m.err = "failed to save model"
				return m, nil
			}
			m.snap.Model = picked
			m.snap.ImageField = ""
			m.snap.AudioField = ""
		}
		m.stage = stageLoading
		m.err = ""
		return m, m.loadFields(picked)
	case stageImageField:
		if !m.store.SetSavedImageField(picked) {
			m.err = "failed to save image field"
			return m, nil
		}
		m.snap.ImageField = picked
		m.stage = stageAudioField
		m.cursor = indexOf(m.fields, m.snap.AudioField)
	case stageAudioField:
		if !m.store.SetSavedAudioField(picked) {
			m.err = "failed to save audio field"
			return m, nil
		}
		m.snap.AudioField = picked
		m.stage = stageImageShortcut
		m.input = m.snap.ImageShortcut
	}
	m.err = ""
	return m, nil
}

func (m Model) back() Model {
	m.err = ""
	switch m.stage {
	case stageImageField:
		m.stage = stageModel
		m.cursor = indexOf(m.models, m.snap.Model)
	case stageAudioField:
		m.stage = stageImageField
		m.cursor = indexOf(m.fields, m.snap.ImageField)
	case stageImageShortcut:
		m.stage = stageAudioField
		m.cursor = indexOf(m.fields, m.snap.AudioField)
		m.input = ""
	case stageAudioShortcut:
		m.stage = stageImageShortcut
		m.input = m.snap.ImageShortcut
	}
	return m
}

func (m Model) options() []string {
	switch m.stage {
	case stageModel:
		return m.models
	case stageImageField, stageAudioField:
		return m.fields
	}
	return nil
}

// Snapshot 返回面板当前认为已保存的设置
func (m Model) Snapshot() settings.Snapshot { return m.snap }

// ---- view ----

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.theme.Header.Render("Anki Settings"))
	b.WriteString("\n\n")

	switch m.stage {
	case stageChecking, stageLoading:
		b.WriteString(m.theme.Pending.Render(m.status))
	case stageOffline:
		b.WriteString(m.theme.Danger.Render(m.status))
	default:
		b.WriteString(m.theme.Success.Render(m.status))
	}
	b.WriteString("\n")
	if m.err != "" {
		b.WriteString(m.theme.Danger.Render(m.err))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	switch m.stage {
	case stageModel:
		m.renderList(&b, "Note type", m.models)
	case stageImageField:
		m.renderList(&b, "Image field", m.fields)
	case stageAudioField:
		m.renderList(&b, "Audio field", m.fields)
	case stageImageShortcut:
		m.renderInput(&b, "Image shortcut")
	case stageAudioShortcut:
		m.renderInput(&b, "Audio shortcut")
	case stageDone:
		b.WriteString(m.summary())
	}

	b.WriteString("\n")
	b.WriteString(m.theme.Muted.Render(m.help()))
	return m.theme.Frame.Render(b.String())
}

func (m Model) renderList(b *strings.Builder, title string, items []string) {
	b.WriteString(title + ":\n")
	if len(items) == 0 {
		b.WriteString(m.theme.Muted.Render("  (none)") + "\n")
		return
	}
	for i, it := range items {
		if i == m.cursor {
			b.WriteString(m.theme.Selected.Render("> "+it) + "\n")
			continue
		}
		b.WriteString("  " + it + "\n")
	}
}

func (m Model) renderInput(b *strings.Builder, title string) {
	b.WriteString(title + " (key code, e.g. BracketLeft, KeyA):\n")
	b.WriteString("  " + m.theme.Input.Render(m.input+" ") + "\n")
}

func (m Model) summary() string {
	return fmt.Sprintf("Model:          %s\nImage field:    %s\nAudio field:    %s\nImage shortcut: %s\nAudio shortcut: %s\n",
		orDash(m.snap.Model), orDash(m.snap.ImageField), orDash(m.snap.AudioField),
		m.snap.ImageShortcut, m.snap.AudioShortcut)
}

func (m Model) help() string {
	switch m.stage {
	case stageOffline:
		return "r reconnect • q quit"
	case stageModel, stageImageField, stageAudioField:
		return "↑/↓ move • enter select • esc back • q quit"
	case stageImageShortcut, stageAudioShortcut:
		return "type key code • enter save • esc back • ctrl+c quit"
	case stageDone:
		return "r start over • q quit"
	}
	return "q quit"
}

func indexOf(items []string, v string) int {
	for i, it := range items {
		if it == v {
			return i
		}
	}
	return 0
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

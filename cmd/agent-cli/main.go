package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/anki-agent/internal/client"
	"github.com/anki-agent/internal/dispatcher"
	"github.com/anki-agent/internal/property"
	"github.com/anki-agent/internal/settings"
	"github.com/anki-agent/internal/tui"
	"github.com/anki-agent/internal/utils"
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00"))
	errStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0055"))
	grayStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D7D7D"))
)

const usage = `usage: agent-cli [flags] <command>

commands:
  status                    check whether AnkiConnect is reachable
  models                    list note types
  fields <model>            list fields of a note type
  send <action> [k=v ...]   send a raw action through the bridge
  actions                   list the actions agentd understands
  get <key>                 read a saved setting
  set <key> <value>         write a saved setting (set model clears saved fields)
  settings                  open the interactive settings panel
`

func main() {
	cfg := property.GetDefaultCLIConfig()
	flag.StringVar(&cfg.URL, "url", cfg.URL, "agentd bridge websocket url")
	flag.StringVar(&cfg.Token, "token", cfg.Token, "bridge token")
	flag.IntVar(&cfg.TimeoutSec, "timeout", cfg.TimeoutSec, "per-call timeout in seconds")
	flag.StringVar(&cfg.SettingsPath, "settings", cfg.SettingsPath, "settings file")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := run(cfg, flag.Args(), os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, errStyle.Render(err.Error()))
		os.Exit(1)
	}
}

func run(cfg *property.CLIConfig, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("missing command\n\n%s", usage)
	}
	cmd, rest := args[0], args[1:]

	// 不需要连 agentd 的命令
	switch cmd {
	case "actions":
		for _, a := range dispatcher.Actions() {
			fmt.Fprintln(out, a)
		}
		return nil
	case "get":
		return getSetting(settings.Open(cfg.SettingsPath, nil), rest, out)
	case "set":
		return setSetting(settings.Open(cfg.SettingsPath, nil), rest, out)
	}

	ws, err := client.NewWSClient(cfg.URL, cfg.Token)
	if err != nil {
		return err
	}
	defer ws.Close()
	svc := client.NewService(ws)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.TimeoutSec)*time.Second)
	defer cancel()

	switch cmd {
	case "status":
		ok, err := svc.ConnectionStatus(ctx)
		if err != nil {
			return err
		}
		if ok {
			fmt.Fprintln(out, okStyle.Render("Connected to Anki"))
			return nil
		}
		fmt.Fprintln(out, errStyle.Render("Not Connected to Anki"))
		return nil
	case "models":
		models, err := svc.Models(ctx)
		if err != nil {
			return err
		}
		printList(out, models)
		return nil
	case "fields":
		if len(rest) != 1 {
			return fmt.Errorf("usage: fields <model>")
		}
		fields, err := svc.FieldNames(ctx, rest[0])
		if err != nil {
			return err
		}
		printList(out, fields)
		return nil
	case "send":
		if len(rest) == 0 {
			return fmt.Errorf("usage: send <action> [k=v ...]")
		}
		params, err := parseParams(rest[1:])
		if err != nil {
			return err
		}
		raw, err := svc.Raw(ctx, rest[0], params)
		if raw != nil {
			js, _ := utils.JsonIndent(raw)
			fmt.Fprintln(out, js)
		}
		return err
	case "settings":
		cancel()
		return tui.Run(svc, settings.Open(cfg.SettingsPath, nil))
	}
	return fmt.Errorf("unknown command %q\n\n%s", cmd, usage)
}

func getSetting(store *settings.Store, args []string, out io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: get <key>")
	}
	key, ok := settings.ParseKey(args[0])
	if !ok {
		return fmt.Errorf("unknown setting %q", args[0])
	}
	switch key {
	case settings.KeyImageShortcut:
		fmt.Fprintln(out, store.SavedImageShortcut())
		return nil
	case settings.KeyAudioShortcut:
		fmt.Fprintln(out, store.SavedAudioShortcut())
		return nil
	}
	v, ok := store.Get(key)
	if !ok {
		fmt.Fprintln(out, grayStyle.Render("(not set)"))
		return nil
	}
	fmt.Fprintln(out, v)
	return nil
}

func setSetting(store *settings.Store, args []string, out io.Writer) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: set <key> <value>")
	}
	key, ok := settings.ParseKey(args[0])
	if !ok {
		return fmt.Errorf("unknown setting %q", args[0])
	}
	var saved bool
	if key == settings.KeyModel {
		saved = store.SetModel(args[1], true)
	} else {
		saved = store.Set(key, args[1])
	}
	if !saved {
		return fmt.Errorf("failed to save %s", key)
	}
	fmt.Fprintln(out, okStyle.Render("saved "+string(key)))
	return nil
}

func parseParams(pairs []string) (map[string]string, error) {
	params := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("bad param %q, want key=value", p)
		}
		params[k] = v
	}
	return params, nil
}

func printList(out io.Writer, items []string) {
	if len(items) == 0 {
		fmt.Fprintln(out, grayStyle.Render("(none)"))
		return
	}
	for _, it := range items {
		fmt.Fprintln(out, it)
	}
}

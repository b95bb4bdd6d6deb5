package tui

import (
	"github.com/Southclaws/fault/fmsg"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"keybridge/widgets"
)

// Key builds a binding whose help label is its first key
func Key(help string, keyboardKey ...string) key.Binding {
	return key.NewBinding(key.WithKeys(keyboardKey...), key.WithHelp(keyboardKey[0], help))
}

type keyMap struct {
	Quit     key.Binding
	Views    key.Binding
	Next     key.Binding
	Help     key.Binding
	Up       key.Binding
	Down     key.Binding
	Connect  key.Binding
	Refresh  key.Binding
	Verbose  key.Binding
	Play     key.Binding
	Toggle   key.Binding
	Faster   key.Binding
	Slower   key.Binding
	Load     key.Binding
	Practice key.Binding
	Restart  key.Binding
}

var bindings = keyMap{
	Quit:     Key("quit", "q", "ctrl+c"),
	Views:    key.NewBinding(key.WithKeys("1", "2", "3"), key.WithHelp("1-3", "view")),
	Next:     Key("next view", "tab"),
	Help:     Key("help", "?"),
	Up:       Key("up", "up", "k"),
	Down:     Key("down", "down", "j"),
	Connect:  Key("connect/disconnect", "enter"),
	Refresh:  Key("rescan", "r"),
	Verbose:  Key("verbose", "v"),
	Play:     Key("play/stop", "enter"),
	Toggle:   Key("play armed/stop", "f11"),
	Faster:   Key("faster", "+", "="),
	Slower:   Key("slower", "-", "_"),
	Load:     Key("load song", "l"),
	Practice: key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "start/pause")),
	Restart:  Key("restart", "backspace"),
}

func Is(msg tea.KeyMsg, k ...key.Binding) bool {
	return key.Matches(msg, k...)
}

// shortHelp lists the bindings of one view for the help line
func (k keyMap) shortHelp(v view) []key.Binding {
	common := []key.Binding{k.Views, k.Help, k.Quit}
	switch v {
	case viewBridge:
		return append([]key.Binding{k.Up, k.Down, k.Connect, k.Refresh, k.Verbose}, common...)
	case viewPlayer:
		return append([]key.Binding{k.Up, k.Down, k.Play, k.Toggle, k.Faster, k.Slower}, common...)
	case viewPractice:
		return append([]key.Binding{k.Up, k.Down, k.Load, k.Practice, k.Restart}, common...)
	}
	return common
}

// fullHelp groups every binding by view
func (k keyMap) fullHelp() []widgets.KeySection {
	section := func(title string, bs ...key.Binding) widgets.KeySection {
		sec := widgets.KeySection{Title: title}
		for _, b := range bs {
			h := b.Help()
			sec.Keys = append(sec.Keys, widgets.KeyBinding{Key: h.Key, Desc: h.Desc})
		}
		return sec
	}
	return []widgets.KeySection{
		section("Global", k.Views, k.Next, k.Help, k.Quit),
		section("Bridge", k.Up, k.Down, k.Connect, k.Refresh, k.Verbose),
		section("Player", k.Up, k.Down, k.Play, k.Toggle, k.Faster, k.Slower, k.Refresh),
		section("Practice", k.Up, k.Down, k.Load, k.Practice, k.Restart),
	}
}

// issue returns the user-facing description of err
func issue(err error) string {
	if s := fmsg.GetIssue(err); s != "" {
		return s
	}
	return err.Error()
}

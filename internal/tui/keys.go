package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Send   key.Binding
	Listen key.Binding
	Stop   key.Binding
	Up     key.Binding
	Down   key.Binding
	Quit   key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Send:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
		Listen: key.NewBinding(key.WithKeys("ctrl+l", "f2"), key.WithHelp("ctrl+l", "talk")),
		Stop:   key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "stop")),
		Up:     key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "scroll up")),
		Down:   key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdn", "scroll down")),
		Quit:   key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
	}
}

func (k keyMap) help() []key.Binding {
	return []key.Binding{k.Send, k.Listen, k.Stop, k.Quit}
}

package bridge

import (
	"MacroRecorder/internal/service/events"
	"MacroRecorder/internal/service/hotkey"
	"MacroRecorder/internal/service/macro"
)

// Команды, принимаемые по /ws.
const (
	cmdState        = "state"
	cmdStartRecord  = "start_record"
	cmdStopRecord   = "stop_record"
	cmdPlay         = "play"
	cmdStopPlay     = "stop_play"
	cmdSave         = "save"
	cmdLoad         = "load"
	cmdList         = "list"
	cmdMacro        = "macro"
	cmdDeleteEvents = "delete_events"
	cmdRebind       = "rebind"
	cmdCancelRebind = "cancel_rebind"
	cmdBindings     = "bindings"
)

// Command: входящее сообщение клиента, напр. {"cmd":"play","repeat":3}.
type Command struct {
	ID      string `json:"id,omitempty"`
	Cmd     string `json:"cmd"`
	Repeat  *int   `json:"repeat,omitempty"`
	Name    string `json:"name,omitempty"`
	Action  string `json:"action,omitempty"`
	Indexes []int  `json:"indexes,omitempty"`
}

// Reply: ответ на команду.
type Reply struct {
	ID    string `json:"id,omitempty"`
	Cmd   string `json:"cmd"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	State string `json:"state"`
	Data  any    `json:"data,omitempty"`
}

// Envelope: любое исходящее сообщение.
type Envelope struct {
	Kind         string               `json:"kind"` // hello|reply|notification
	Client       string               `json:"client,omitempty"`
	Reply        *Reply               `json:"reply,omitempty"`
	Notification *events.Notification `json:"notification,omitempty"`
}

type macroView struct {
	Name       string             `json:"name"`
	Events     []macro.InputEvent `json:"events"`
	DurationMS int64              `json:"duration_ms"`
}

func viewMacro(m macro.Macro) macroView {
	ev := m.Events
	if ev == nil {
		ev = []macro.InputEvent{}
	}
	return macroView{Name: m.Name, Events: ev, DurationMS: m.Duration().Milliseconds()}
}

func viewBindings(b hotkey.Bindings) map[string][]string {
	out := make(map[string][]string, len(b))
	for _, a := range hotkey.Actions {
		if c, ok := b[a]; ok {
			out[a.String()] = append([]string(nil), c...)
		}
	}
	return out
}

// stateView: ответ GET /api/state.
type stateView struct {
	State    string                `json:"state"`
	Macro    macroView             `json:"macro"`
	Bindings map[string][]string   `json:"bindings"`
	Journal  []events.Notification `json:"journal"`
	Clients  int                   `json:"clients"`
}

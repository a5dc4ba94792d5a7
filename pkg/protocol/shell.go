package protocol

// Task names accepted on the desktop shell channel.
const (
	TaskProcessText = "process_text_no_tts"
	TaskRunTTS      = "run_tts"
	TaskStartSTT    = "start_stt"
	TaskStopSTT     = "stop_stt"
)

// Event channels emitted by the desktop shell.
const (
	ChannelOrbState   = "orb-state-change"
	ChannelSTTResult  = "stt-result"
	ChannelTaskResult = "python-task-result"
)

// TaskMessage is a command sent by a UI to the shell.
type TaskMessage struct {
	Task    string `json:"task"`
	Content string `json:"content,omitempty"`
}

// TaskResult is the payload of a python-task-result event.
type TaskResult struct {
	Type   string `json:"type"`
	Result string `json:"result"`
}

// ShellEvent is a frame pushed from the shell to every connected UI.
// Exactly one of State, Text or Result is set, matching Channel.
type ShellEvent struct {
	Channel string      `json:"channel"`
	State   string      `json:"state,omitempty"`
	Text    string      `json:"text,omitempty"`
	Result  *TaskResult `json:"result,omitempty"`
}

func StateEvent(state string) ShellEvent {
	return ShellEvent{Channel: ChannelOrbState, State: state}
}

func TranscriptEvent(text string) ShellEvent {
	return ShellEvent{Channel: ChannelSTTResult, Text: text}
}

func ResultEvent(kind, result string) ShellEvent {
	return ShellEvent{Channel: ChannelTaskResult, Result: &TaskResult{Type: kind, Result: result}}
}

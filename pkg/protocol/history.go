package protocol

// History entry types sent by /api/chat_history.
const (
	HistoryText           = "text"
	HistoryImage          = "ai-image"
	HistoryImageAnalysis  = "analysis-image"
	HistoryScreenAnalysis = "analysis-screen"
)

// HistoryEntry is one stored exchange as returned by the backend.
type HistoryEntry struct {
	ID        string `json:"id,omitempty"`
	Type      string `json:"type"`
	Role      string `json:"role,omitempty"`
	Content   string `json:"content,omitempty"`
	Time      string `json:"time,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	ImagePath string `json:"image_path,omitempty"`
	Prompt    string `json:"prompt,omitempty"`
	Analysis  string `json:"analysis,omitempty"`
}

// HistoryResponse is the body of /api/chat_history.
type HistoryResponse struct {
	History []HistoryEntry `json:"history"`
	Error   string         `json:"error,omitempty"`
}

// ProcessRequest is the body of /api/process.
type ProcessRequest struct {
	Text string `json:"text"`
	UID  string `json:"uid"`
}

// AnalyzeImageResponse is the body of /api/analyze_image.
type AnalyzeImageResponse struct {
	Description string `json:"description"`
	Error       string `json:"error,omitempty"`
}

// UserRequest is the body of /api/set_current_user.
type UserRequest struct {
	UID string `json:"uid"`
}

// ErrorResponse is the JSON error envelope used by every endpoint.
type ErrorResponse struct {
	Error string `json:"error"`
}

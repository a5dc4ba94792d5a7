package devbackend

import (
	"context"
	"encoding/json"
	"fmt"
	log "log/slog"
	"regexp"
	"strconv"
	"strings"

	openai "github.com/openai/openai-go/v3"
)

// Task kinds a planned utterance is split into.
const (
	TaskChat     = "chat"
	TaskImage    = "image"
	TaskReminder = "reminder"
)

type Task struct {
	Type string `json:"type"`
	// Content is the reply text for chat tasks and the image prompt for image tasks.
	Content  string `json:"content"`
	Title    string `json:"title,omitempty"`
	Time     string `json:"time,omitempty"`
	Date     string `json:"date,omitempty"`
	Category string `json:"category,omitempty"`
}

type Plan struct {
	Tasks []Task `json:"tasks"`
}

// Planner turns an utterance into the tasks of one response.
type Planner interface {
	Plan(ctx context.Context, text string) (Plan, error)
}

const plannerPrompt = `
You are the planner of a voice assistant.
Split the user's utterance into tasks and answer it.

Output ONLY JSON. No markdown.

OUTPUT FORMAT:
{
  "tasks": [
    {"type": "chat", "content": "<short spoken reply>"},
    {"type": "image", "content": "<prompt for an image to draw>"},
    {"type": "reminder", "title": "<what>", "time": "<HH:MM or empty>", "date": "<YYYY-MM-DD or empty>", "category": "work|personal|health"}
  ]
}

RULES:
1. Always include exactly one chat task; keep it to one or two sentences.
2. Add an image task only when the user asks to draw, show or generate a picture.
3. Add a reminder task only when the user asks to be reminded of something.
4. Reply in the language of the user.
`

// LLMPlanner asks a chat model for the plan.
type LLMPlanner struct {
	Client openai.Client
	Model  string
}

func (p *LLMPlanner) Plan(ctx context.Context, text string) (Plan, error) {
	model := p.Model
	if model == "" {
		model = openai.ChatModelGPT5Nano
	}

	resp, err := p.Client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(plannerPrompt),
			openai.UserMessage(text),
		},
		Model: model,
	})
	if err != nil {
		return Plan{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Plan{}, fmt.Errorf("no choices in response")
	}

	content := resp.Choices[0].Message.Content
	if content == "" {
		return Plan{}, fmt.Errorf("empty message content")
	}
	log.Debug("planned", "data", content)

	return parsePlan(content)
}

func parsePlan(content string) (Plan, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var out Plan
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return Plan{}, fmt.Errorf("unmarshal plan: %w (raw: %s)", err, content)
	}

	tasks := out.Tasks[:0]
	for _, t := range out.Tasks {
		switch t.Type {
		case TaskChat, TaskImage:
			if strings.TrimSpace(t.Content) == "" {
				continue
			}
		case TaskReminder:
			if strings.TrimSpace(t.Title) == "" {
				continue
			}
		default:
			continue
		}
		tasks = append(tasks, t)
	}
	if len(tasks) == 0 {
		return Plan{}, fmt.Errorf("plan has no usable tasks (raw: %s)", content)
	}
	out.Tasks = tasks
	return out, nil
}

var (
	imageRe    = regexp.MustCompile(`(?i)\b(draw|paint|sketch|picture of|image of)\b\s*(.*)`)
	reminderRe = regexp.MustCompile(`(?i)\bremind me( to)?\b\s*(.*)`)
	clockRe    = regexp.MustCompile(`\b([01]?\d|2[0-3])[:h]([0-5]\d)\b`)
	greetingRe = regexp.MustCompile(`(?i)^\s*((hi|hello|hey)\b|xin chào|chào|привет)`)
)

// RulePlanner answers without a model: it recognizes drawing and reminder
// requests by keyword and echoes everything else.
type RulePlanner struct{}

func (RulePlanner) Plan(_ context.Context, text string) (Plan, error) {
	text = strings.TrimSpace(text)
	var tasks []Task

	switch {
	case imageRe.MatchString(text):
		m := imageRe.FindStringSubmatch(text)
		prompt := strings.TrimSpace(m[2])
		if prompt == "" {
			prompt = text
		}
		tasks = append(tasks,
			Task{Type: TaskChat, Content: "Here is a picture of " + prompt + "."},
			Task{Type: TaskImage, Content: prompt},
		)
	case reminderRe.MatchString(text):
		m := reminderRe.FindStringSubmatch(text)
		title := strings.TrimSpace(m[2])
		if title == "" {
			title = "Reminder"
		}
		r := Task{Type: TaskReminder, Title: title, Category: "personal"}
		if c := clockRe.FindStringSubmatch(text); c != nil {
			h, _ := strconv.Atoi(c[1])
			r.Time = fmt.Sprintf("%02d:%s", h, c[2])
			r.Title = strings.TrimSpace(clockRe.ReplaceAllString(strings.TrimSuffix(title, "at "+c[0]), ""))
			r.Title = strings.TrimSpace(strings.TrimSuffix(r.Title, " at"))
		}
		tasks = append(tasks, Task{Type: TaskChat, Content: "Okay, I will remind you to " + r.Title + "."}, r)
	case greetingRe.MatchString(text):
		tasks = append(tasks, Task{Type: TaskChat, Content: "Hello! How can I help you?"})
	default:
		tasks = append(tasks, Task{Type: TaskChat, Content: "You said: " + text})
	}
	return Plan{Tasks: tasks}, nil
}

// FallbackPlanner uses Primary and falls back to Secondary when it fails.
type FallbackPlanner struct {
	Primary   Planner
	Secondary Planner
}

func (p FallbackPlanner) Plan(ctx context.Context, text string) (Plan, error) {
	plan, err := p.Primary.Plan(ctx, text)
	if err == nil {
		return plan, nil
	}
	log.Warn("planner failed, using rules", "err", err)
	return p.Secondary.Plan(ctx, text)
}

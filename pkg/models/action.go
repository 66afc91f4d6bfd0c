package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ActionType tags the Action variant.
type ActionType string

const (
	ActionChangeStatus ActionType = "change_status"
	ActionCreateTask   ActionType = "create_task"
	ActionNotify       ActionType = "notify"
	ActionSendComment  ActionType = "send_comment"
)

// Action is a tagged variant: exactly one of the parameter structs is set and it
// matches Type. On the wire it is flattened to {type, ...params}.
type Action struct {
	Type ActionType

	ChangeStatus *ChangeStatusParams
	CreateTask   *CreateTaskParams
	Notify       *NotifyParams
	SendComment  *SendCommentParams
}

// ChangeStatusParams moves the triggering task to another status.
type ChangeStatusParams struct {
	To     TaskStatus `json:"to"               yaml:"to"`
	Reason string     `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// CreateTaskParams creates a new task in the triggering task's workspace.
type CreateTaskParams struct {
	Title    string `json:"title"              yaml:"title"`
	Assignee string `json:"assignee,omitempty" yaml:"assignee,omitempty"`
	Priority string `json:"priority,omitempty" yaml:"priority,omitempty"`
}

// NotifyParams sends a templated notification to the resolved mentions.
type NotifyParams struct {
	Template string   `json:"template"           yaml:"template"`
	Mentions []string `json:"mentions,omitempty" yaml:"mentions,omitempty"`
}

// SendCommentParams appends a comment to the triggering task.
type SendCommentParams struct {
	Content string `json:"content" yaml:"content"`
}

// NewChangeStatusAction builds a change_status action.
func NewChangeStatusAction(to TaskStatus) Action {
	return Action{Type: ActionChangeStatus, ChangeStatus: &ChangeStatusParams{To: to}}
}

// NewCreateTaskAction builds a create_task action.
func NewCreateTaskAction(title, assignee string) Action {
	return Action{Type: ActionCreateTask, CreateTask: &CreateTaskParams{Title: title, Assignee: assignee}}
}

// NewNotifyAction builds a notify action.
func NewNotifyAction(template string, mentions ...string) Action {
	return Action{Type: ActionNotify, Notify: &NotifyParams{Template: template, Mentions: mentions}}
}

// NewSendCommentAction builds a send_comment action.
func NewSendCommentAction(content string) Action {
	return Action{Type: ActionSendComment, SendComment: &SendCommentParams{Content: content}}
}

// Validate checks that the variant is consistent and its required parameters are present.
func (a Action) Validate() error {
	switch a.Type {
	case ActionChangeStatus:
		if a.ChangeStatus == nil || !a.ChangeStatus.To.Valid() {
			return NewValidationError("to", "change_status requires a valid target status")
		}
	case ActionCreateTask:
		if a.CreateTask == nil || strings.TrimSpace(a.CreateTask.Title) == "" {
			return NewValidationError("title", "create_task requires a title")
		}
	case ActionNotify:
		if a.Notify == nil || strings.TrimSpace(a.Notify.Template) == "" {
			return NewValidationError("template", "notify requires a template")
		}
	case ActionSendComment:
		if a.SendComment == nil || strings.TrimSpace(a.SendComment.Content) == "" {
			return NewValidationError("content", "send_comment requires content")
		}
	default:
		return NewValidationError("type", fmt.Sprintf("unknown action type %q", a.Type))
	}

	return nil
}

// Params returns the parameter struct of the active variant.
func (a Action) Params() any {
	switch a.Type {
	case ActionChangeStatus:
		return a.ChangeStatus
	case ActionCreateTask:
		return a.CreateTask
	case ActionNotify:
		return a.Notify
	case ActionSendComment:
		return a.SendComment
	default:
		return nil
	}
}

type actionHeader struct {
	Type ActionType `json:"type"`
}

// MarshalJSON flattens the variant to {type, ...params}.
func (a Action) MarshalJSON() ([]byte, error) {
	params := a.Params()
	if params == nil {
		return json.Marshal(actionHeader{Type: a.Type})
	}

	body, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}

	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}

	typ, err := json.Marshal(a.Type)
	if err != nil {
		return nil, err
	}

	fields["type"] = typ

	return json.Marshal(fields)
}

// UnmarshalJSON decodes {type, ...params} into the matching variant.
func (a *Action) UnmarshalJSON(data []byte) error {
	var header actionHeader
	if err := json.Unmarshal(data, &header); err != nil {
		return err
	}

	*a = Action{Type: header.Type}

	var target any

	switch header.Type {
	case ActionChangeStatus:
		a.ChangeStatus = &ChangeStatusParams{}
		target = a.ChangeStatus
	case ActionCreateTask:
		a.CreateTask = &CreateTaskParams{}
		target = a.CreateTask
	case ActionNotify:
		a.Notify = &NotifyParams{}
		target = a.Notify
	case ActionSendComment:
		a.SendComment = &SendCommentParams{}
		target = a.SendComment
	default:
		return fmt.Errorf("unknown action type %q", header.Type)
	}

	return json.Unmarshal(data, target)
}

// UnmarshalYAML decodes the flattened YAML form by round-tripping through JSON.
func (a *Action) UnmarshalYAML(unmarshal func(any) error) error {
	var raw map[string]any
	if err := unmarshal(&raw); err != nil {
		return err
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}

	return a.UnmarshalJSON(data)
}

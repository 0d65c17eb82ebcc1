package mail

import (
	"context"
	"encoding/json"
	"fmt"

	"elearning/internal/queue"
)

const TemplateActivation = "activation-mail"

// Notification is an outbound email request; Data feeds the named template.
type Notification struct {
	To       string
	Subject  string
	Template string
	Data     map[string]any
}

type Enqueuer interface {
	Enqueue(ctx context.Context, task queue.Task) (string, error)
}

// StreamNotifier hands notifications to the worker through the task stream.
type StreamNotifier struct {
	queue Enqueuer
}

func NewStreamNotifier(q Enqueuer) *StreamNotifier {
	return &StreamNotifier{queue: q}
}

func (n *StreamNotifier) Notify(ctx context.Context, note Notification) error {
	task, err := EncodeTask(note)
	if err != nil {
		return err
	}
	if _, err := n.queue.Enqueue(ctx, task); err != nil {
		return fmt.Errorf("notify %s: %w", note.To, err)
	}
	return nil
}

func EncodeTask(note Notification) (queue.Task, error) {
	data, err := json.Marshal(note.Data)
	if err != nil {
		return queue.Task{}, fmt.Errorf("encode mail data: %w", err)
	}
	return queue.Task{
		Type: queue.TaskMail,
		Fields: map[string]string{
			"to":       note.To,
			"subject":  note.Subject,
			"template": note.Template,
			"data":     string(data),
		},
	}, nil
}

// DecodeTask is the inverse of EncodeTask over raw stream values.
func DecodeTask(values map[string]any) (Notification, error) {
	field := func(name string) string {
		s, _ := values[name].(string)
		return s
	}

	note := Notification{
		To:       field("to"),
		Subject:  field("subject"),
		Template: field("template"),
	}
	if note.To == "" || note.Template == "" {
		return Notification{}, fmt.Errorf("mail task missing recipient or template")
	}
	if raw := field("data"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &note.Data); err != nil {
			return Notification{}, fmt.Errorf("decode mail data: %w", err)
		}
	}
	return note, nil
}

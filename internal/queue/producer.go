package queue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	TaskMail         = "mail"
	TaskAvatarDelete = "avatar-delete"
)

// Task is one stream entry. Fields are flat strings; structured data is
// JSON-encoded by the producer.
type Task struct {
	Type   string
	Fields map[string]string
}

// Producer appends tasks without capping the stream; TrimAcked does that
// once entries are acknowledged.
type Producer struct {
	client redis.Cmdable
	stream string
}

func NewProducer(client redis.Cmdable, stream string) *Producer {
	return &Producer{client: client, stream: stream}
}

func (p *Producer) Stream() string { return p.stream }

func (p *Producer) Enqueue(ctx context.Context, task Task) (string, error) {
	values := make(map[string]any, len(task.Fields)+1)
	for k, v := range task.Fields {
		values[k] = v
	}
	values["type"] = task.Type

	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: values,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("enqueue %s task: %w", task.Type, err)
	}
	return id, nil
}

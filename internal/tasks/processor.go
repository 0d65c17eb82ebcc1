package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"elearning/internal/mail"
	"elearning/internal/queue"
)

var errNoObjectStore = errors.New("object store not configured")

type Renderer interface {
	Render(name string, data map[string]any) (string, error)
}

type Sender interface {
	Send(ctx context.Context, msg mail.Message) error
}

type ObjectRemover interface {
	Remove(ctx context.Context, key string) error
}

// Processor dispatches stream entries by their "type" field.
type Processor struct {
	renderer Renderer
	sender   Sender
	objects  ObjectRemover
	logger   zerolog.Logger
}

func NewProcessor(renderer Renderer, sender Sender, objects ObjectRemover, logger zerolog.Logger) *Processor {
	return &Processor{
		renderer: renderer,
		sender:   sender,
		objects:  objects,
		logger:   logger,
	}
}

func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	taskType, _ := msg.Values["type"].(string)

	switch taskType {
	case queue.TaskMail:
		return p.handleMail(ctx, msg)
	case queue.TaskAvatarDelete:
		return p.handleAvatarDelete(ctx, msg)
	default:
		p.logger.Warn().Str("type", taskType).Str("message_id", msg.ID).Msg("unknown task type")
		return nil
	}
}

func (p *Processor) handleMail(ctx context.Context, msg redis.XMessage) error {
	note, err := mail.DecodeTask(msg.Values)
	if err != nil {
		// malformed entries never succeed; ack and move on
		p.logger.Error().Err(err).Str("message_id", msg.ID).Msg("drop mail task")
		return nil
	}

	body, err := p.renderer.Render(note.Template, note.Data)
	if err != nil {
		// templates are embedded, so a render failure repeats on every retry
		return queue.Permanent(fmt.Errorf("render mail: %w", err))
	}
	if err := p.sender.Send(ctx, mail.Message{To: note.To, Subject: note.Subject, HTMLBody: body}); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}

	p.logger.Info().Str("template", note.Template).Str("message_id", msg.ID).Msg("mail sent")
	return nil
}

func (p *Processor) handleAvatarDelete(ctx context.Context, msg redis.XMessage) error {
	key, _ := msg.Values["key"].(string)
	if key == "" {
		p.logger.Warn().Str("message_id", msg.ID).Msg("avatar-delete without key")
		return nil
	}
	if p.objects == nil {
		return queue.Permanent(errNoObjectStore)
	}
	if err := p.objects.Remove(ctx, key); err != nil {
		return fmt.Errorf("remove avatar: %w", err)
	}
	p.logger.Debug().Str("key", key).Msg("old avatar removed")
	return nil
}

package tasks

import (
	"context"

	"github.com/ccxcon/ccxcon/internal/queue"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, entityType string, field string, value string) error
}

func NewPublishTask(dispatcher Dispatcher) *PublishTask {
	return &PublishTask{dispatcher: dispatcher}
}

// PublishTask delivers one change event. It never asks for a retry.
type PublishTask struct {
	dispatcher Dispatcher
}

func (t *PublishTask) Handle(ctx context.Context, job queue.Job) error {
	var payload PublishPayload
	if err := job.Decode(&payload); err != nil {
		return err
	}
	return t.dispatcher.Dispatch(ctx, payload.EntityType, payload.LookupField, payload.LookupValue)
}

package storage

import (
	"context"

	"github.com/bytedance/sonic"

	"taskpilot-api/domain"
)

// PublishEvent sends one activity envelope to the activity queue.
func (s *Storage) PublishEvent(ctx context.Context, env domain.EventEnvelope) error {
	data, err := sonic.Marshal(env)
	if err != nil {
		return err
	}
	_, err = s.activityQueue.EnqueueMessage(ctx, string(data), nil)
	return err
}

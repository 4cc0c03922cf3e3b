package appkafka

import (
	"encoding/json"

	"github.com/alferius/hw05-final/internal/models"
	"github.com/segmentio/kafka-go"
)

type EventType string

const (
	EventPostCreated   EventType = "post_created"
	EventPostDeleted   EventType = "post_deleted"
	EventFollowCreated EventType = "follow_created"
	EventFollowDeleted EventType = "follow_deleted"
)

// Event is the envelope carried on the post-events topic. Post events
// carry the full post so the worker can write timeline rows without a
// read back; follow events carry the edge.
type Event struct {
	Type   EventType      `json:"type"`
	Post   *models.Post   `json:"post,omitempty"`
	Follow *models.Follow `json:"follow,omitempty"`
}

// PostMessage builds a Kafka message for a post lifecycle event.
func PostMessage(t EventType, post models.Post) (kafka.Message, error) {
	return marshalEvent(Event{Type: t, Post: &post})
}

// FollowMessage builds a Kafka message for a follow edge event.
func FollowMessage(t EventType, follow models.Follow) (kafka.Message, error) {
	return marshalEvent(Event{Type: t, Follow: &follow})
}

func marshalEvent(e Event) (kafka.Message, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(e.Type),
		Value: data,
	}, nil
}

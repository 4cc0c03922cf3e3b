package appkafka

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/alferius/hw05-final/internal/store"
	"github.com/segmentio/kafka-go"
)

// MockKafka applies events to the store immediately, standing in for the
// broker plus the worker so handler tests see timeline effects without a
// running consumer.
type MockKafka struct {
	Store           *store.MockStore
	BackfillLimit   int
	WrittenMessages []kafka.Message // stores messages written via WriteMessages
	ReadMessages    []kafka.Message // queue of messages to be read via ReadMessage
	ShouldFail      bool            // flag to simulate failures during write or read operations
}

// WriteMessages simulates publishing events, applying each one to the
// mock store the way the worker would.
func (m *MockKafka) WriteMessages(messages ...kafka.Message) error {
	if m.ShouldFail {
		return errors.New("mock kafka write failed")
	}
	if m.Store == nil {
		return errors.New("store is nil")
	}

	for _, msg := range messages {
		m.WrittenMessages = append(m.WrittenMessages, msg)

		var event Event
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return err
		}
		if err := m.apply(event); err != nil {
			return err
		}
	}

	return nil
}

func (m *MockKafka) apply(event Event) error {
	switch event.Type {
	case EventPostCreated:
		if event.Post == nil {
			return errors.New("post_created event without post")
		}
		followers, _ := m.Store.GetFollowers(event.Post.AuthorID)
		for _, followerID := range followers {
			_ = m.Store.AddToTimeline(followerID, *event.Post)
		}

	case EventPostDeleted:
		if event.Post == nil {
			return errors.New("post_deleted event without post")
		}
		followers, _ := m.Store.GetFollowers(event.Post.AuthorID)
		for _, followerID := range followers {
			_ = m.Store.RemoveFromTimeline(followerID, event.Post.ID, event.Post.Created)
		}

	case EventFollowCreated:
		if event.Follow == nil {
			return errors.New("follow_created event without edge")
		}
		limit := m.BackfillLimit
		if limit <= 0 {
			limit = 100
		}
		posts, _ := m.Store.PostsByAuthor(event.Follow.AuthorID, limit)
		for _, p := range posts {
			_ = m.Store.AddToTimeline(event.Follow.FollowerID, p)
		}

	case EventFollowDeleted:
		if event.Follow == nil {
			return errors.New("follow_deleted event without edge")
		}
		_ = m.Store.RemoveAuthorFromTimeline(event.Follow.FollowerID, event.Follow.AuthorID)
	}

	return nil
}

// ReadMessage pops from the queued messages.
func (m *MockKafka) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if m.ShouldFail {
		return kafka.Message{}, errors.New("mock kafka read failed")
	}
	if len(m.ReadMessages) == 0 {
		return kafka.Message{}, errors.New("no messages")
	}
	// Take the first message from the queue and remove it
	msg := m.ReadMessages[0]
	m.ReadMessages = m.ReadMessages[1:]
	return msg, nil
}

// Close is a no-op.
func (m *MockKafka) Close() error { return nil }

// MockKafkaFail always fails.
type MockKafkaFail struct{}

func (m *MockKafkaFail) WriteMessages(messages ...kafka.Message) error {
	return errors.New("mock kafka write failed")
}

func (m *MockKafkaFail) ReadMessage(ctx context.Context) (kafka.Message, error) {
	return kafka.Message{}, errors.New("mock kafka read failed")
}

func (m *MockKafkaFail) Close() error { return nil }

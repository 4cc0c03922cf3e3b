package follow

import (
	"fmt"

	appkafka "github.com/alferius/hw05-final/internal/broker"
	"github.com/alferius/hw05-final/internal/logger"
	"github.com/alferius/hw05-final/internal/models"
	"github.com/alferius/hw05-final/internal/store"
)

var logg = logger.New()

// Service maintains the follow graph. The store's primary key is the
// uniqueness authority for edges; the existence checks here only decide
// between creating an edge and the silent no-op the UI expects.
type Service struct {
	store  store.StoreInterface
	writer appkafka.KafkaWriter
}

func New(st store.StoreInterface, writer appkafka.KafkaWriter) *Service {
	return &Service{store: st, writer: writer}
}

// Follow creates the follower -> username edge. Self-follow and an
// already-existing edge return models.ErrNoop: the caller redirects to
// the profile with nothing mutated. Unknown usernames are ErrNotFound.
func (s *Service) Follow(viewer models.Viewer, username string) error {
	if !viewer.Authenticated {
		return models.ErrUnauthorized
	}

	authorID, err := s.store.GetAuthorIDByUsername(username)
	if err != nil {
		return err
	}
	if authorID == "" {
		return models.ErrNotFound
	}

	if authorID == viewer.ID {
		return models.ErrNoop
	}

	following, err := s.store.IsFollowing(viewer.ID, authorID)
	if err != nil {
		return err
	}
	if following {
		return models.ErrNoop
	}

	if err := s.store.CreateFollow(viewer.ID, authorID); err != nil {
		return err
	}

	msg, err := appkafka.FollowMessage(appkafka.EventFollowCreated, models.Follow{
		FollowerID: viewer.ID,
		AuthorID:   authorID,
	})
	if err != nil {
		return err
	}
	if err := s.writer.WriteMessages(msg); err != nil {
		logg.Error("follow", "Failed to publish follow_created event", err)
		return fmt.Errorf("publish follow_created: %w", err)
	}

	return nil
}

// Unfollow removes the edge, returning models.ErrNotFound when the
// viewer was not following the author.
func (s *Service) Unfollow(viewer models.Viewer, username string) error {
	if !viewer.Authenticated {
		return models.ErrUnauthorized
	}

	authorID, err := s.store.GetAuthorIDByUsername(username)
	if err != nil {
		return err
	}
	if authorID == "" {
		return models.ErrNotFound
	}

	if err := s.store.DeleteFollow(viewer.ID, authorID); err != nil {
		return err
	}

	msg, err := appkafka.FollowMessage(appkafka.EventFollowDeleted, models.Follow{
		FollowerID: viewer.ID,
		AuthorID:   authorID,
	})
	if err != nil {
		return err
	}
	if err := s.writer.WriteMessages(msg); err != nil {
		logg.Error("follow", "Failed to publish follow_deleted event", err)
		return fmt.Errorf("publish follow_deleted: %w", err)
	}

	return nil
}

// IsFollowing reports whether the viewer follows the author. Always
// false for anonymous viewers.
func (s *Service) IsFollowing(viewer models.Viewer, authorID string) (bool, error) {
	if !viewer.Authenticated {
		return false, nil
	}
	return s.store.IsFollowing(viewer.ID, authorID)
}

// FollowedAuthors returns the author IDs the follower follows. The
// follower itself is filtered out even if a reflexive edge ever made it
// into the store.
func (s *Service) FollowedAuthors(followerID string) ([]string, error) {
	ids, err := s.store.FollowedAuthors(followerID)
	if err != nil {
		return nil, err
	}

	res := ids[:0]
	for _, id := range ids {
		if id != followerID {
			res = append(res, id)
		}
	}
	return res, nil
}

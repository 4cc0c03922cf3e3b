package store

import (
	"time"

	"github.com/alferius/hw05-final/internal/models"
	"github.com/gocql/gocql"
)

// --- Follow operations ---

// CreateFollow writes the edge into both directions of the graph. The
// primary key (follower, author) makes the write idempotent, which is
// the uniqueness authority; callers decide whether a duplicate is a
// no-op or an error.
func (s *Store) CreateFollow(followerID, authorID string) error {
	batch := s.Session.NewBatch(gocql.LoggedBatch)
	batch.Query(`INSERT INTO follows (follower_id, author_id) VALUES (?, ?)`, followerID, authorID)
	batch.Query(`INSERT INTO followers_by_author (author_id, follower_id) VALUES (?, ?)`, authorID, followerID)

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to create follow edge", err)
		return err
	}

	logg.Info("store", "Follow edge created (author IDs anonymized)")
	return nil
}

// DeleteFollow removes the edge, returning models.ErrNotFound when it
// does not exist.
func (s *Store) DeleteFollow(followerID, authorID string) error {
	following, err := s.IsFollowing(followerID, authorID)
	if err != nil {
		return err
	}
	if !following {
		return models.ErrNotFound
	}

	batch := s.Session.NewBatch(gocql.LoggedBatch)
	batch.Query(`DELETE FROM follows WHERE follower_id = ? AND author_id = ?`, followerID, authorID)
	batch.Query(`DELETE FROM followers_by_author WHERE author_id = ? AND follower_id = ?`, authorID, followerID)

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to delete follow edge", err)
		return err
	}

	logg.Info("store", "Follow edge removed (author IDs anonymized)")
	return nil
}

// IsFollowing is a side-effect-free edge lookup.
func (s *Store) IsFollowing(followerID, authorID string) (bool, error) {
	var found string
	err := s.Session.Query(
		`SELECT author_id FROM follows WHERE follower_id = ? AND author_id = ?`,
		followerID, authorID,
	).Scan(&found)
	if err != nil {
		if err == gocql.ErrNotFound {
			return false, nil
		}
		logg.Error("store", "Failed to query follow edge", err)
		return false, err
	}
	return true, nil
}

// FollowedAuthors returns the IDs of authors the follower follows.
func (s *Store) FollowedAuthors(followerID string) ([]string, error) {
	iter := s.Session.Query(
		`SELECT author_id FROM follows WHERE follower_id = ?`,
		followerID,
	).Iter()

	var id string
	var res []string
	for iter.Scan(&id) {
		res = append(res, id)
	}

	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to get followed authors", err)
		return nil, err
	}
	return res, nil
}

// GetFollowers returns the IDs of followers of an author, used by the
// worker for timeline fan-out.
func (s *Store) GetFollowers(authorID string) ([]string, error) {
	iter := s.Session.Query(
		`SELECT follower_id FROM followers_by_author WHERE author_id = ?`,
		authorID,
	).Iter()

	var id string
	var res []string
	for iter.Scan(&id) {
		res = append(res, id)
	}

	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to get followers", err)
		return nil, err
	}

	logg.Info("store", "Retrieved followers (author IDs anonymized)")
	return res, nil
}

// --- Timeline operations ---

// AddToTimeline appends a post to a follower's materialized timeline.
func (s *Store) AddToTimeline(userID string, post models.Post) error {
	if err := s.Session.Query(`
		INSERT INTO timeline_by_user (user_id, created_at, post_id, author_id, author_username, group_slug, image, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, post.Created, post.ID, post.AuthorID, post.AuthorUsername, post.GroupSlug, post.Image, post.Text,
	).Exec(); err != nil {
		logg.Error("store", "Failed to add post to timeline", err)
		return err
	}
	return nil
}

// RemoveFromTimeline deletes one post from a follower's timeline.
func (s *Store) RemoveFromTimeline(userID, postID string, created time.Time) error {
	if err := s.Session.Query(`
		DELETE FROM timeline_by_user WHERE user_id = ? AND created_at = ? AND post_id = ?`,
		userID, created, postID,
	).Exec(); err != nil {
		logg.Error("store", "Failed to remove post from timeline", err)
		return err
	}
	return nil
}

// RemoveAuthorFromTimeline purges every post by one author from a
// follower's timeline, used on unfollow. The partition is read back and
// deleted row by row since the author is not part of the clustering key.
func (s *Store) RemoveAuthorFromTimeline(userID, authorID string) error {
	posts, err := s.Timeline(userID, 0)
	if err != nil {
		return err
	}

	for _, p := range posts {
		if p.AuthorID != authorID {
			continue
		}
		if err := s.RemoveFromTimeline(userID, p.ID, p.Created); err != nil {
			return err
		}
	}

	logg.Info("store", "Author purged from timeline (IDs anonymized)")
	return nil
}

// Timeline returns the follower's materialized timeline, newest first.
// limit <= 0 means no limit.
func (s *Store) Timeline(userID string, limit int) ([]models.Post, error) {
	q := `SELECT post_id, author_id, author_username, group_slug, image, body, created_at
		FROM timeline_by_user WHERE user_id = ?`
	args := []interface{}{userID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	posts, err := s.scanPosts(q, args...)
	if err != nil {
		logg.Error("store", "Failed to retrieve timeline", err)
		return nil, err
	}

	logg.Info("store", "Timeline retrieved successfully (IDs and content anonymized)")
	return posts, nil
}

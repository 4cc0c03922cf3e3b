package store

import (
	"github.com/alferius/hw05-final/internal/models"
	"github.com/gocql/gocql"
)

// All posts live in one partition of posts_global so the global feed can
// be read back in clustering order. Blog-scale write volume, not a hot
// partition concern.
const globalBucket = 0

// --- Post operations ---

// AddPost writes the post into the main table and every query-side table
// in a single logged batch.
func (s *Store) AddPost(post models.Post) error {
	batch := s.Session.NewBatch(gocql.LoggedBatch)
	batch.Query(`
		INSERT INTO posts (post_id, author_id, author_username, group_slug, image, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		post.ID, post.AuthorID, post.AuthorUsername, post.GroupSlug, post.Image, post.Text, post.Created,
	)
	batch.Query(`
		INSERT INTO posts_global (bucket, created_at, post_id, author_id, author_username, group_slug, image, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		globalBucket, post.Created, post.ID, post.AuthorID, post.AuthorUsername, post.GroupSlug, post.Image, post.Text,
	)
	batch.Query(`
		INSERT INTO posts_by_author (author_id, created_at, post_id, author_username, group_slug, image, body)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		post.AuthorID, post.Created, post.ID, post.AuthorUsername, post.GroupSlug, post.Image, post.Text,
	)
	if post.GroupSlug != "" {
		batch.Query(`
			INSERT INTO posts_by_group (group_slug, created_at, post_id, author_id, author_username, image, body)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			post.GroupSlug, post.Created, post.ID, post.AuthorID, post.AuthorUsername, post.Image, post.Text,
		)
	}

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to add post", err)
		return err
	}

	logg.Info("store", "Post added (post content anonymized)")
	return nil
}

// GetPost returns the post by ID or models.ErrNotFound.
func (s *Store) GetPost(postID string) (models.Post, error) {
	var p models.Post
	err := s.Session.Query(`
		SELECT post_id, author_id, author_username, group_slug, image, body, created_at
		FROM posts WHERE post_id = ?`,
		postID,
	).Scan(&p.ID, &p.AuthorID, &p.AuthorUsername, &p.GroupSlug, &p.Image, &p.Text, &p.Created)
	if err != nil {
		if err == gocql.ErrNotFound {
			return models.Post{}, models.ErrNotFound
		}
		logg.Error("store", "Failed to query post", err)
		return models.Post{}, err
	}
	return p, nil
}

// UpdatePost rewrites the mutable fields (body, group, image) everywhere
// the post is stored. Author and creation time never change, so the
// clustering keys of the query-side rows stay valid.
func (s *Store) UpdatePost(post models.Post) error {
	prev, err := s.GetPost(post.ID)
	if err != nil {
		return err
	}

	batch := s.Session.NewBatch(gocql.LoggedBatch)
	batch.Query(`
		UPDATE posts SET body = ?, group_slug = ?, image = ? WHERE post_id = ?`,
		post.Text, post.GroupSlug, post.Image, post.ID,
	)
	batch.Query(`
		UPDATE posts_global SET body = ?, group_slug = ?, image = ?
		WHERE bucket = ? AND created_at = ? AND post_id = ?`,
		post.Text, post.GroupSlug, post.Image, globalBucket, prev.Created, post.ID,
	)
	batch.Query(`
		UPDATE posts_by_author SET body = ?, group_slug = ?, image = ?
		WHERE author_id = ? AND created_at = ? AND post_id = ?`,
		post.Text, post.GroupSlug, post.Image, prev.AuthorID, prev.Created, post.ID,
	)

	if prev.GroupSlug != "" && prev.GroupSlug != post.GroupSlug {
		batch.Query(`DELETE FROM posts_by_group WHERE group_slug = ? AND created_at = ? AND post_id = ?`,
			prev.GroupSlug, prev.Created, post.ID,
		)
	}
	if post.GroupSlug != "" {
		batch.Query(`
			INSERT INTO posts_by_group (group_slug, created_at, post_id, author_id, author_username, image, body)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			post.GroupSlug, prev.Created, post.ID, prev.AuthorID, prev.AuthorUsername, post.Image, post.Text,
		)
	}

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to update post", err)
		return err
	}
	return nil
}

// DeletePost removes the post from the main table and every query-side
// table. Timeline cleanup is the worker's job, driven by the
// post_deleted event.
func (s *Store) DeletePost(postID string) error {
	prev, err := s.GetPost(postID)
	if err != nil {
		return err
	}

	batch := s.Session.NewBatch(gocql.LoggedBatch)
	batch.Query(`DELETE FROM posts WHERE post_id = ?`, postID)
	batch.Query(`DELETE FROM posts_global WHERE bucket = ? AND created_at = ? AND post_id = ?`,
		globalBucket, prev.Created, postID)
	batch.Query(`DELETE FROM posts_by_author WHERE author_id = ? AND created_at = ? AND post_id = ?`,
		prev.AuthorID, prev.Created, postID)
	if prev.GroupSlug != "" {
		batch.Query(`DELETE FROM posts_by_group WHERE group_slug = ? AND created_at = ? AND post_id = ?`,
			prev.GroupSlug, prev.Created, postID)
	}
	batch.Query(`DELETE FROM comments_by_post WHERE post_id = ?`, postID)

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to delete post", err)
		return err
	}

	logg.Info("store", "Post deleted (post ID anonymized)")
	return nil
}

// GlobalPosts returns all posts, newest first. limit <= 0 means no limit.
func (s *Store) GlobalPosts(limit int) ([]models.Post, error) {
	q := `SELECT post_id, author_id, author_username, group_slug, image, body, created_at
		FROM posts_global WHERE bucket = ?`
	args := []interface{}{globalBucket}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.scanPosts(q, args...)
}

// PostsByGroup returns the group's posts, newest first.
func (s *Store) PostsByGroup(slug string, limit int) ([]models.Post, error) {
	q := `SELECT post_id, author_id, author_username, image, body, created_at
		FROM posts_by_group WHERE group_slug = ?`
	args := []interface{}{slug}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.scanGroupPosts(slug, q, args...)
}

// PostsByAuthor returns the author's posts, newest first.
func (s *Store) PostsByAuthor(authorID string, limit int) ([]models.Post, error) {
	q := `SELECT post_id, author_username, group_slug, image, body, created_at
		FROM posts_by_author WHERE author_id = ?`
	args := []interface{}{authorID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	iter := s.Session.Query(q, args...).Iter()

	var res []models.Post
	var p models.Post
	for iter.Scan(&p.ID, &p.AuthorUsername, &p.GroupSlug, &p.Image, &p.Text, &p.Created) {
		p.AuthorID = authorID
		res = append(res, p)
		p = models.Post{}
	}

	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to query posts by author", err)
		return nil, err
	}
	return res, nil
}

func (s *Store) scanPosts(q string, args ...interface{}) ([]models.Post, error) {
	iter := s.Session.Query(q, args...).Iter()

	var res []models.Post
	var p models.Post
	for iter.Scan(&p.ID, &p.AuthorID, &p.AuthorUsername, &p.GroupSlug, &p.Image, &p.Text, &p.Created) {
		res = append(res, p)
		p = models.Post{}
	}

	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to query posts", err)
		return nil, err
	}
	return res, nil
}

func (s *Store) scanGroupPosts(slug, q string, args ...interface{}) ([]models.Post, error) {
	iter := s.Session.Query(q, args...).Iter()

	var res []models.Post
	var p models.Post
	for iter.Scan(&p.ID, &p.AuthorID, &p.AuthorUsername, &p.Image, &p.Text, &p.Created) {
		p.GroupSlug = slug
		res = append(res, p)
		p = models.Post{}
	}

	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to query posts by group", err)
		return nil, err
	}
	return res, nil
}

// --- Comment operations ---

func (s *Store) AddComment(comment models.Comment) error {
	if err := s.Session.Query(`
		INSERT INTO comments_by_post (post_id, created_at, comment_id, author_id, author_username, body)
		VALUES (?, ?, ?, ?, ?, ?)`,
		comment.PostID, comment.Created, comment.ID, comment.AuthorID, comment.AuthorUsername, comment.Text,
	).Exec(); err != nil {
		logg.Error("store", "Failed to add comment", err)
		return err
	}

	logg.Info("store", "Comment added (comment content anonymized)")
	return nil
}

// CommentsByPost returns the post's comments in chronological order.
func (s *Store) CommentsByPost(postID string) ([]models.Comment, error) {
	iter := s.Session.Query(`
		SELECT comment_id, created_at, author_id, author_username, body
		FROM comments_by_post WHERE post_id = ?`,
		postID,
	).Iter()

	var res []models.Comment
	var c models.Comment
	for iter.Scan(&c.ID, &c.Created, &c.AuthorID, &c.AuthorUsername, &c.Text) {
		c.PostID = postID
		res = append(res, c)
		c = models.Comment{}
	}

	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to query comments", err)
		return nil, err
	}
	return res, nil
}

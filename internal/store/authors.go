package store

import (
	"time"

	"github.com/alferius/hw05-final/internal/models"
	"github.com/gocql/gocql"
)

// --- Author operations ---

// GetAuthorIDByUsername returns the existing author_id by username.
// If the author does not exist, it returns empty string without an error.
func (s *Store) GetAuthorIDByUsername(username string) (string, error) {
	var id string
	err := s.Session.Query(
		`SELECT author_id FROM authors_by_username WHERE username = ?`,
		username,
	).Scan(&id)
	if err != nil {
		if err == gocql.ErrNotFound {
			return "", nil
		}
		logg.Error("store", "Failed to query author by username", err)
		return "", err
	}
	return id, nil
}

// CreateAuthor creates a new author if the username does not exist.
// Returns the existing author_id if username already exists.
func (s *Store) CreateAuthor(username string) (string, error) {
	existingID, err := s.GetAuthorIDByUsername(username)
	if err != nil {
		return "", err
	}
	if existingID != "" {
		return existingID, nil
	}

	id := gocql.TimeUUID().String()
	created := time.Now()

	// The username table is the uniqueness authority, claimed with CAS.
	result := make(map[string]interface{})
	applied, err := s.Session.Query(`
		INSERT INTO authors_by_username (username, author_id)
		VALUES (?, ?) IF NOT EXISTS`,
		username, id,
	).MapScanCAS(result)
	if err != nil {
		logg.Error("store", "Failed to create username entry", err)
		return "", err
	}

	if !applied {
		// Another process already created this author
		return s.GetAuthorIDByUsername(username)
	}

	err = s.Session.Query(`
		INSERT INTO authors (author_id, username, created_at)
		VALUES (?, ?, ?)`,
		id, username, created,
	).Exec()
	if err != nil {
		logg.Error("store", "Failed to create author in main table", err)
		return "", err
	}

	logg.Info("store", "Author created successfully (username anonymized)")
	return id, nil
}

// GetAuthor returns the author record or models.ErrNotFound.
func (s *Store) GetAuthor(authorID string) (models.Author, error) {
	var a models.Author
	err := s.Session.Query(
		`SELECT author_id, username, created_at FROM authors WHERE author_id = ?`,
		authorID,
	).Scan(&a.ID, &a.Username, &a.Created)
	if err != nil {
		if err == gocql.ErrNotFound {
			return models.Author{}, models.ErrNotFound
		}
		logg.Error("store", "Failed to query author", err)
		return models.Author{}, err
	}
	return a, nil
}

// --- Group operations ---

func (s *Store) CreateGroup(group models.Group) error {
	if err := s.Session.Query(`
		INSERT INTO groups (slug, title, description)
		VALUES (?, ?, ?)`,
		group.Slug, group.Title, group.Description,
	).Exec(); err != nil {
		logg.Error("store", "Failed to create group", err)
		return err
	}
	return nil
}

// GetGroup returns the group by slug or models.ErrNotFound.
func (s *Store) GetGroup(slug string) (models.Group, error) {
	var g models.Group
	err := s.Session.Query(
		`SELECT slug, title, description FROM groups WHERE slug = ?`,
		slug,
	).Scan(&g.Slug, &g.Title, &g.Description)
	if err != nil {
		if err == gocql.ErrNotFound {
			return models.Group{}, models.ErrNotFound
		}
		logg.Error("store", "Failed to query group", err)
		return models.Group{}, err
	}
	return g, nil
}

// DeleteGroup removes a group. Posts keep existing with the group
// reference cleared, so every post row referencing the slug is rewritten
// before the group partition is dropped.
func (s *Store) DeleteGroup(slug string) error {
	posts, err := s.PostsByGroup(slug, 0)
	if err != nil {
		return err
	}

	for _, p := range posts {
		batch := s.Session.NewBatch(gocql.LoggedBatch)
		batch.Query(`UPDATE posts SET group_slug = '' WHERE post_id = ?`, p.ID)
		batch.Query(`UPDATE posts_global SET group_slug = '' WHERE bucket = ? AND created_at = ? AND post_id = ?`,
			globalBucket, p.Created, p.ID)
		batch.Query(`UPDATE posts_by_author SET group_slug = '' WHERE author_id = ? AND created_at = ? AND post_id = ?`,
			p.AuthorID, p.Created, p.ID)
		if err := s.Session.ExecuteBatch(batch); err != nil {
			logg.Error("store", "Failed to clear group reference on post", err)
			return err
		}
	}

	batch := s.Session.NewBatch(gocql.LoggedBatch)
	batch.Query(`DELETE FROM posts_by_group WHERE group_slug = ?`, slug)
	batch.Query(`DELETE FROM groups WHERE slug = ?`, slug)
	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to delete group", err)
		return err
	}

	logg.Info("store", "Group deleted, post references cleared")
	return nil
}

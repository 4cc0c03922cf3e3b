package store

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/alferius/hw05-final/internal/models"
)

var mockAuthorCounter int

// MockStore simulates the Cassandra store for testing.
type MockStore struct {
	Authors    map[string]models.Author   // author_id -> author
	Groups     map[string]models.Group    // slug -> group
	Posts      map[string]models.Post     // post_id -> post
	Comments   map[string][]models.Comment
	Follows    map[string]map[string]bool // follower_id -> author_id set
	Timelines  map[string][]models.Post   // user_id -> materialized feed
	ShouldFail bool                       // flag to simulate failures
}

// NewMock initializes a new mock store
func NewMock() *MockStore {
	return &MockStore{
		Authors:   make(map[string]models.Author),
		Groups:    make(map[string]models.Group),
		Posts:     make(map[string]models.Post),
		Comments:  make(map[string][]models.Comment),
		Follows:   make(map[string]map[string]bool),
		Timelines: make(map[string][]models.Post),
	}
}

func (m *MockStore) Close() {}

func (m *MockStore) fail(op string) error {
	return errors.New("mock: " + op + " failed")
}

// sortNewestFirst reproduces the clustering order of the real tables.
func sortNewestFirst(posts []models.Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		if !posts[i].Created.Equal(posts[j].Created) {
			return posts[i].Created.After(posts[j].Created)
		}
		return posts[i].ID < posts[j].ID
	})
}

func capPosts(posts []models.Post, limit int) []models.Post {
	if limit > 0 && len(posts) > limit {
		return posts[:limit]
	}
	return posts
}

// --- Authors ---

func (m *MockStore) CreateAuthor(username string) (string, error) {
	if m.ShouldFail {
		return "", m.fail("create author")
	}
	if id, _ := m.GetAuthorIDByUsername(username); id != "" {
		return id, nil
	}
	mockAuthorCounter++
	id := fmt.Sprintf("author_%d", mockAuthorCounter)
	m.Authors[id] = models.Author{ID: id, Username: username, Created: time.Now()}
	return id, nil
}

func (m *MockStore) GetAuthorIDByUsername(username string) (string, error) {
	if m.ShouldFail {
		return "", m.fail("get author by username")
	}
	for id, a := range m.Authors {
		if a.Username == username {
			return id, nil
		}
	}
	return "", nil
}

func (m *MockStore) GetAuthor(authorID string) (models.Author, error) {
	if m.ShouldFail {
		return models.Author{}, m.fail("get author")
	}
	a, ok := m.Authors[authorID]
	if !ok {
		return models.Author{}, models.ErrNotFound
	}
	return a, nil
}

// --- Groups ---

func (m *MockStore) CreateGroup(group models.Group) error {
	if m.ShouldFail {
		return m.fail("create group")
	}
	m.Groups[group.Slug] = group
	return nil
}

func (m *MockStore) GetGroup(slug string) (models.Group, error) {
	if m.ShouldFail {
		return models.Group{}, m.fail("get group")
	}
	g, ok := m.Groups[slug]
	if !ok {
		return models.Group{}, models.ErrNotFound
	}
	return g, nil
}

func (m *MockStore) DeleteGroup(slug string) error {
	if m.ShouldFail {
		return m.fail("delete group")
	}
	for id, p := range m.Posts {
		if p.GroupSlug == slug {
			p.GroupSlug = ""
			m.Posts[id] = p
		}
	}
	delete(m.Groups, slug)
	return nil
}

// --- Posts ---

func (m *MockStore) AddPost(post models.Post) error {
	if m.ShouldFail {
		return m.fail("add post")
	}
	m.Posts[post.ID] = post
	return nil
}

func (m *MockStore) GetPost(postID string) (models.Post, error) {
	if m.ShouldFail {
		return models.Post{}, m.fail("get post")
	}
	p, ok := m.Posts[postID]
	if !ok {
		return models.Post{}, models.ErrNotFound
	}
	return p, nil
}

func (m *MockStore) UpdatePost(post models.Post) error {
	if m.ShouldFail {
		return m.fail("update post")
	}
	prev, ok := m.Posts[post.ID]
	if !ok {
		return models.ErrNotFound
	}
	prev.Text = post.Text
	prev.GroupSlug = post.GroupSlug
	prev.Image = post.Image
	m.Posts[post.ID] = prev
	return nil
}

func (m *MockStore) DeletePost(postID string) error {
	if m.ShouldFail {
		return m.fail("delete post")
	}
	if _, ok := m.Posts[postID]; !ok {
		return models.ErrNotFound
	}
	delete(m.Posts, postID)
	delete(m.Comments, postID)
	return nil
}

func (m *MockStore) GlobalPosts(limit int) ([]models.Post, error) {
	if m.ShouldFail {
		return nil, m.fail("global posts")
	}
	var res []models.Post
	for _, p := range m.Posts {
		res = append(res, p)
	}
	sortNewestFirst(res)
	return capPosts(res, limit), nil
}

func (m *MockStore) PostsByGroup(slug string, limit int) ([]models.Post, error) {
	if m.ShouldFail {
		return nil, m.fail("posts by group")
	}
	var res []models.Post
	for _, p := range m.Posts {
		if p.GroupSlug == slug {
			res = append(res, p)
		}
	}
	sortNewestFirst(res)
	return capPosts(res, limit), nil
}

func (m *MockStore) PostsByAuthor(authorID string, limit int) ([]models.Post, error) {
	if m.ShouldFail {
		return nil, m.fail("posts by author")
	}
	var res []models.Post
	for _, p := range m.Posts {
		if p.AuthorID == authorID {
			res = append(res, p)
		}
	}
	sortNewestFirst(res)
	return capPosts(res, limit), nil
}

// --- Comments ---

func (m *MockStore) AddComment(comment models.Comment) error {
	if m.ShouldFail {
		return m.fail("add comment")
	}
	m.Comments[comment.PostID] = append(m.Comments[comment.PostID], comment)
	return nil
}

func (m *MockStore) CommentsByPost(postID string) ([]models.Comment, error) {
	if m.ShouldFail {
		return nil, m.fail("comments by post")
	}
	return m.Comments[postID], nil
}

// --- Follows ---

func (m *MockStore) CreateFollow(followerID, authorID string) error {
	if m.ShouldFail {
		return m.fail("create follow")
	}
	if m.Follows[followerID] == nil {
		m.Follows[followerID] = make(map[string]bool)
	}
	m.Follows[followerID][authorID] = true
	return nil
}

func (m *MockStore) DeleteFollow(followerID, authorID string) error {
	if m.ShouldFail {
		return m.fail("delete follow")
	}
	if !m.Follows[followerID][authorID] {
		return models.ErrNotFound
	}
	delete(m.Follows[followerID], authorID)
	return nil
}

func (m *MockStore) IsFollowing(followerID, authorID string) (bool, error) {
	if m.ShouldFail {
		return false, m.fail("is following")
	}
	return m.Follows[followerID][authorID], nil
}

func (m *MockStore) FollowedAuthors(followerID string) ([]string, error) {
	if m.ShouldFail {
		return nil, m.fail("followed authors")
	}
	var res []string
	for id := range m.Follows[followerID] {
		res = append(res, id)
	}
	sort.Strings(res)
	return res, nil
}

func (m *MockStore) GetFollowers(authorID string) ([]string, error) {
	if m.ShouldFail {
		return nil, m.fail("get followers")
	}
	var res []string
	for follower, set := range m.Follows {
		if set[authorID] {
			res = append(res, follower)
		}
	}
	sort.Strings(res)
	return res, nil
}

// --- Timelines ---

func (m *MockStore) AddToTimeline(userID string, post models.Post) error {
	if m.ShouldFail {
		return m.fail("add to timeline")
	}
	for _, p := range m.Timelines[userID] {
		if p.ID == post.ID {
			return nil
		}
	}
	m.Timelines[userID] = append(m.Timelines[userID], post)
	return nil
}

func (m *MockStore) RemoveFromTimeline(userID, postID string, _ time.Time) error {
	if m.ShouldFail {
		return m.fail("remove from timeline")
	}
	tl := m.Timelines[userID]
	for i, p := range tl {
		if p.ID == postID {
			m.Timelines[userID] = append(tl[:i], tl[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *MockStore) RemoveAuthorFromTimeline(userID, authorID string) error {
	if m.ShouldFail {
		return m.fail("remove author from timeline")
	}
	var kept []models.Post
	for _, p := range m.Timelines[userID] {
		if p.AuthorID != authorID {
			kept = append(kept, p)
		}
	}
	m.Timelines[userID] = kept
	return nil
}

func (m *MockStore) Timeline(userID string, limit int) ([]models.Post, error) {
	if m.ShouldFail {
		return nil, m.fail("timeline")
	}
	res := append([]models.Post(nil), m.Timelines[userID]...)
	sortNewestFirst(res)
	return capPosts(res, limit), nil
}

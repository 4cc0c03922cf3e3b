package feed

import (
	"github.com/alferius/hw05-final/internal/follow"
	"github.com/alferius/hw05-final/internal/models"
	"github.com/alferius/hw05-final/internal/store"
)

// Composer builds the four feed views. Each one fetches a candidate set
// of posts already ordered newest-first by the store, then paginates it.
type Composer struct {
	store      store.StoreInterface
	follows    *follow.Service
	perPage    int
	fetchLimit int
}

// NewComposer wires a Composer. fetchLimit caps how many candidate posts
// a single feed request reads from the store; <= 0 means unbounded.
func NewComposer(st store.StoreInterface, follows *follow.Service, perPage, fetchLimit int) *Composer {
	if perPage <= 0 {
		perPage = DefaultPageSize
	}
	return &Composer{
		store:      st,
		follows:    follows,
		perPage:    perPage,
		fetchLimit: fetchLimit,
	}
}

// Index is the global feed: every post, any viewer.
func (c *Composer) Index(page int) (Page, error) {
	posts, err := c.store.GlobalPosts(c.fetchLimit)
	if err != nil {
		return Page{}, err
	}
	return NewPaginator(posts, c.perPage).Page(page), nil
}

// Group is the feed of one group; models.ErrNotFound for unknown slugs.
func (c *Composer) Group(slug string, page int) (models.Group, Page, error) {
	group, err := c.store.GetGroup(slug)
	if err != nil {
		return models.Group{}, Page{}, err
	}

	posts, err := c.store.PostsByGroup(slug, c.fetchLimit)
	if err != nil {
		return models.Group{}, Page{}, err
	}
	return group, NewPaginator(posts, c.perPage).Page(page), nil
}

// ProfileView is the author feed plus the viewer-dependent follow flag.
type ProfileView struct {
	Author    models.Author `json:"author"`
	Following bool          `json:"following"`
	Page      Page          `json:"page"`
}

// Profile is the feed of one author; models.ErrNotFound for unknown
// usernames. Following is false for anonymous viewers.
func (c *Composer) Profile(username string, viewer models.Viewer, page int) (ProfileView, error) {
	authorID, err := c.store.GetAuthorIDByUsername(username)
	if err != nil {
		return ProfileView{}, err
	}
	if authorID == "" {
		return ProfileView{}, models.ErrNotFound
	}

	author, err := c.store.GetAuthor(authorID)
	if err != nil {
		return ProfileView{}, err
	}

	following, err := c.follows.IsFollowing(viewer, authorID)
	if err != nil {
		return ProfileView{}, err
	}

	posts, err := c.store.PostsByAuthor(authorID, c.fetchLimit)
	if err != nil {
		return ProfileView{}, err
	}

	return ProfileView{
		Author:    author,
		Following: following,
		Page:      NewPaginator(posts, c.perPage).Page(page),
	}, nil
}

// Following is the personalized feed of posts by followed authors, read
// from the materialized timeline. Requires an authenticated viewer.
func (c *Composer) Following(viewer models.Viewer, page int) (Page, error) {
	if !viewer.Authenticated {
		return Page{}, models.ErrUnauthorized
	}

	posts, err := c.store.Timeline(viewer.ID, c.fetchLimit)
	if err != nil {
		return Page{}, err
	}
	return NewPaginator(posts, c.perPage).Page(page), nil
}

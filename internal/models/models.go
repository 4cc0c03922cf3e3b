package models

import "time"

type Author struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	Created  time.Time `json:"created"`
}

type Group struct {
	Title       string `json:"title"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
}

type Post struct {
	ID             string    `json:"id"`
	Text           string    `json:"text"`
	AuthorID       string    `json:"author_id"`
	AuthorUsername string    `json:"author_username"`
	GroupSlug      string    `json:"group_slug,omitempty"`
	Image          string    `json:"image,omitempty"`
	Created        time.Time `json:"created"`
}

type Comment struct {
	ID             string    `json:"id"`
	PostID         string    `json:"post_id"`
	AuthorID       string    `json:"author_id"`
	AuthorUsername string    `json:"author_username"`
	Text           string    `json:"text"`
	Created        time.Time `json:"created"`
}

type Follow struct {
	FollowerID string `json:"follower_id"`
	AuthorID   string `json:"author_id"`
}

// Viewer is the identity a request acts under. Every policy decision
// branches on Authenticated, so it is an explicit discriminant rather
// than a nullable ID.
type Viewer struct {
	ID            string
	Authenticated bool
}

func Anonymous() Viewer {
	return Viewer{}
}

func AuthenticatedViewer(id string) Viewer {
	return Viewer{ID: id, Authenticated: true}
}

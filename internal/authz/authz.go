package authz

import "github.com/alferius/hw05-final/internal/models"

// CanEdit reports whether the viewer may edit or delete the post: only
// the authenticated owner. Anonymous viewers can never edit.
func CanEdit(viewer models.Viewer, post models.Post) bool {
	return viewer.Authenticated && viewer.ID == post.AuthorID
}

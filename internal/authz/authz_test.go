package authz

import (
	"testing"

	"github.com/alferius/hw05-final/internal/models"
)

func TestCanEdit(t *testing.T) {
	post := models.Post{ID: "100", AuthorID: "author_1"}

	cases := []struct {
		name   string
		viewer models.Viewer
		want   bool
	}{
		{"owner", models.AuthenticatedViewer("author_1"), true},
		{"other author", models.AuthenticatedViewer("author_2"), false},
		{"anonymous", models.Anonymous(), false},
		{"anonymous with forged ID", models.Viewer{ID: "author_1"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanEdit(tc.viewer, post); got != tc.want {
				t.Fatalf("CanEdit = %v, want %v", got, tc.want)
			}
		})
	}
}

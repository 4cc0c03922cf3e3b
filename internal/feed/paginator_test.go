package feed

import (
	"fmt"
	"testing"
	"time"

	"github.com/alferius/hw05-final/internal/models"
)

// makePosts builds n posts with strictly decreasing creation times,
// newest first, the order the store hands them back in.
func makePosts(n int) []models.Post {
	base := time.Now()
	posts := make([]models.Post, 0, n)
	for i := 0; i < n; i++ {
		posts = append(posts, models.Post{
			ID:      fmt.Sprintf("post_%d", i),
			Text:    fmt.Sprintf("post number %d", i),
			Created: base.Add(-time.Duration(i) * time.Minute),
		})
	}
	return posts
}

func TestPaginator_FifteenPostsSplitTenFive(t *testing.T) {
	p := NewPaginator(makePosts(15), 10)

	page1 := p.Page(1)
	if len(page1.Posts) != 10 {
		t.Fatalf("expected 10 posts on page 1, got %d", len(page1.Posts))
	}
	if !page1.HasNext || page1.HasPrev {
		t.Fatalf("unexpected nav flags on page 1: %+v", page1)
	}

	page2 := p.Page(2)
	if len(page2.Posts) != 5 {
		t.Fatalf("expected 5 posts on page 2, got %d", len(page2.Posts))
	}
	if page2.HasNext || !page2.HasPrev {
		t.Fatalf("unexpected nav flags on page 2: %+v", page2)
	}

	if page1.TotalPages != 2 || page2.TotalPages != 2 {
		t.Fatalf("expected 2 total pages")
	}
}

func TestPaginator_ClampsOutOfRange(t *testing.T) {
	p := NewPaginator(makePosts(15), 10)

	if got := p.Page(99).Number; got != 2 {
		t.Fatalf("expected page 99 to clamp to 2, got %d", got)
	}
	if got := p.Page(0).Number; got != 1 {
		t.Fatalf("expected page 0 to clamp to 1, got %d", got)
	}
	if got := p.Page(-5).Number; got != 1 {
		t.Fatalf("expected negative page to clamp to 1, got %d", got)
	}
}

func TestPaginator_EmptyFeedHasOneEmptyPage(t *testing.T) {
	p := NewPaginator(nil, 10)

	page := p.Page(1)
	if page.TotalPages != 1 || page.Number != 1 {
		t.Fatalf("expected single page for empty feed, got %+v", page)
	}
	if len(page.Posts) != 0 {
		t.Fatalf("expected no posts, got %d", len(page.Posts))
	}
}

func TestPaginator_PreservesDescendingOrder(t *testing.T) {
	posts := makePosts(25)
	p := NewPaginator(posts, 10)

	var seen []models.Post
	for n := 1; n <= p.TotalPages(); n++ {
		seen = append(seen, p.Page(n).Posts...)
	}

	if len(seen) != len(posts) {
		t.Fatalf("expected %d posts across pages, got %d", len(posts), len(seen))
	}
	for i := 1; i < len(seen); i++ {
		if seen[i].Created.After(seen[i-1].Created) {
			t.Fatalf("posts out of order at index %d", i)
		}
	}
}

func TestParsePage_DegradesToFirstPage(t *testing.T) {
	cases := map[string]int{
		"":     1,
		"abc":  1,
		"-3":   1,
		"0":    1,
		"2":    2,
		"17":   17,
		"2.5":  1,
		" 2":   1,
	}

	for raw, want := range cases {
		if got := ParsePage(raw); got != want {
			t.Fatalf("ParsePage(%q) = %d, want %d", raw, got, want)
		}
	}
}

package feed

import (
	"strconv"

	"github.com/alferius/hw05-final/internal/models"
)

const DefaultPageSize = 10

// Page is one fixed-size slice of an ordered feed.
type Page struct {
	Number     int           `json:"number"`
	TotalPages int           `json:"total_pages"`
	TotalPosts int           `json:"total_posts"`
	HasNext    bool          `json:"has_next"`
	HasPrev    bool          `json:"has_prev"`
	Posts      []models.Post `json:"posts"`
}

// Paginator slices an already-ordered post list into fixed-size pages.
// Out-of-range page numbers clamp instead of erroring: below 1 becomes
// the first page, past the end becomes the last page. An empty feed
// still has one (empty) page.
type Paginator struct {
	posts   []models.Post
	perPage int
}

func NewPaginator(posts []models.Post, perPage int) *Paginator {
	if perPage <= 0 {
		perPage = DefaultPageSize
	}
	return &Paginator{posts: posts, perPage: perPage}
}

func (p *Paginator) TotalPages() int {
	n := (len(p.posts) + p.perPage - 1) / p.perPage
	if n < 1 {
		n = 1
	}
	return n
}

func (p *Paginator) Page(number int) Page {
	total := p.TotalPages()
	if number < 1 {
		number = 1
	}
	if number > total {
		number = total
	}

	start := (number - 1) * p.perPage
	end := start + p.perPage
	if start > len(p.posts) {
		start = len(p.posts)
	}
	if end > len(p.posts) {
		end = len(p.posts)
	}

	return Page{
		Number:     number,
		TotalPages: total,
		TotalPosts: len(p.posts),
		HasNext:    number < total,
		HasPrev:    number > 1,
		Posts:      p.posts[start:end],
	}
}

// ParsePage turns the raw "page" query parameter into a page number.
// Anything non-numeric or below 1 degrades to the first page.
func ParsePage(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	appkafka "github.com/alferius/hw05-final/internal/broker"
	"github.com/alferius/hw05-final/internal/cache"
	"github.com/alferius/hw05-final/internal/feed"
	config "github.com/alferius/hw05-final/internal/init"
	"github.com/alferius/hw05-final/internal/models"
	"github.com/alferius/hw05-final/internal/store"
	"github.com/golang-jwt/jwt/v5"
)

//
// --- Helpers ---
//

// generate JWT token for test author
func makeTestJWT(authorID string) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"author_id": authorID,
		"exp":       time.Now().Add(time.Hour).Unix(),
	})
	tokenStr, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		panic(err)
	}
	return tokenStr
}

// client that surfaces redirects instead of following them
var noRedirect = &http.Client{
	CheckRedirect: func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	},
}

func testConfig(cacheTTL time.Duration) *config.Config {
	return &config.Config{
		PageSize:       10,
		FeedFetchLimit: 0,
		BackfillLimit:  100,
		CacheKey:       "index_page",
		CacheTTL:       cacheTTL,
	}
}

//
// --- Setup test server ---
//

func setupTestServer(t *testing.T, cacheTTL time.Duration) (*Server, *store.MockStore, *httptest.Server) {
	t.Helper()
	os.Setenv("JWT_SECRET", "test-secret")

	mockStore := store.NewMock()
	s := newServer(mockStore, &appkafka.MockKafka{Store: mockStore}, cache.NewMemory(), testConfig(cacheTTL))
	ts := httptest.NewServer(s.routes())
	return s, mockStore, ts
}

func doRequest(t *testing.T, client *http.Client, method, url, token string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json.Marshal failed: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("expected %d, got %d: %s", want, resp.StatusCode, string(b))
	}
}

// seed an author with posts directly through the store
func seedAuthorWithPosts(t *testing.T, st *store.MockStore, username, slug string, count int) string {
	t.Helper()
	authorID, err := st.CreateAuthor(username)
	if err != nil {
		t.Fatalf("CreateAuthor failed: %v", err)
	}
	base := time.Now()
	for i := 0; i < count; i++ {
		err := st.AddPost(models.Post{
			ID:             fmt.Sprintf("%s_post_%d", username, i),
			Text:           fmt.Sprintf("post %d", i),
			AuthorID:       authorID,
			AuthorUsername: username,
			GroupSlug:      slug,
			Created:        base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("AddPost failed: %v", err)
		}
	}
	return authorID
}

//
// --- Registration ---
//

func TestCreateAuthor(t *testing.T) {
	_, _, ts := setupTestServer(t, 0)
	defer ts.Close()

	resp := doRequest(t, http.DefaultClient, http.MethodPost, ts.URL+"/users", "", map[string]any{"username": "almaz"})
	expectStatus(t, resp, http.StatusOK)

	var res map[string]any
	decodeBody(t, resp, &res)
	if res["author_id"] == "" || res["token"] == "" {
		t.Fatalf("expected author_id and token, got %+v", res)
	}
}

func TestCreateAuthor_InvalidJSON(t *testing.T) {
	_, _, ts := setupTestServer(t, 0)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/users", "application/json", bytes.NewBufferString(`{"username":123}`))
	if err != nil {
		t.Fatalf("http.Post failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

//
// --- Feeds & pagination ---
//

// 15 posts in one group by one author: global, group and profile feeds
// each show 10 posts on page 1 and 5 on page 2.
func TestFeeds_FifteenPostsPaginate(t *testing.T) {
	// TTL 0 disables the page cache so both index pages render fresh.
	_, st, ts := setupTestServer(t, 0)
	defer ts.Close()

	st.CreateGroup(models.Group{Title: "Test group", Slug: "testslug", Description: "d"})
	seedAuthorWithPosts(t, st, "auth", "testslug", 15)

	checkPage := func(url string, extract func(*http.Response) feed.Page, wantLen int) {
		t.Helper()
		resp := doRequest(t, http.DefaultClient, http.MethodGet, url, "", nil)
		expectStatus(t, resp, http.StatusOK)
		page := extract(resp)
		if len(page.Posts) != wantLen {
			t.Fatalf("%s: expected %d posts, got %d", url, wantLen, len(page.Posts))
		}
	}

	asPage := func(resp *http.Response) feed.Page {
		var page feed.Page
		decodeBody(t, resp, &page)
		return page
	}
	asGroupPage := func(resp *http.Response) feed.Page {
		var body struct {
			Page feed.Page `json:"page"`
		}
		decodeBody(t, resp, &body)
		return body.Page
	}
	asProfilePage := func(resp *http.Response) feed.Page {
		var view feed.ProfileView
		decodeBody(t, resp, &view)
		return view.Page
	}

	checkPage(ts.URL+"/?page=1", asPage, 10)
	checkPage(ts.URL+"/?page=2", asPage, 5)
	checkPage(ts.URL+"/group/testslug?page=1", asGroupPage, 10)
	checkPage(ts.URL+"/group/testslug?page=2", asGroupPage, 5)
	checkPage(ts.URL+"/profile/auth?page=1", asProfilePage, 10)
	checkPage(ts.URL+"/profile/auth?page=2", asProfilePage, 5)

	// Degraded page parameters clamp instead of erroring.
	checkPage(ts.URL+"/?page=notanumber", asPage, 10)
	checkPage(ts.URL+"/group/testslug?page=99", asGroupPage, 5)
}

func TestGroupFeed_UnknownSlug(t *testing.T) {
	_, _, ts := setupTestServer(t, 0)
	defer ts.Close()

	resp := doRequest(t, http.DefaultClient, http.MethodGet, ts.URL+"/group/missing", "", nil)
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

func TestProfile_UnknownUsername(t *testing.T) {
	_, _, ts := setupTestServer(t, 0)
	defer ts.Close()

	resp := doRequest(t, http.DefaultClient, http.MethodGet, ts.URL+"/profile/ghost", "", nil)
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

//
// --- Follow flow ---
//

// full flow: follow -> post -> personalized feed
func TestFollowAndTimelineFlow(t *testing.T) {
	_, st, ts := setupTestServer(t, 0)
	defer ts.Close()

	almazID, _ := st.CreateAuthor("almaz")
	nurID, _ := st.CreateAuthor("nur")

	almazToken := makeTestJWT(almazID)
	nurToken := makeTestJWT(nurID)

	// Almaz -> follow Nur
	resp := doRequest(t, noRedirect, http.MethodGet, ts.URL+"/profile/nur/follow", almazToken, nil)
	expectStatus(t, resp, http.StatusFound)
	resp.Body.Close()

	// Nur -> create post
	resp = doRequest(t, noRedirect, http.MethodPost, ts.URL+"/create", nurToken, map[string]any{"text": "Hello from Nur!"})
	expectStatus(t, resp, http.StatusFound)
	resp.Body.Close()

	// Almaz -> personalized feed contains the post
	resp = doRequest(t, http.DefaultClient, http.MethodGet, ts.URL+"/follow", almazToken, nil)
	expectStatus(t, resp, http.StatusOK)

	var page feed.Page
	decodeBody(t, resp, &page)
	if len(page.Posts) != 1 || page.Posts[0].Text != "Hello from Nur!" {
		t.Fatalf("expected followed post in feed, got %+v", page.Posts)
	}
	if page.Posts[0].AuthorID != nurID {
		t.Fatalf("unexpected post author: %+v", page.Posts[0])
	}
}

func TestFollowFeed_RequiresAuth(t *testing.T) {
	_, _, ts := setupTestServer(t, 0)
	defer ts.Close()

	resp := doRequest(t, http.DefaultClient, http.MethodGet, ts.URL+"/follow", "", nil)
	expectStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()
}

// self-follow: no edge created, viewer redirected to own profile
func TestProfileFollow_SelfIsNoop(t *testing.T) {
	_, st, ts := setupTestServer(t, 0)
	defer ts.Close()

	almazID, _ := st.CreateAuthor("almaz")
	token := makeTestJWT(almazID)

	resp := doRequest(t, noRedirect, http.MethodGet, ts.URL+"/profile/almaz/follow", token, nil)
	expectStatus(t, resp, http.StatusFound)
	if loc := resp.Header.Get("Location"); loc != "/profile/almaz" {
		t.Fatalf("expected redirect to own profile, got %q", loc)
	}
	resp.Body.Close()

	if following, _ := st.IsFollowing(almazID, almazID); following {
		t.Fatal("self-follow edge must not be created")
	}
}

func TestProfileUnfollow_MissingEdge(t *testing.T) {
	_, st, ts := setupTestServer(t, 0)
	defer ts.Close()

	almazID, _ := st.CreateAuthor("almaz")
	st.CreateAuthor("nur")

	resp := doRequest(t, noRedirect, http.MethodGet, ts.URL+"/profile/nur/unfollow", makeTestJWT(almazID), nil)
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

//
// --- Post detail, edit & delete ---
//

func TestPostDetail_EditFlag(t *testing.T) {
	_, st, ts := setupTestServer(t, 0)
	defer ts.Close()

	ownerID := seedAuthorWithPosts(t, st, "owner", "", 1)
	otherID, _ := st.CreateAuthor("other")

	type detail struct {
		Post   models.Post `json:"post"`
		IsEdit bool        `json:"is_edit"`
	}

	for _, tc := range []struct {
		token  string
		isEdit bool
	}{
		{"", false},
		{makeTestJWT(otherID), false},
		{makeTestJWT(ownerID), true},
	} {
		resp := doRequest(t, http.DefaultClient, http.MethodGet, ts.URL+"/posts/owner_post_0", tc.token, nil)
		expectStatus(t, resp, http.StatusOK)

		var d detail
		decodeBody(t, resp, &d)
		if d.IsEdit != tc.isEdit {
			t.Fatalf("is_edit = %v, want %v", d.IsEdit, tc.isEdit)
		}
	}
}

// authenticated non-owner is redirected to the detail view, nothing mutates
func TestEditPost_NonOwnerRedirected(t *testing.T) {
	_, st, ts := setupTestServer(t, 0)
	defer ts.Close()

	seedAuthorWithPosts(t, st, "owner", "", 1)
	otherID, _ := st.CreateAuthor("other")
	otherToken := makeTestJWT(otherID)

	resp := doRequest(t, noRedirect, http.MethodGet, ts.URL+"/posts/owner_post_0/edit", otherToken, nil)
	expectStatus(t, resp, http.StatusFound)
	if loc := resp.Header.Get("Location"); loc != "/posts/owner_post_0" {
		t.Fatalf("expected redirect to detail view, got %q", loc)
	}
	resp.Body.Close()

	resp = doRequest(t, noRedirect, http.MethodPost, ts.URL+"/posts/owner_post_0/edit", otherToken, map[string]any{"text": "hijacked"})
	expectStatus(t, resp, http.StatusFound)
	resp.Body.Close()

	post, _ := st.GetPost("owner_post_0")
	if post.Text == "hijacked" {
		t.Fatal("non-owner edit must not mutate the post")
	}
}

func TestEditPost_OwnerUpdates(t *testing.T) {
	_, st, ts := setupTestServer(t, 0)
	defer ts.Close()

	ownerID := seedAuthorWithPosts(t, st, "owner", "", 1)
	token := makeTestJWT(ownerID)

	resp := doRequest(t, noRedirect, http.MethodPost, ts.URL+"/posts/owner_post_0/edit", token, map[string]any{"text": "updated text"})
	expectStatus(t, resp, http.StatusFound)
	resp.Body.Close()

	post, err := st.GetPost("owner_post_0")
	if err != nil {
		t.Fatalf("GetPost failed: %v", err)
	}
	if post.Text != "updated text" {
		t.Fatalf("expected updated text, got %q", post.Text)
	}
}

func TestEditPost_UnknownGroupIsValidationError(t *testing.T) {
	_, st, ts := setupTestServer(t, 0)
	defer ts.Close()

	ownerID := seedAuthorWithPosts(t, st, "owner", "", 1)
	token := makeTestJWT(ownerID)

	resp := doRequest(t, noRedirect, http.MethodPost, ts.URL+"/posts/owner_post_0/edit", token,
		map[string]any{"text": "ok", "group_slug": "missing"})
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

//
// --- Page cache ---
//

// a post deleted after the cache fill stays visible in the cached global
// feed until the TTL lapses
func TestIndexCache_ServesStalePageWithinTTL(t *testing.T) {
	_, st, ts := setupTestServer(t, 60*time.Millisecond)
	defer ts.Close()

	ownerID := seedAuthorWithPosts(t, st, "owner", "", 1)
	token := makeTestJWT(ownerID)

	fetchIndex := func() feed.Page {
		t.Helper()
		resp := doRequest(t, http.DefaultClient, http.MethodGet, ts.URL+"/", "", nil)
		expectStatus(t, resp, http.StatusOK)
		var page feed.Page
		decodeBody(t, resp, &page)
		return page
	}

	if page := fetchIndex(); len(page.Posts) != 1 {
		t.Fatalf("expected 1 post before delete, got %d", len(page.Posts))
	}

	resp := doRequest(t, http.DefaultClient, http.MethodDelete, ts.URL+"/posts/owner_post_0", token, nil)
	expectStatus(t, resp, http.StatusNoContent)
	resp.Body.Close()

	// Still served from cache within the TTL window.
	if page := fetchIndex(); len(page.Posts) != 1 {
		t.Fatalf("expected stale cached post within TTL, got %d posts", len(page.Posts))
	}

	time.Sleep(80 * time.Millisecond)

	if page := fetchIndex(); len(page.Posts) != 0 {
		t.Fatalf("expected empty feed after TTL, got %d posts", len(page.Posts))
	}
}

func TestIndexCache_ExplicitInvalidation(t *testing.T) {
	s, st, ts := setupTestServer(t, time.Minute)
	defer ts.Close()

	ownerID := seedAuthorWithPosts(t, st, "owner", "", 1)
	token := makeTestJWT(ownerID)

	resp := doRequest(t, http.DefaultClient, http.MethodGet, ts.URL+"/", "", nil)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = doRequest(t, http.DefaultClient, http.MethodDelete, ts.URL+"/posts/owner_post_0", token, nil)
	expectStatus(t, resp, http.StatusNoContent)
	resp.Body.Close()

	if err := s.pageCache.Invalidate(context.Background(), s.cacheKey); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}

	resp = doRequest(t, http.DefaultClient, http.MethodGet, ts.URL+"/", "", nil)
	expectStatus(t, resp, http.StatusOK)
	var page feed.Page
	decodeBody(t, resp, &page)
	if len(page.Posts) != 0 {
		t.Fatalf("expected empty feed after invalidation, got %d posts", len(page.Posts))
	}
}

//
// --- Comments ---
//

func TestAddComment(t *testing.T) {
	_, st, ts := setupTestServer(t, 0)
	defer ts.Close()

	seedAuthorWithPosts(t, st, "owner", "", 1)
	readerID, _ := st.CreateAuthor("reader")
	token := makeTestJWT(readerID)

	// unauthenticated
	resp := doRequest(t, http.DefaultClient, http.MethodPost, ts.URL+"/posts/owner_post_0/comment", "", map[string]any{"text": "hi"})
	expectStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()

	// unknown post
	resp = doRequest(t, http.DefaultClient, http.MethodPost, ts.URL+"/posts/ghost/comment", token, map[string]any{"text": "hi"})
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()

	// empty text
	resp = doRequest(t, http.DefaultClient, http.MethodPost, ts.URL+"/posts/owner_post_0/comment", token, map[string]any{"text": ""})
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	// two identical submissions create two comments
	for i := 0; i < 2; i++ {
		resp = doRequest(t, noRedirect, http.MethodPost, ts.URL+"/posts/owner_post_0/comment", token, map[string]any{"text": "same text"})
		expectStatus(t, resp, http.StatusFound)
		if loc := resp.Header.Get("Location"); loc != "/posts/owner_post_0" {
			t.Fatalf("expected redirect to detail, got %q", loc)
		}
		resp.Body.Close()
	}

	comments, _ := st.CommentsByPost("owner_post_0")
	if len(comments) != 2 {
		t.Fatalf("expected 2 comments, got %d", len(comments))
	}
}

//
// --- Failure modes ---
//

func TestCreatePost_KafkaWriteError(t *testing.T) {
	s, st, ts := setupTestServer(t, 0)
	defer ts.Close()

	authorID, _ := st.CreateAuthor("almaz")
	s.kafkaWriter = &appkafka.MockKafkaFail{}

	resp := doRequest(t, http.DefaultClient, http.MethodPost, ts.URL+"/create", makeTestJWT(authorID), map[string]any{"text": "x"})
	expectStatus(t, resp, http.StatusInternalServerError)
	resp.Body.Close()
}

func TestCreatePost_ValidationError(t *testing.T) {
	_, st, ts := setupTestServer(t, 0)
	defer ts.Close()

	authorID, _ := st.CreateAuthor("almaz")
	token := makeTestJWT(authorID)

	resp := doRequest(t, http.DefaultClient, http.MethodPost, ts.URL+"/create", token, map[string]any{"text": ""})
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestStoreFailure_SurfacesAsInternalError(t *testing.T) {
	_, st, ts := setupTestServer(t, 0)
	defer ts.Close()

	st.ShouldFail = true

	resp := doRequest(t, http.DefaultClient, http.MethodGet, ts.URL+"/", "", nil)
	expectStatus(t, resp, http.StatusInternalServerError)
	resp.Body.Close()
}

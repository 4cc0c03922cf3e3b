package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/alferius/hw05-final/internal/authz"
	appkafka "github.com/alferius/hw05-final/internal/broker"
	"github.com/alferius/hw05-final/internal/feed"
	"github.com/alferius/hw05-final/internal/middleware"
	"github.com/alferius/hw05-final/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// --- Shared helpers ---

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// respondError maps domain errors onto HTTP statuses. Anything outside
// the taxonomy is an internal error.
func respondError(w http.ResponseWriter, module string, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, models.ErrUnauthorized):
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	case errors.Is(err, models.ErrValidation):
		http.Error(w, "validation failed", http.StatusBadRequest)
	default:
		logg.Error(module, "Internal error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func pageFromRequest(r *http.Request) int {
	return feed.ParsePage(r.URL.Query().Get("page"))
}

func redirectToPost(w http.ResponseWriter, r *http.Request, postID string) {
	http.Redirect(w, r, "/posts/"+postID, http.StatusFound)
}

func redirectToProfile(w http.ResponseWriter, r *http.Request, username string) {
	http.Redirect(w, r, "/profile/"+username, http.StatusFound)
}

// --- Registration ---

// createAuthorHandler handles POST /users.
// Expects JSON body: {"username": "example"}
// Returns JSON response: {"author_id": <id>, "token": <jwt>}
func (s *Server) createAuthorHandler(w http.ResponseWriter, r *http.Request) {
	type req struct{ Username string }
	var body req

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logg.Error("http/users", "Invalid request body", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if len(body.Username) == 0 || len(body.Username) > 50 {
		logg.Info("http/users", "Invalid username length")
		http.Error(w, "username must be 1-50 characters", http.StatusBadRequest)
		return
	}

	authorID, err := s.store.GetAuthorIDByUsername(body.Username)
	if err != nil {
		logg.Error("http/users", "Failed to query existing username", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if authorID == "" {
		authorID, err = s.store.CreateAuthor(body.Username)
		if err != nil {
			logg.Error("http/users", "Failed to create author", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		logg.Info("http/users", "Author created successfully with author_id="+authorID)
	} else {
		logg.Info("http/users", "Author already exists, returning existing author_id="+authorID)
	}

	secret := []byte(os.Getenv("JWT_SECRET"))
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"author_id": authorID,
		"exp":       time.Now().Add(time.Hour * 24).Unix(),
	})
	tokenStr, err := token.SignedString(secret)
	if err != nil {
		http.Error(w, "failed to generate token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"author_id": authorID,
		"token":     tokenStr,
	})
}

// --- Feeds ---

// indexHandler serves the global feed. The rendered page is cached under
// a single fixed key for the configured TTL: the key is deliberately not
// parameterized by page or viewer, so within one TTL window every
// request is answered from the first rendering.
func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if cached, ok, err := s.pageCache.Get(ctx, s.cacheKey); err == nil && ok {
		w.Header().Set("Content-Type", "application/json")
		w.Write(cached)
		return
	} else if err != nil {
		logg.Error("http/index", "Page cache read failed", err)
	}

	page, err := s.composer.Index(pageFromRequest(r))
	if err != nil {
		respondError(w, "http/index", err)
		return
	}

	data, err := json.Marshal(page)
	if err != nil {
		logg.Error("http/index", "Failed to marshal feed page", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if err := s.pageCache.Set(ctx, s.cacheKey, data, s.cacheTTL); err != nil {
		logg.Error("http/index", "Page cache write failed", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// groupHandler serves /group/{slug}, 404 for unknown slugs.
func (s *Server) groupHandler(w http.ResponseWriter, r *http.Request) {
	group, page, err := s.composer.Group(r.PathValue("slug"), pageFromRequest(r))
	if err != nil {
		respondError(w, "http/group", err)
		return
	}

	writeJSON(w, map[string]any{
		"group": group,
		"page":  page,
	})
}

// profileHandler serves /profile/{username} with the following flag.
func (s *Server) profileHandler(w http.ResponseWriter, r *http.Request) {
	viewer := middleware.ViewerFromContext(r.Context())

	view, err := s.composer.Profile(r.PathValue("username"), viewer, pageFromRequest(r))
	if err != nil {
		respondError(w, "http/profile", err)
		return
	}

	writeJSON(w, view)
}

// followingFeedHandler serves the personalized followed-authors feed.
func (s *Server) followingFeedHandler(w http.ResponseWriter, r *http.Request) {
	viewer := middleware.ViewerFromContext(r.Context())

	page, err := s.composer.Following(viewer, pageFromRequest(r))
	if err != nil {
		respondError(w, "http/follow", err)
		return
	}

	writeJSON(w, page)
}

// --- Posts ---

// postDetailHandler serves a single post with its comments and the
// viewer's edit flag.
func (s *Server) postDetailHandler(w http.ResponseWriter, r *http.Request) {
	viewer := middleware.ViewerFromContext(r.Context())

	post, err := s.store.GetPost(r.PathValue("id"))
	if err != nil {
		respondError(w, "http/posts", err)
		return
	}

	comments, err := s.store.CommentsByPost(post.ID)
	if err != nil {
		respondError(w, "http/posts", err)
		return
	}

	writeJSON(w, map[string]any{
		"post":     post,
		"comments": comments,
		"is_edit":  authz.CanEdit(viewer, post),
	})
}

type postRequest struct {
	Text      string `json:"text"`
	GroupSlug string `json:"group_slug"`
	Image     string `json:"image"`
}

func (s *Server) validatePostRequest(body postRequest) error {
	if len(body.Text) == 0 || len(body.Text) > 1000 {
		return models.ErrValidation
	}
	if body.GroupSlug != "" {
		if _, err := s.store.GetGroup(body.GroupSlug); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				// Unknown group on a form submit is a form error,
				// not a missing page.
				return models.ErrValidation
			}
			return err
		}
	}
	return nil
}

// createPostHandler handles POST /create: stores the post and publishes
// the post_created event for timeline fan-out, then redirects to the
// author's profile.
func (s *Server) createPostHandler(w http.ResponseWriter, r *http.Request) {
	viewer := middleware.ViewerFromContext(r.Context())

	var body postRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logg.Error("http/create", "Invalid request body", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if err := s.validatePostRequest(body); err != nil {
		respondError(w, "http/create", err)
		return
	}

	author, err := s.store.GetAuthor(viewer.ID)
	if err != nil {
		respondError(w, "http/create", err)
		return
	}

	post := models.Post{
		ID:             uuid.NewString(),
		Text:           body.Text,
		AuthorID:       viewer.ID,
		AuthorUsername: author.Username,
		GroupSlug:      body.GroupSlug,
		Image:          body.Image,
		Created:        time.Now(),
	}

	msg, err := appkafka.PostMessage(appkafka.EventPostCreated, post)
	if err != nil {
		logg.Error("http/create", "Failed to marshal post event", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if err := s.kafkaWriter.WriteMessages(msg); err != nil {
		logg.Error("http/create", "Failed to write Kafka message", err)
		http.Error(w, "failed to write Kafka message: "+err.Error(), http.StatusInternalServerError)
		return
	}

	if err := s.store.AddPost(post); err != nil {
		logg.Error("http/create", "Failed to save post", err)
		http.Error(w, "failed to save post: "+err.Error(), http.StatusInternalServerError)
		return
	}

	logg.Info("http/create", "Post created successfully by author_id="+viewer.ID)
	redirectToProfile(w, r, author.Username)
}

// editPostFormHandler serves GET /posts/{id}/edit. Non-owners get a
// redirect to the read-only detail view, never an error page.
func (s *Server) editPostFormHandler(w http.ResponseWriter, r *http.Request) {
	viewer := middleware.ViewerFromContext(r.Context())

	post, err := s.store.GetPost(r.PathValue("id"))
	if err != nil {
		respondError(w, "http/edit", err)
		return
	}

	if !authz.CanEdit(viewer, post) {
		redirectToPost(w, r, post.ID)
		return
	}

	writeJSON(w, map[string]any{
		"post":    post,
		"is_edit": true,
	})
}

// editPostHandler applies POST /posts/{id}/edit for the owner and
// redirects to the detail view.
func (s *Server) editPostHandler(w http.ResponseWriter, r *http.Request) {
	viewer := middleware.ViewerFromContext(r.Context())

	post, err := s.store.GetPost(r.PathValue("id"))
	if err != nil {
		respondError(w, "http/edit", err)
		return
	}

	if !authz.CanEdit(viewer, post) {
		redirectToPost(w, r, post.ID)
		return
	}

	var body postRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logg.Error("http/edit", "Invalid request body", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if err := s.validatePostRequest(body); err != nil {
		respondError(w, "http/edit", err)
		return
	}

	post.Text = body.Text
	post.GroupSlug = body.GroupSlug
	post.Image = body.Image

	if err := s.store.UpdatePost(post); err != nil {
		respondError(w, "http/edit", err)
		return
	}

	logg.Info("http/edit", "Post updated by author_id="+viewer.ID)
	redirectToPost(w, r, post.ID)
}

// deletePostHandler handles DELETE /posts/{id} for the owner and
// publishes post_deleted so the worker purges follower timelines. The
// page cache is left alone: a deleted post stays visible in the cached
// global feed until the TTL lapses.
func (s *Server) deletePostHandler(w http.ResponseWriter, r *http.Request) {
	viewer := middleware.ViewerFromContext(r.Context())

	post, err := s.store.GetPost(r.PathValue("id"))
	if err != nil {
		respondError(w, "http/delete", err)
		return
	}

	if !authz.CanEdit(viewer, post) {
		redirectToPost(w, r, post.ID)
		return
	}

	if err := s.store.DeletePost(post.ID); err != nil {
		respondError(w, "http/delete", err)
		return
	}

	msg, err := appkafka.PostMessage(appkafka.EventPostDeleted, post)
	if err != nil {
		logg.Error("http/delete", "Failed to marshal post event", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if err := s.kafkaWriter.WriteMessages(msg); err != nil {
		logg.Error("http/delete", "Failed to write Kafka message", err)
		http.Error(w, "failed to write Kafka message: "+err.Error(), http.StatusInternalServerError)
		return
	}

	logg.Info("http/delete", "Post deleted by author_id="+viewer.ID)
	w.WriteHeader(http.StatusNoContent)
}

// --- Comments ---

// addCommentHandler handles POST /posts/{id}/comment and redirects back
// to the post detail view. Two identical submissions create two
// comments; there is no deduplication.
func (s *Server) addCommentHandler(w http.ResponseWriter, r *http.Request) {
	viewer := middleware.ViewerFromContext(r.Context())

	post, err := s.store.GetPost(r.PathValue("id"))
	if err != nil {
		respondError(w, "http/comment", err)
		return
	}

	type req struct {
		Text string `json:"text"`
	}
	var body req
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logg.Error("http/comment", "Invalid request body", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if len(body.Text) == 0 || len(body.Text) > 1000 {
		logg.Info("http/comment", "Comment body length invalid for author_id="+viewer.ID)
		respondError(w, "http/comment", models.ErrValidation)
		return
	}

	author, err := s.store.GetAuthor(viewer.ID)
	if err != nil {
		respondError(w, "http/comment", err)
		return
	}

	comment := models.Comment{
		ID:             uuid.NewString(),
		PostID:         post.ID,
		AuthorID:       viewer.ID,
		AuthorUsername: author.Username,
		Text:           body.Text,
		Created:        time.Now(),
	}

	if err := s.store.AddComment(comment); err != nil {
		respondError(w, "http/comment", err)
		return
	}

	logg.Info("http/comment", "Comment added by author_id="+viewer.ID)
	redirectToPost(w, r, post.ID)
}

// --- Follow endpoints ---

// profileFollowHandler handles GET /profile/{username}/follow.
// Self-follow and duplicate follow are silent no-ops: the viewer is
// redirected to the profile either way.
func (s *Server) profileFollowHandler(w http.ResponseWriter, r *http.Request) {
	viewer := middleware.ViewerFromContext(r.Context())
	username := r.PathValue("username")

	err := s.follows.Follow(viewer, username)
	if err != nil && !errors.Is(err, models.ErrNoop) {
		respondError(w, "http/follow", err)
		return
	}

	redirectToProfile(w, r, username)
}

// profileUnfollowHandler handles GET /profile/{username}/unfollow.
func (s *Server) profileUnfollowHandler(w http.ResponseWriter, r *http.Request) {
	viewer := middleware.ViewerFromContext(r.Context())
	username := r.PathValue("username")

	if err := s.follows.Unfollow(viewer, username); err != nil {
		respondError(w, "http/unfollow", err)
		return
	}

	redirectToProfile(w, r, username)
}

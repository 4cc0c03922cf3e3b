package server

import (
	"context"
	"net/http"
	"time"

	appkafka "github.com/alferius/hw05-final/internal/broker"
	"github.com/alferius/hw05-final/internal/cache"
	"github.com/alferius/hw05-final/internal/feed"
	"github.com/alferius/hw05-final/internal/follow"
	config "github.com/alferius/hw05-final/internal/init"
	"github.com/alferius/hw05-final/internal/logger"
	"github.com/alferius/hw05-final/internal/middleware"
	"github.com/alferius/hw05-final/internal/store"
)

type Server struct {
	store       store.StoreInterface
	kafkaWriter appkafka.KafkaWriter
	pageCache   cache.Cache
	composer    *feed.Composer
	follows     *follow.Service
	cacheKey    string
	cacheTTL    time.Duration
}

var logg = logger.New()

func newServer(st store.StoreInterface, writer appkafka.KafkaWriter, pageCache cache.Cache, cfg *config.Config) *Server {
	follows := follow.New(st, writer)
	return &Server{
		store:       st,
		kafkaWriter: writer,
		pageCache:   pageCache,
		composer:    feed.NewComposer(st, follows, cfg.PageSize, cfg.FeedFetchLimit),
		follows:     follows,
		cacheKey:    cfg.CacheKey,
		cacheTTL:    cfg.CacheTTL,
	}
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Public endpoint for author registration (no JWT required)
	mux.Handle("POST /users", http.HandlerFunc(s.createAuthorHandler))

	// Public pages: the viewer is resolved when a token is present so
	// display flags (is_edit, following) can be computed.
	mux.Handle("GET /{$}", middleware.WithViewer(http.HandlerFunc(s.indexHandler)))
	mux.Handle("GET /group/{slug}", middleware.WithViewer(http.HandlerFunc(s.groupHandler)))
	mux.Handle("GET /profile/{username}", middleware.WithViewer(http.HandlerFunc(s.profileHandler)))
	mux.Handle("GET /posts/{id}", middleware.WithViewer(http.HandlerFunc(s.postDetailHandler)))

	// Protected endpoints with JWT authentication middleware
	mux.Handle("POST /create", middleware.RequireAuth(http.HandlerFunc(s.createPostHandler)))
	mux.Handle("GET /posts/{id}/edit", middleware.RequireAuth(http.HandlerFunc(s.editPostFormHandler)))
	mux.Handle("POST /posts/{id}/edit", middleware.RequireAuth(http.HandlerFunc(s.editPostHandler)))
	mux.Handle("DELETE /posts/{id}", middleware.RequireAuth(http.HandlerFunc(s.deletePostHandler)))
	mux.Handle("POST /posts/{id}/comment", middleware.RequireAuth(http.HandlerFunc(s.addCommentHandler)))
	mux.Handle("GET /follow", middleware.RequireAuth(http.HandlerFunc(s.followingFeedHandler)))
	mux.Handle("GET /profile/{username}/follow", middleware.RequireAuth(http.HandlerFunc(s.profileFollowHandler)))
	mux.Handle("GET /profile/{username}/unfollow", middleware.RequireAuth(http.HandlerFunc(s.profileUnfollowHandler)))

	return mux
}

// Run starts the HTTPS server with JWT-protected routes and graceful shutdown.
func Run(ctx context.Context, st store.StoreInterface, writer appkafka.KafkaWriter, pageCache cache.Cache, cfg *config.Config) {
	s := newServer(st, writer, pageCache, cfg)

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      s.routes(),
		ReadTimeout:  10 * time.Second, // prevent slowloris attacks
		WriteTimeout: 10 * time.Second,
	}

	// --- Start server in a goroutine ---
	go func() {
		logg.Info("server", "Starting HTTPS server on "+cfg.ServerAddr)
		// TLS: cert.pem and key.pem should be valid certificates in specified paths
		if err := srv.ListenAndServeTLS("/certs/cert.pem", "/certs/key.pem"); err != nil && err != http.ErrServerClosed {
			logg.Error("server", "Server stopped unexpectedly", err)
		}
	}()

	// --- Graceful shutdown ---
	<-ctx.Done()
	logg.Info("server", "Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error("server", "Error during server shutdown", err)
	} else {
		logg.Info("server", "Server stopped gracefully")
	}
}

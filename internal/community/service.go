package community

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/pilatesloop/backend/internal/telemetry/tracing"

	"github.com/coocood/freecache"
)

const (
	feedCacheSizeBytes  = 10 * 1024 * 1024
	feedCacheTTLSeconds = 60
)

type postsRepo interface {
	Add(ctx context.Context, post Post) (*Post, error)
	Delete(ctx context.Context, id int) error
	List(ctx context.Context, page, size int) (_ []Post, total int, err error)
	PostsCount(ctx context.Context) (int, error)
}

type FeedPage struct {
	Posts []Post `json:"posts"`
	Total int    `json:"total"`
}

// Service is the community feed. Feed pages are cached for a short
// while, the feed tolerates slightly stale reads but not slow ones.
type Service struct {
	repo  postsRepo
	cache *freecache.Cache
}

func NewService(repo postsRepo) *Service {
	return &Service{
		repo:  repo,
		cache: freecache.NewCache(feedCacheSizeBytes),
	}
}

func feedPageCacheKey(page, size int) []byte {
	return []byte(fmt.Sprintf("feed-page-%d-%d", page, size))
}

func (s *Service) AddPost(ctx context.Context, post Post) (_ *Post, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "community.addpost")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now()
	}

	addedPost, err := s.repo.Add(ctx, post)
	if err != nil {
		return nil, err
	}

	s.cache.Clear()
	return addedPost, nil
}

func (s *Service) DeletePost(ctx context.Context, id int) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "community.deletepost")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("post.id", id))

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.cache.Clear()
	return nil
}

func (s *Service) FeedPage(ctx context.Context, page, size int) (_ *FeedPage, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "community.feedpage")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("page", page))
	span.SetAttributes(attribute.Int("size", size))

	cacheKey := feedPageCacheKey(page, size)
	if cached, err := s.cache.Get(cacheKey); err == nil {
		var feedPage FeedPage
		if err := json.Unmarshal(cached, &feedPage); err == nil {
			span.SetAttributes(attribute.Bool("cache_hit", true))
			return &feedPage, nil
		}
		log.Errorf("community feed, unmarshal cached page %d: %s", page, err)
	}

	posts, total, err := s.repo.List(ctx, page, size)
	if err != nil {
		return nil, err
	}

	feedPage := FeedPage{
		Posts: posts,
		Total: total,
	}

	if feedPageJson, err := json.Marshal(feedPage); err == nil {
		if err := s.cache.Set(cacheKey, feedPageJson, feedCacheTTLSeconds); err != nil {
			log.Tracef("community feed, cache page %d: %s", page, err)
		}
	}

	return &feedPage, nil
}

// PublishWorkout creates a feed post for a shared workout.
func (s *Service) PublishWorkout(ctx context.Context, userID int, logID string, message string) (_ int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "community.publishworkout")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("log.id", logID))

	content := message
	if content == "" {
		content = "completed a workout"
	}

	post, err := s.AddPost(ctx, Post{
		UserID:       userID,
		WorkoutLogID: &logID,
		Content:      content,
	})
	if err != nil {
		return 0, err
	}

	return post.ID, nil
}

// RemoveWorkoutPost drops the feed post of an unshared or deleted workout.
func (s *Service) RemoveWorkoutPost(ctx context.Context, postID int) error {
	return s.DeletePost(ctx, postID)
}

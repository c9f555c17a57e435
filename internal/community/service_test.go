package community

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type postsRepoMock struct {
	posts     map[int]*Post
	nextID    int
	listCalls int
}

func newPostsRepoMock() *postsRepoMock {
	return &postsRepoMock{
		posts: make(map[int]*Post),
	}
}

func (r *postsRepoMock) Add(_ context.Context, post Post) (*Post, error) {
	r.nextID++
	post.ID = r.nextID
	r.posts[post.ID] = &post
	return &post, nil
}

func (r *postsRepoMock) Delete(_ context.Context, id int) error {
	if _, ok := r.posts[id]; !ok {
		return ErrPostNotFound
	}
	delete(r.posts, id)
	return nil
}

func (r *postsRepoMock) List(_ context.Context, page, size int) ([]Post, int, error) {
	r.listCalls++

	var posts []Post
	for _, p := range r.posts {
		posts = append(posts, *p)
	}
	sort.Slice(posts, func(i, j int) bool {
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})

	total := len(posts)
	offset := (page - 1) * size
	if offset >= total {
		return []Post{}, total, nil
	}
	end := offset + size
	if end > total {
		end = total
	}
	return posts[offset:end], total, nil
}

func (r *postsRepoMock) PostsCount(_ context.Context) (int, error) {
	return len(r.posts), nil
}

func TestService_FeedPage_Cached(t *testing.T) {
	repo := newPostsRepoMock()
	service := NewService(repo)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := service.AddPost(ctx, Post{
			UserID:    1,
			Content:   "post content",
			CreatedAt: time.Now().Add(-time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	feedPage, err := service.FeedPage(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, feedPage.Total)
	assert.Len(t, feedPage.Posts, 3)
	assert.Equal(t, 1, repo.listCalls)

	// second read comes from the cache
	feedPage, err = service.FeedPage(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, feedPage.Total)
	assert.Equal(t, 1, repo.listCalls)

	// a new post invalidates the cached pages
	_, err = service.AddPost(ctx, Post{UserID: 2, Content: "fresh post"})
	require.NoError(t, err)

	feedPage, err = service.FeedPage(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 4, feedPage.Total)
	assert.Equal(t, 2, repo.listCalls)
}

func TestService_PublishAndRemoveWorkout(t *testing.T) {
	repo := newPostsRepoMock()
	service := NewService(repo)
	ctx := context.Background()

	logID := "9f2b2a44-8c7e-4e1e-9c0d-0f6a1a8d9b11"
	postID, err := service.PublishWorkout(ctx, 1, logID, "50min reformer done")
	require.NoError(t, err)
	require.NotZero(t, postID)

	post := repo.posts[postID]
	require.NotNil(t, post)
	require.NotNil(t, post.WorkoutLogID)
	assert.Equal(t, logID, *post.WorkoutLogID)
	assert.Equal(t, "50min reformer done", post.Content)

	// empty message falls back to a default
	postID2, err := service.PublishWorkout(ctx, 1, logID, "")
	require.NoError(t, err)
	assert.Equal(t, "completed a workout", repo.posts[postID2].Content)

	require.NoError(t, service.RemoveWorkoutPost(ctx, postID))
	assert.Nil(t, repo.posts[postID])

	// removing a missing post reports the error
	assert.ErrorIs(t, service.RemoveWorkoutPost(ctx, postID), ErrPostNotFound)
}

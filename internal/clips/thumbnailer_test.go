package clips

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gamefolio/backend/internal/models"
	"github.com/gamefolio/backend/internal/storage"
)

type thumbnailUpdaterStub struct {
	mu    sync.Mutex
	calls map[string]string
}

func (s *thumbnailUpdaterStub) SetThumbnail(_ context.Context, id, url, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[string]string)
	}
	s.calls[id] = key
	return nil
}

func (s *thumbnailUpdaterStub) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func TestThumbnailerStoresFrame(t *testing.T) {
	objects := storage.NewMemory("http://cdn.test")
	updater := &thumbnailUpdaterStub{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	thumbs := NewThumbnailer(objects, updater, ThumbnailerConfig{QueueSize: 1, Workers: 1, Timeout: time.Second}, logger)

	var gotArgs []string
	var argsMu sync.Mutex
	thumbs.Run = func(ctx context.Context, binary string, args ...string) ([]byte, error) {
		argsMu.Lock()
		gotArgs = args
		argsMu.Unlock()
		if binary != "ffmpeg" {
			t.Errorf("unexpected binary %q", binary)
		}
		return []byte("jpeg-bytes"), nil
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = thumbs.Shutdown(ctx)
	}()

	clip := models.Clip{ID: "clip-1", UserID: "user-1", VideoURL: "http://cdn.test/clips/user-1/1-a.mp4"}
	if err := thumbs.Enqueue(context.Background(), clip); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	waitForCondition(t, time.Second, func() bool { return updater.count() == 1 })

	reader, ok := objects.Get(storage.BucketClips, "user-1/thumbnails/clip-1.jpg")
	if !ok {
		t.Fatal("expected thumbnail object")
	}
	data, _ := io.ReadAll(reader)
	if !bytes.Equal(data, []byte("jpeg-bytes")) {
		t.Fatalf("unexpected frame %q", data)
	}

	argsMu.Lock()
	defer argsMu.Unlock()
	if !contains(gotArgs, clip.VideoURL) || gotArgs[len(gotArgs)-1] != "pipe:1" {
		t.Fatalf("unexpected ffmpeg args %v", gotArgs)
	}
}

func TestThumbnailerSkipsFailedExtraction(t *testing.T) {
	objects := storage.NewMemory("http://cdn.test")
	updater := &thumbnailUpdaterStub{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	thumbs := NewThumbnailer(objects, updater, ThumbnailerConfig{QueueSize: 2, Workers: 1, Timeout: time.Second}, logger)
	thumbs.Run = func(ctx context.Context, binary string, args ...string) ([]byte, error) {
		return nil, errors.New("ffmpeg exploded")
	}

	if err := thumbs.Enqueue(context.Background(), models.Clip{ID: "c", UserID: "u"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := thumbs.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if updater.count() != 0 || objects.Len() != 0 {
		t.Fatalf("expected nothing stored, got %d updates and %d objects", updater.count(), objects.Len())
	}
}

func TestThumbnailerShutdownDrainsQueue(t *testing.T) {
	objects := storage.NewMemory("http://cdn.test")
	updater := &thumbnailUpdaterStub{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	thumbs := NewThumbnailer(objects, updater, ThumbnailerConfig{QueueSize: 4, Workers: 1, Timeout: time.Second}, logger)

	release := make(chan struct{})
	thumbs.Run = func(ctx context.Context, binary string, args ...string) ([]byte, error) {
		<-release
		return []byte("frame"), nil
	}

	for _, id := range []string{"a", "b", "c"} {
		if err := thumbs.Enqueue(context.Background(), models.Clip{ID: id, UserID: "u"}); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := thumbs.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if updater.count() != 3 {
		t.Fatalf("expected 3 thumbnails, got %d", updater.count())
	}
	if err := thumbs.Enqueue(context.Background(), models.Clip{ID: "late"}); !errors.Is(err, ErrThumbnailerClosed) {
		t.Fatalf("expected ErrThumbnailerClosed, got %v", err)
	}
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

func waitForCondition(t *testing.T, timeout time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

package clips

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/gamefolio/backend/internal/models"
	"github.com/gamefolio/backend/internal/storage"
)

// CommandRunner executes external commands and returns stdout bytes.
type CommandRunner func(ctx context.Context, binary string, args ...string) ([]byte, error)

// ThumbnailUpdater records generated thumbnails.
type ThumbnailUpdater interface {
	SetThumbnail(ctx context.Context, id, url, key string) error
}

// ThumbnailerConfig controls the worker pool.
type ThumbnailerConfig struct {
	FFmpegPath string
	Timeout    time.Duration
	QueueSize  int
	Workers    int
}

// Thumbnailer extracts a poster frame from uploaded clips with ffmpeg on a
// bounded pool of workers.
type Thumbnailer struct {
	Binary  string
	Run     CommandRunner
	Timeout time.Duration

	objects ObjectStore
	updater ThumbnailUpdater
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	jobs   chan models.Clip
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// ErrThumbnailerClosed is returned by Enqueue after Shutdown.
var ErrThumbnailerClosed = errors.New("thumbnailer closed")

// NewThumbnailer starts the worker pool.
func NewThumbnailer(objects ObjectStore, updater ThumbnailUpdater, cfg ThumbnailerConfig, logger *slog.Logger) *Thumbnailer {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if strings.TrimSpace(cfg.FFmpegPath) == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Thumbnailer{
		Binary:  cfg.FFmpegPath,
		Run:     defaultCommandRunner,
		Timeout: cfg.Timeout,
		objects: objects,
		updater: updater,
		logger:  logger,
		jobs:    make(chan models.Clip, cfg.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}

	t.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go t.worker()
	}
	return t
}

// Enqueue schedules thumbnail generation for clip.
func (t *Thumbnailer) Enqueue(ctx context.Context, clip models.Clip) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return ErrThumbnailerClosed
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case t.jobs <- clip:
		return nil
	}
}

// Shutdown stops accepting jobs and waits for queued ones to finish. When ctx
// ends first, in-flight ffmpeg processes are cancelled.
func (t *Thumbnailer) Shutdown(ctx context.Context) error {
	t.once.Do(func() {
		t.mu.Lock()
		t.closed = true
		close(t.jobs)
		t.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		t.cancel()
		return ctx.Err()
	case <-done:
		t.cancel()
		return nil
	}
}

func (t *Thumbnailer) worker() {
	defer t.wg.Done()
	for clip := range t.jobs {
		t.handle(clip)
	}
}

func (t *Thumbnailer) handle(clip models.Clip) {
	if t.objects == nil || t.updater == nil {
		t.logger.Error("thumbnailer missing dependencies", "hasStorage", t.objects != nil, "hasUpdater", t.updater != nil)
		return
	}
	if t.Run == nil {
		t.Run = defaultCommandRunner
	}

	ctx, cancel := context.WithTimeout(t.ctx, t.Timeout)
	defer cancel()

	frame, err := t.Run(ctx, t.Binary, frameArgs(clip.VideoURL)...)
	if err != nil {
		t.logger.Error("thumbnail extraction failed", "clipId", clip.ID, "error", err)
		return
	}
	if len(frame) == 0 {
		t.logger.Error("ffmpeg produced an empty frame", "clipId", clip.ID)
		return
	}

	key := ThumbnailKey(clip.UserID, clip.ID)
	location, err := t.objects.Put(ctx, storage.BucketClips, key, bytes.NewReader(frame), "image/jpeg")
	if err != nil {
		t.logger.Error("thumbnail upload failed", "clipId", clip.ID, "error", err)
		return
	}
	if err := t.updater.SetThumbnail(ctx, clip.ID, location, key); err != nil {
		t.logger.Error("record thumbnail failed", "clipId", clip.ID, "error", err)
	}
}

func frameArgs(videoURL string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-ss", "1",
		"-i", videoURL,
		"-frames:v", "1",
		"-vf", "scale=640:-2",
		"-f", "image2", "-c:v", "mjpeg",
		"pipe:1",
	}
}

// ThumbnailKey is the object key of a clip's poster frame.
func ThumbnailKey(userID, clipID string) string {
	return fmt.Sprintf("%s/thumbnails/%s.jpg", userID, clipID)
}

func defaultCommandRunner(ctx context.Context, binary string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	return cmd.Output()
}

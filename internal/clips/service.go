// Package clips implements uploads, feeds and the like, share and comment
// interactions on gameplay clips.
package clips

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gamefolio/backend/internal/apperr"
	"github.com/gamefolio/backend/internal/logging"
	"github.com/gamefolio/backend/internal/models"
	"github.com/gamefolio/backend/internal/repositories"
	"github.com/gamefolio/backend/internal/storage"
)

const (
	maxTitleLength   = 100
	maxGameLength    = 100
	maxCommentLength = 500
	defaultPageSize  = 20
	maxPageSize      = 50
)

// Store captures the clip persistence operations.
type Store interface {
	Create(ctx context.Context, clip models.Clip) error
	FindByID(ctx context.Context, id string) (models.Clip, error)
	ListByUser(ctx context.Context, userID string, includePrivate bool, limit, offset int) ([]models.Clip, error)
	Feed(ctx context.Context, userID string, limit, offset int) ([]models.Clip, error)
	Liked(ctx context.Context, userID string, limit, offset int) ([]models.Clip, error)
	Explore(ctx context.Context, filter repositories.ExploreFilter) ([]models.Clip, error)
	UpdateTitle(ctx context.Context, id, ownerID, title string) error
	Delete(ctx context.Context, id string) (models.Clip, error)
	Like(ctx context.Context, userID, clipID string) (bool, int64, error)
	Share(ctx context.Context, clipID string) (int64, error)
	AddComment(ctx context.Context, comment models.Comment, mentions []string) (models.Comment, error)
	ListComments(ctx context.Context, clipID string) ([]models.Comment, error)
}

// ObjectStore uploads and removes clip objects.
type ObjectStore interface {
	Put(ctx context.Context, bucket storage.Bucket, key string, r io.Reader, contentType string) (string, error)
	Delete(ctx context.Context, bucket storage.Bucket, keys ...string) error
}

// ThumbnailQueue accepts clips that need a generated poster frame.
type ThumbnailQueue interface {
	Enqueue(ctx context.Context, clip models.Clip) error
}

// ActivityRecorder logs clip actions without blocking.
type ActivityRecorder interface {
	Record(ctx context.Context, userID, actionType, resourceType, resourceID string, details map[string]any)
}

// Service implements the clip operations.
type Service struct {
	Store      Store
	Objects    ObjectStore
	Thumbnails ThumbnailQueue
	Activity   ActivityRecorder
	NowFunc    func() time.Time
}

// Upload describes a new clip.
type Upload struct {
	Title       string
	Game        string
	Visibility  string
	Filename    string
	ContentType string
	Video       io.Reader

	Thumbnail            io.Reader
	ThumbnailContentType string
}

// Page bounds a listing.
type Page struct {
	Limit  int
	Offset int
}

func (p Page) normalize() Page {
	if p.Limit <= 0 {
		p.Limit = defaultPageSize
	}
	if p.Limit > maxPageSize {
		p.Limit = maxPageSize
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// LikeResult reports the state after a like.
type LikeResult struct {
	Liked bool  `json:"liked"`
	Likes int64 `json:"likes"`
}

// Create validates and stores an uploaded clip. Without a thumbnail one is
// generated in the background.
func (s *Service) Create(ctx context.Context, userID string, in Upload) (models.Clip, error) {
	ctx, span := logging.StartSpan(ctx, "uploadClip")
	defer span.End()

	in.Title = strings.TrimSpace(in.Title)
	in.Game = strings.TrimSpace(in.Game)
	if in.Visibility == "" {
		in.Visibility = models.VisibilityPublic
	}
	if err := validateUpload(in); err != nil {
		span.Fail(err)
		return models.Clip{}, err
	}
	if s.Objects == nil {
		return models.Clip{}, apperr.UpstreamUnavailable("Storage")
	}

	now := s.now()
	clip := models.Clip{
		ID:         uuid.NewString(),
		UserID:     userID,
		Title:      in.Title,
		Game:       in.Game,
		Visibility: in.Visibility,
		CreatedAt:  now,
	}

	clip.VideoKey = VideoKey(userID, now, in.Filename)
	videoURL, err := s.Objects.Put(ctx, storage.BucketClips, clip.VideoKey, in.Video, in.ContentType)
	if err != nil {
		span.Fail(err)
		return models.Clip{}, apperr.UpstreamUnavailable("Storage").WithCause(err)
	}
	clip.VideoURL = videoURL

	if in.Thumbnail != nil {
		key := ThumbnailKey(userID, clip.ID)
		thumbURL, err := s.Objects.Put(ctx, storage.BucketClips, key, in.Thumbnail, in.ThumbnailContentType)
		if err != nil {
			logging.FromContext(ctx).Warn("thumbnail upload failed", "clipId", clip.ID, "error", err)
		} else {
			clip.ThumbnailKey, clip.ThumbnailURL = key, thumbURL
		}
	}

	if err := s.Store.Create(ctx, clip); err != nil {
		s.removeObjects(ctx, clip)
		span.Fail(err)
		return models.Clip{}, apperr.Internal(fmt.Errorf("create clip: %w", err))
	}

	if clip.ThumbnailURL == "" && s.Thumbnails != nil {
		if err := s.Thumbnails.Enqueue(ctx, clip); err != nil {
			logging.FromContext(ctx).Warn("enqueue thumbnail failed", "clipId", clip.ID, "error", err)
		}
	}

	s.record(ctx, userID, "upload_clip", clip.ID, map[string]any{"title": clip.Title, "game": clip.Game})
	return clip, nil
}

// Get returns a clip. Private clips are visible to their owner only.
func (s *Service) Get(ctx context.Context, id, viewerID string) (models.Clip, error) {
	clip, err := s.find(ctx, id)
	if err != nil {
		return models.Clip{}, err
	}
	if clip.Visibility == models.VisibilityPrivate && clip.UserID != viewerID {
		return models.Clip{}, apperr.NotFound("Clip")
	}
	return clip, nil
}

// ByUser lists the clips of ownerID as seen by viewerID.
func (s *Service) ByUser(ctx context.Context, ownerID, viewerID string, page Page) ([]models.Clip, error) {
	page = page.normalize()
	clips, err := s.Store.ListByUser(ctx, ownerID, ownerID == viewerID, page.Limit, page.Offset)
	return clips, wrapList(err, "list user clips")
}

// Feed lists the caller's clips and the public clips of followed users.
func (s *Service) Feed(ctx context.Context, userID string, page Page) ([]models.Clip, error) {
	page = page.normalize()
	clips, err := s.Store.Feed(ctx, userID, page.Limit, page.Offset)
	return clips, wrapList(err, "list feed")
}

// Liked lists the clips the caller liked.
func (s *Service) Liked(ctx context.Context, userID string, page Page) ([]models.Clip, error) {
	page = page.normalize()
	clips, err := s.Store.Liked(ctx, userID, page.Limit, page.Offset)
	return clips, wrapList(err, "list liked clips")
}

// Explore lists public clips filtered by game and search text.
func (s *Service) Explore(ctx context.Context, game, query string, page Page) ([]models.Clip, error) {
	page = page.normalize()
	clips, err := s.Store.Explore(ctx, repositories.ExploreFilter{
		Game:   strings.TrimSpace(game),
		Query:  query,
		Limit:  page.Limit,
		Offset: page.Offset,
	})
	return clips, wrapList(err, "explore clips")
}

// Rename changes the title of a clip owned by userID.
func (s *Service) Rename(ctx context.Context, id, userID, title string) (models.Clip, error) {
	title = strings.TrimSpace(title)
	if err := validateTitle(title); err != nil {
		return models.Clip{}, err
	}
	if err := s.Store.UpdateTitle(ctx, id, userID, title); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.Clip{}, apperr.NotFound("Clip")
		}
		return models.Clip{}, apperr.Internal(fmt.Errorf("rename clip: %w", err))
	}
	return s.find(ctx, id)
}

// Delete removes a clip and its objects. Only the owner may delete unless
// asAdmin is set.
func (s *Service) Delete(ctx context.Context, id, actorID string, asAdmin bool) error {
	clip, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if !asAdmin && clip.UserID != actorID {
		return apperr.NotFound("Clip")
	}

	deleted, err := s.Store.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return apperr.NotFound("Clip")
		}
		return apperr.Internal(fmt.Errorf("delete clip: %w", err))
	}
	s.removeObjects(ctx, deleted)

	action := "delete_clip"
	if asAdmin && clip.UserID != actorID {
		action = "admin_delete_clip"
	}
	s.record(ctx, actorID, action, id, map[string]any{"owner_id": clip.UserID})
	return nil
}

// Like records the caller's like. Liking twice changes nothing.
func (s *Service) Like(ctx context.Context, userID, clipID string) (LikeResult, error) {
	if _, err := s.Get(ctx, clipID, userID); err != nil {
		return LikeResult{}, err
	}
	_, likes, err := s.Store.Like(ctx, userID, clipID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return LikeResult{}, apperr.NotFound("Clip")
		}
		return LikeResult{}, apperr.Internal(fmt.Errorf("like clip: %w", err))
	}
	return LikeResult{Liked: true, Likes: likes}, nil
}

// Share counts a share of a public clip.
func (s *Service) Share(ctx context.Context, clipID string) (int64, error) {
	if _, err := s.Get(ctx, clipID, ""); err != nil {
		return 0, err
	}
	shares, err := s.Store.Share(ctx, clipID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return 0, apperr.NotFound("Clip")
		}
		return 0, apperr.Internal(fmt.Errorf("share clip: %w", err))
	}
	return shares, nil
}

// Comment appends a comment and notifies mentioned handles.
func (s *Service) Comment(ctx context.Context, userID, clipID, content string) (models.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" || len([]rune(content)) > maxCommentLength {
		return models.Comment{}, apperr.Validation("Invalid comment",
			apperr.FieldError{Field: "content", Message: fmt.Sprintf("Must be 1-%d characters", maxCommentLength)})
	}
	if _, err := s.Get(ctx, clipID, userID); err != nil {
		return models.Comment{}, err
	}

	comment, err := s.Store.AddComment(ctx, models.Comment{
		ID:        uuid.NewString(),
		ClipID:    clipID,
		UserID:    userID,
		Content:   content,
		CreatedAt: s.now(),
	}, Mentions(content))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.Comment{}, apperr.NotFound("Clip")
		}
		return models.Comment{}, apperr.Internal(fmt.Errorf("add comment: %w", err))
	}
	return comment, nil
}

// Comments lists a clip's comments, oldest first.
func (s *Service) Comments(ctx context.Context, clipID, viewerID string) ([]models.Comment, error) {
	if _, err := s.Get(ctx, clipID, viewerID); err != nil {
		return nil, err
	}
	comments, err := s.Store.ListComments(ctx, clipID)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("list comments: %w", err))
	}
	return comments, nil
}

func (s *Service) find(ctx context.Context, id string) (models.Clip, error) {
	if _, err := uuid.Parse(id); err != nil {
		return models.Clip{}, apperr.NotFound("Clip")
	}
	clip, err := s.Store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.Clip{}, apperr.NotFound("Clip")
		}
		return models.Clip{}, apperr.Internal(fmt.Errorf("load clip: %w", err))
	}
	return clip, nil
}

func (s *Service) removeObjects(ctx context.Context, clip models.Clip) {
	if s.Objects == nil {
		return
	}
	if err := s.Objects.Delete(ctx, storage.BucketClips, clip.VideoKey, clip.ThumbnailKey); err != nil {
		logging.FromContext(ctx).Warn("delete clip objects failed", "clipId", clip.ID, "error", err)
	}
}

func (s *Service) record(ctx context.Context, userID, action, clipID string, details map[string]any) {
	if s.Activity != nil {
		s.Activity.Record(ctx, userID, action, "clip", clipID, details)
	}
}

func (s *Service) now() time.Time {
	if s.NowFunc != nil {
		return s.NowFunc()
	}
	return time.Now().UTC()
}

func wrapList(err error, action string) error {
	if err == nil {
		return nil
	}
	return apperr.Internal(fmt.Errorf("%s: %w", action, err))
}

func validateTitle(title string) error {
	if title == "" || len([]rune(title)) > maxTitleLength {
		return apperr.Validation("Invalid title",
			apperr.FieldError{Field: "title", Message: fmt.Sprintf("Must be 1-%d characters", maxTitleLength)})
	}
	return nil
}

func validateUpload(in Upload) error {
	var details []apperr.FieldError
	if err := validateTitle(in.Title); err != nil {
		details = append(details, apperr.As(err).Details...)
	}
	if in.Game == "" || len([]rune(in.Game)) > maxGameLength {
		details = append(details, apperr.FieldError{Field: "game", Message: fmt.Sprintf("Must be 1-%d characters", maxGameLength)})
	}
	if in.Visibility != models.VisibilityPublic && in.Visibility != models.VisibilityPrivate {
		details = append(details, apperr.FieldError{Field: "visibility", Message: "Must be public or private"})
	}
	if in.Video == nil {
		details = append(details, apperr.FieldError{Field: "video", Message: "A video file is required"})
	} else if !strings.HasPrefix(in.ContentType, "video/") {
		details = append(details, apperr.FieldError{Field: "video", Message: "Unsupported content type " + in.ContentType})
	}
	if len(details) > 0 {
		return apperr.Validation("Invalid upload", details...)
	}
	return nil
}

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// VideoKey is the object key of an uploaded video.
func VideoKey(userID string, at time.Time, filename string) string {
	name := unsafeFilename.ReplaceAllString(path.Base(filename), "_")
	name = strings.Trim(name, "._")
	if name == "" {
		name = "clip.mp4"
	}
	return userID + "/" + strconv.FormatInt(at.UnixMilli(), 10) + "-" + name
}

var mentionPattern = regexp.MustCompile(`(?:^|[^A-Za-z0-9_])@([A-Za-z][A-Za-z0-9_]{2,29})`)

// Mentions extracts the distinct @handles of a comment.
func Mentions(content string) []string {
	matches := mentionPattern.FindAllStringSubmatch(content, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		key := strings.ToLower(m[1])
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, m[1])
	}
	return out
}

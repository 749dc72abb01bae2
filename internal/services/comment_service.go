package services

import (
	"context"
	"errors"
	"html"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"gorm.io/gorm"

	"github.com/civicvoice/backend/internal/jobs"
	"github.com/civicvoice/backend/internal/models"
)

var (
	ErrEmptyComment   = errors.New("comment has no text after sanitizing")
	ErrCommentTooLong = errors.New("comment is too long")
)

type CommentService struct {
	db        *gorm.DB
	jobs      *jobs.Dispatcher
	revisions *Revisions
	policy    *bluemonday.Policy
}

func NewCommentService(db *gorm.DB, dispatcher *jobs.Dispatcher, revisions *Revisions) *CommentService {
	return &CommentService{
		db:        db,
		jobs:      dispatcher,
		revisions: revisions,
		policy:    bluemonday.StrictPolicy(),
	}
}

// Sanitize strips all markup from comment text and returns plain text.
// bluemonday escapes entities for HTML output; the API serves JSON, so they
// are decoded again.
func (s *CommentService) Sanitize(text string) string {
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(strings.TrimSpace(text))))
}

func (s *CommentService) Create(ctx context.Context, acct *models.Account, req *models.CreateCommentRequest) (*models.Comment, error) {
	text := s.Sanitize(req.Text)
	if text == "" {
		return nil, ErrEmptyComment
	}
	if utf8.RuneCountInString(text) > models.MaxFreeTextLength {
		return nil, ErrCommentTooLong
	}
	eventID, err := s.checkEvent(ctx, req.EventID)
	if err != nil {
		return nil, err
	}

	c := &models.Comment{
		AccountID: acct.ID,
		EventID:   eventID,
		Kind:      models.CommentWritten,
		Text:      text,
		Status:    models.CommentNew,
	}
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	c.Account = acct

	_ = s.jobs.Dispatch(ctx, JobAdminCommentNotify, CommentPayload{CommentID: c.ID})
	return c, nil
}

// CreateVideo records a pending video comment and returns the object paths
// the client uploads the recording and its poster frame to.
func (s *CommentService) CreateVideo(ctx context.Context, acct *models.Account, req *models.CreateVideoCommentRequest) (*models.VideoUpload, error) {
	eventID, err := s.checkEvent(ctx, req.EventID)
	if err != nil {
		return nil, err
	}

	c := &models.Comment{
		AccountID: acct.ID,
		EventID:   eventID,
		Kind:      models.CommentVideo,
		Status:    models.CommentNew,
	}
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}

	ext := strings.ToLower(path.Ext(strings.TrimSpace(req.Filename)))
	if ext == "" || len(ext) > 5 {
		ext = ".mp4"
	}
	return &models.VideoUpload{
		Comment:     c,
		PendingPath: PendingPrefix + "comments/" + c.ID + "/video" + ext,
		PosterPath:  PendingPrefix + "comments/" + c.ID + "/poster.jpg",
	}, nil
}

func (s *CommentService) checkEvent(ctx context.Context, eventID *string) (*string, error) {
	if eventID == nil || strings.TrimSpace(*eventID) == "" {
		return nil, nil
	}
	id := strings.TrimSpace(*eventID)
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Event{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrNotFound
	}
	return &id, nil
}

func (s *CommentService) Get(ctx context.Context, id string) (*models.Comment, error) {
	var c models.Comment
	if err := s.db.WithContext(ctx).Preload("Account").First(&c, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

// visible reports whether anonymous visitors may see the comment.
func visible(c *models.Comment) bool {
	return c.Status.IsPublic() && (c.Account == nil || !c.Account.IsModerated)
}

func canManage(c *models.Comment, viewer *models.User) bool {
	if viewer == nil {
		return false
	}
	if viewer.IsAdmin {
		return true
	}
	return viewer.Account != nil && viewer.Account.ID == c.AccountID
}

// GetVisible returns the comment if it is public or the viewer owns it or is
// an admin. Hidden comments are reported as not found.
func (s *CommentService) GetVisible(ctx context.Context, id string, viewer *models.User) (*models.Comment, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if visible(c) || canManage(c, viewer) {
		return c, nil
	}
	return nil, ErrNotFound
}

// ListPublic returns approved and featured comments from unmoderated accounts,
// newest first, optionally limited to one event.
func (s *CommentService) ListPublic(ctx context.Context, eventID string) ([]models.PublicComment, error) {
	db := s.db.WithContext(ctx)
	unmoderated := db.Model(&models.Account{}).Select("id").Where("is_moderated = ?", false)

	q := db.Preload("Account").
		Where("status IN ?", []models.CommentStatus{models.CommentApproved, models.CommentFeatured}).
		Where("account_id IN (?)", unmoderated)
	if eventID != "" {
		q = q.Where("event_id = ?", eventID)
	}

	var comments []models.Comment
	if err := q.Order("created_at DESC").Find(&comments).Error; err != nil {
		return nil, err
	}

	out := make([]models.PublicComment, 0, len(comments))
	for i := range comments {
		out = append(out, comments[i].Public())
	}
	return out, nil
}

// List is the admin view of comments.
func (s *CommentService) List(ctx context.Context, f models.CommentFilter) ([]models.Comment, error) {
	q := s.db.WithContext(ctx).Preload("Account")
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.EventID != "" {
		q = q.Where("event_id = ?", f.EventID)
	}
	if f.AccountID != "" {
		q = q.Where("account_id = ?", f.AccountID)
	}

	comments := []models.Comment{}
	if err := q.Order("created_at DESC").Find(&comments).Error; err != nil {
		return nil, err
	}
	return comments, nil
}

func (s *CommentService) Delete(ctx context.Context, id string, viewer *models.User) error {
	c, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !canManage(c, viewer) {
		return ErrForbidden
	}
	if err := s.db.WithContext(ctx).Delete(&models.Comment{}, "id = ?", c.ID).Error; err != nil {
		return err
	}
	if viewer.IsAdmin {
		s.revisions.Record(ctx, KindComment, c.ID, viewer.ID, "deleted", c)
	}
	return nil
}

// Transition moves a comment to a new status if the transition table allows
// it.
func (s *CommentService) Transition(ctx context.Context, actorID, id string, to models.CommentStatus) (*models.Comment, error) {
	if !to.Valid() {
		return nil, ErrInvalidTransition
	}

	var c models.Comment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Account").First(&c, "id = ?", id).Error; err != nil {
			return err
		}
		if !models.CanTransition(c.Status, to) {
			return ErrInvalidTransition
		}
		if err := tx.Model(&c).Update("status", to).Error; err != nil {
			return err
		}
		c.Status = to
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}

	s.revisions.Record(ctx, KindComment, c.ID, actorID, "status "+string(to), &c)
	return &c, nil
}

// AttachVideo stores the promoted recording URL. The comment is ready for
// review once its video arrives, so admins are notified here.
func (s *CommentService) AttachVideo(ctx context.Context, id, url string) (*models.Comment, error) {
	c, err := s.setColumn(ctx, id, "video_url", url)
	if err != nil {
		return nil, err
	}
	_ = s.jobs.Dispatch(ctx, JobAdminCommentNotify, CommentPayload{CommentID: c.ID})
	return c, nil
}

func (s *CommentService) AttachPoster(ctx context.Context, id, url string) (*models.Comment, error) {
	return s.setColumn(ctx, id, "poster_url", url)
}

// Reject hides a comment whose media failed moderation regardless of its
// current status.
func (s *CommentService) Reject(ctx context.Context, id string) (*models.Comment, error) {
	c, err := s.setColumn(ctx, id, "status", models.CommentModerated)
	if err != nil {
		return nil, err
	}
	s.revisions.Record(ctx, KindComment, c.ID, "media-moderation", "media rejected", c)
	return c, nil
}

func (s *CommentService) setColumn(ctx context.Context, id, column string, value interface{}) (*models.Comment, error) {
	res := s.db.WithContext(ctx).Model(&models.Comment{}).Where("id = ?", id).Update(column, value)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, id)
}

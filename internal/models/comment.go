package models

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CommentStatus string

const (
	CommentNew       CommentStatus = "new"
	CommentApproved  CommentStatus = "approved"
	CommentModerated CommentStatus = "moderated"
	CommentFeatured  CommentStatus = "featured"
)

// commentTransitions lists the statuses reachable from each status. Nothing
// returns to new.
var commentTransitions = map[CommentStatus][]CommentStatus{
	CommentNew:       {CommentApproved, CommentModerated},
	CommentApproved:  {CommentModerated, CommentFeatured},
	CommentModerated: {CommentApproved},
	CommentFeatured:  {CommentApproved, CommentModerated},
}

func (s CommentStatus) Valid() bool {
	_, ok := commentTransitions[s]
	return ok
}

// IsPublic reports whether comments in this status appear in public listings.
func (s CommentStatus) IsPublic() bool {
	return s == CommentApproved || s == CommentFeatured
}

// CanTransition reports whether a comment may move from one status to another.
func CanTransition(from, to CommentStatus) bool {
	for _, next := range commentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type CommentKind string

const (
	CommentWritten CommentKind = "written"
	CommentVideo   CommentKind = "video"
)

type Comment struct {
	ID        string        `json:"id" gorm:"primaryKey;size:36"`
	AccountID string        `json:"account_id" gorm:"size:36;index;not null"`
	EventID   *string       `json:"event_id,omitempty" gorm:"size:36;index"`
	Kind      CommentKind   `json:"kind" gorm:"size:10;not null"`
	Text      string        `json:"text" gorm:"size:2000"`
	VideoURL  string        `json:"video_url,omitempty" gorm:"size:1024"`
	PosterURL string        `json:"poster_url,omitempty" gorm:"size:1024"`
	Status    CommentStatus `json:"status" gorm:"size:20;index;not null"`
	CreatedAt time.Time     `json:"created_at" gorm:"index"`
	UpdatedAt time.Time     `json:"updated_at"`

	Account *Account `json:"account,omitempty" gorm:"constraint:OnDelete:CASCADE"`
}

func (c *Comment) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = CommentNew
	}
	if c.Kind == "" {
		c.Kind = CommentWritten
	}
	return nil
}

// PublicComment hides account internals from anonymous listings.
type PublicComment struct {
	ID        string        `json:"id"`
	Author    string        `json:"author"`
	EventID   *string       `json:"event_id,omitempty"`
	Kind      CommentKind   `json:"kind"`
	Text      string        `json:"text,omitempty"`
	VideoURL  string        `json:"video_url,omitempty"`
	PosterURL string        `json:"poster_url,omitempty"`
	Featured  bool          `json:"featured"`
	Status    CommentStatus `json:"-"`
	CreatedAt time.Time     `json:"created_at"`
}

func (c *Comment) Public() PublicComment {
	pub := PublicComment{
		ID:        c.ID,
		EventID:   c.EventID,
		Kind:      c.Kind,
		Text:      c.Text,
		VideoURL:  c.VideoURL,
		PosterURL: c.PosterURL,
		Featured:  c.Status == CommentFeatured,
		Status:    c.Status,
		CreatedAt: c.CreatedAt,
	}
	if c.Account != nil {
		pub.Author = c.Account.Name
	}
	return pub
}

type CreateCommentRequest struct {
	Text    string  `json:"text"`
	EventID *string `json:"event_id"`
}

func (r *CreateCommentRequest) Validate() map[string]string {
	errors := make(map[string]string)

	text := strings.TrimSpace(r.Text)
	if text == "" {
		errors["text"] = "Comment text is required"
	} else if utf8.RuneCountInString(text) > MaxFreeTextLength {
		errors["text"] = "Comment is too long"
	}

	return errors
}

type CreateVideoCommentRequest struct {
	EventID  *string `json:"event_id"`
	Filename string  `json:"filename"`
}

// VideoUpload tells the client where to upload the recording for a pending
// video comment.
type VideoUpload struct {
	Comment     *Comment `json:"comment"`
	PendingPath string   `json:"pending_path"`
	PosterPath  string   `json:"poster_path"`
}

type UpdateCommentStatusRequest struct {
	Status CommentStatus `json:"status"`
}

type CommentFilter struct {
	Status    CommentStatus
	EventID   string
	AccountID string
}

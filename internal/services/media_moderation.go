package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/civicvoice/backend/internal/jobs"
	"github.com/civicvoice/backend/internal/logging"
)

// Upload metadata keys and types.
const (
	MetaCommentID = "commentId"
	MetaType      = "type"
	MetaName      = "name"
	MetaEmail     = "email"

	MediaTypeVideo  = "comment_video"
	MediaTypePoster = "comment_poster"
)

// MediaOutcome describes what HandleFinalize did with an object.
type MediaOutcome string

const (
	MediaSkipped  MediaOutcome = "skipped"
	MediaPromoted MediaOutcome = "promoted"
	MediaRejected MediaOutcome = "rejected"
)

// FinalizeEvent is the subset of a storage object-finalized notification we
// need.
type FinalizeEvent struct {
	Bucket   string            `json:"bucket"`
	Name     string            `json:"name"`
	Metadata map[string]string `json:"metadata"`
}

// cloudEventEnvelope is the structured content mode where the storage payload
// is nested under "data".
type cloudEventEnvelope struct {
	Data FinalizeEvent `json:"data"`
}

// ParseFinalizeEvent accepts both a direct notification body and a
// CloudEvent envelope.
func ParseFinalizeEvent(raw []byte) (FinalizeEvent, error) {
	var ev FinalizeEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return FinalizeEvent{}, err
	}
	if ev.Bucket != "" && ev.Name != "" {
		return ev, nil
	}

	var envelope cloudEventEnvelope
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Data.Bucket != "" && envelope.Data.Name != "" {
		return envelope.Data, nil
	}
	return ev, nil
}

// MediaModerator finishes video comment uploads: recordings are promoted
// as-is, poster frames are checked with SafeSearch first.
type MediaModerator struct {
	media      MediaStore
	classifier ImageClassifier
	comments   *CommentService
	accounts   *AccountService
	users      *UserService
	jobs       *jobs.Dispatcher
}

func NewMediaModerator(media MediaStore, classifier ImageClassifier, comments *CommentService, accounts *AccountService, users *UserService, dispatcher *jobs.Dispatcher) *MediaModerator {
	return &MediaModerator{
		media:      media,
		classifier: classifier,
		comments:   comments,
		accounts:   accounts,
		users:      users,
		jobs:       dispatcher,
	}
}

// HandleFinalize processes one uploaded object. A returned error means the
// event should be redelivered.
func (m *MediaModerator) HandleFinalize(ctx context.Context, ev FinalizeEvent) (MediaOutcome, error) {
	log := logging.Component("media").WithField("bucket", ev.Bucket).WithField("object", ev.Name)

	if ev.Bucket == "" || ev.Name == "" {
		log.Warn("skipping event without bucket or name")
		return MediaSkipped, nil
	}
	if !strings.HasPrefix(ev.Name, PendingPrefix) {
		log.Debug("skipping non-pending object")
		return MediaSkipped, nil
	}
	if m.media == nil {
		return MediaSkipped, fmt.Errorf("media: %w", ErrNotConfigured)
	}

	if ev.Metadata == nil || (ev.Metadata[MetaCommentID] == "" && ev.Metadata[MetaType] == "") {
		md, err := m.media.Metadata(ctx, ev.Bucket, ev.Name)
		if err != nil {
			log.WithError(err).Warn("failed to fetch object metadata")
		} else {
			ev.Metadata = md
		}
	}

	commentID := ev.Metadata[MetaCommentID]
	typ := ev.Metadata[MetaType]
	log = log.WithField("comment_id", commentID).WithField("type", typ)

	if commentID == "" {
		log.Warn("upload has no commentId, leaving it pending")
		return MediaSkipped, nil
	}
	comment, err := m.comments.Get(ctx, commentID)
	if errors.Is(err, ErrNotFound) {
		log.Warn("comment no longer exists, deleting upload")
		return MediaSkipped, m.media.Delete(ctx, ev.Bucket, ev.Name)
	}
	if err != nil {
		return MediaSkipped, err
	}

	m.ensureUploader(ctx, ev.Metadata[MetaEmail], ev.Metadata[MetaName])

	switch typ {
	case MediaTypeVideo:
		url, err := m.media.Promote(ctx, ev.Bucket, ev.Name, ev.Metadata)
		if err != nil {
			return MediaSkipped, err
		}
		if _, err := m.comments.AttachVideo(ctx, comment.ID, url); err != nil {
			return MediaSkipped, err
		}
		log.Info("video promoted")
		return MediaPromoted, nil

	case MediaTypePoster:
		if m.classifier == nil {
			return MediaSkipped, fmt.Errorf("safesearch: %w", ErrNotConfigured)
		}
		ss, err := m.classifier.DetectSafeSearch(ctx, fmt.Sprintf("gs://%s/%s", ev.Bucket, ev.Name))
		if err != nil {
			return MediaSkipped, err
		}
		log.WithField("adult", ss.Adult).WithField("violence", ss.Violence).
			WithField("racy", ss.Racy).WithField("unsafe", ss.IsUnsafe()).Info("safesearch result")

		if ss.IsUnsafe() {
			if err := m.media.Delete(ctx, ev.Bucket, ev.Name); err != nil {
				return MediaSkipped, err
			}
			if _, err := m.comments.Reject(ctx, comment.ID); err != nil {
				return MediaSkipped, err
			}
			strikes, err := m.accounts.AddStrike(ctx, comment.AccountID)
			if err != nil {
				log.WithError(err).Warn("failed to record strike")
			} else {
				log.WithField("strikes", strikes).Info("poster rejected, strike recorded")
			}
			return MediaRejected, nil
		}

		url, err := m.media.Promote(ctx, ev.Bucket, ev.Name, ev.Metadata)
		if err != nil {
			return MediaSkipped, err
		}
		if _, err := m.comments.AttachPoster(ctx, comment.ID, url); err != nil {
			return MediaSkipped, err
		}
		log.Info("poster promoted")
		return MediaPromoted, nil
	}

	log.Warn("unknown upload type, leaving it pending")
	return MediaSkipped, nil
}

// ensureUploader schedules an identity-provider account for an uploader email
// no user has yet.
func (m *MediaModerator) ensureUploader(ctx context.Context, email, name string) {
	email = strings.TrimSpace(email)
	if email == "" || m.users == nil {
		return
	}
	_, err := m.users.FindByEmail(ctx, email)
	if err == nil {
		return
	}
	if !errors.Is(err, ErrNotFound) {
		logging.Component("media").WithError(err).Warn("uploader lookup failed")
		return
	}
	_ = m.jobs.Dispatch(ctx, JobIdentityCreateUser, IdentityCreatePayload{Email: email, Name: strings.TrimSpace(name)})
}

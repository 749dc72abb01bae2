package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/civicvoice/backend/internal/jobs"
	"github.com/civicvoice/backend/internal/logging"
	"github.com/civicvoice/backend/internal/models"
)

type UserService struct {
	db        *gorm.DB
	jobs      *jobs.Dispatcher
	revisions *Revisions
}

func NewUserService(db *gorm.DB, dispatcher *jobs.Dispatcher, revisions *Revisions) *UserService {
	return &UserService{db: db, jobs: dispatcher, revisions: revisions}
}

func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Preload("Account").First(&user, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Preload("Account").First(&user, "username = ?", username).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *UserService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, ErrNotFound
	}
	var user models.User
	err := s.db.WithContext(ctx).Preload("Account").
		Where("LOWER(email) = ?", email).Order("created_at").First(&user).Error
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// LoginFromProfile finds or creates the user for a verified identity-provider
// profile and refreshes the cached profile fields. It reports whether the
// user was created.
func (s *UserService) LoginFromProfile(ctx context.Context, p *models.IdentityProfile) (*models.User, bool, error) {
	var user models.User
	created := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Preload("Account").First(&user, "username = ?", p.Subject).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			user = models.User{Username: p.Subject, IsActive: true}
			applyProfile(&user, p)
			now := time.Now().UTC()
			user.LastLogin = &now
			created = true
			return tx.Create(&user).Error
		}
		if err != nil {
			return err
		}
		applyProfile(&user, p)
		now := time.Now().UTC()
		user.LastLogin = &now
		return tx.Omit(clause.Associations).Save(&user).Error
	})
	if err != nil {
		return nil, false, err
	}

	s.afterSave(ctx, &user, created)
	return &user, created, nil
}

// RefreshProfile overwrites the cached profile fields of an existing user.
func (s *UserService) RefreshProfile(ctx context.Context, id string, p *models.IdentityProfile) (*models.User, error) {
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	applyProfile(user, p)
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Save(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// CreateFromProvider inserts a user for a subject created on the provider side
// (for example by a video upload from an unknown email). Existing subjects are
// returned unchanged.
func (s *UserService) CreateFromProvider(ctx context.Context, subject, name, email string) (*models.User, bool, error) {
	if existing, err := s.GetByUsername(ctx, subject); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	user := &models.User{
		Username: subject,
		Name:     strings.TrimSpace(name),
		Email:    strings.TrimSpace(email),
		IsActive: true,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, false, err
	}
	s.afterSave(ctx, user, true)
	return user, true, nil
}

func (s *UserService) afterSave(ctx context.Context, user *models.User, created bool) {
	if user.Account == nil {
		return
	}
	payload := AccountPayload{AccountID: user.Account.ID}
	if created {
		_ = s.jobs.Dispatch(ctx, JobEmailWelcome, payload)
	}
	_ = s.jobs.Dispatch(ctx, JobMailingListUpsert, payload)
}

func applyProfile(u *models.User, p *models.IdentityProfile) {
	if name := strings.TrimSpace(p.Name); name != "" {
		u.Name = name
	}
	if p.Email != "" {
		u.Email = strings.TrimSpace(p.Email)
	}
	u.Picture = p.Picture
	if p.Raw != nil {
		if raw, err := json.Marshal(p.Raw); err == nil {
			u.Data = raw
		}
	}
}

// Delete removes the user together with its account, comments, RSVPs and
// assignments in one transaction, then schedules the external cleanup.
func (s *UserService) Delete(ctx context.Context, id string) error {
	var user models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Account").First(&user, "id = ?", id).Error; err != nil {
			return err
		}
		if acct := user.Account; acct != nil {
			if err := tx.Where("account_id = ?", acct.ID).Delete(&models.Comment{}).Error; err != nil {
				return err
			}
			if err := tx.Where("account_id = ?", acct.ID).Delete(&models.Attendee{}).Error; err != nil {
				return err
			}
			if err := tx.Where("account_id = ?", acct.ID).Delete(&models.Assignment{}).Error; err != nil {
				return err
			}
			if err := tx.Delete(&models.Account{}, "id = ?", acct.ID).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&models.User{}, "id = ?", user.ID).Error
	})
	if err != nil {
		return translate(err)
	}

	logging.Component("users").WithField("user_id", user.ID).Info("user deleted")

	listEmail := user.Email
	if user.Account != nil && user.Account.Email != "" {
		listEmail = user.Account.Email
	}
	_ = s.jobs.Dispatch(ctx, JobIdentityDelete, IdentityDeletePayload{Subject: user.Username})
	_ = s.jobs.Dispatch(ctx, JobMailingListDelete, EmailAddressPayload{Email: listEmail})
	if user.Email != "" {
		_ = s.jobs.Dispatch(ctx, JobEmailGoodbye, EmailAddressPayload{Email: user.Email, Name: user.Name})
	}
	return nil
}

// DeleteByEmailDomain deletes every user whose email ends with @domain and
// returns how many were removed.
func (s *UserService) DeleteByEmailDomain(ctx context.Context, domain string) (int, error) {
	domain = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(domain), "@"))
	if domain == "" {
		return 0, errors.New("domain is required")
	}

	var ids []string
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("LOWER(email) LIKE ?", "%@"+domain).Pluck("id", &ids).Error
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, id := range ids {
		if err := s.Delete(ctx, id); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

func (s *UserService) AdminUpdate(ctx context.Context, actorID, id string, req *models.UpdateUserRequest) (*models.User, error) {
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.IsAdmin != nil {
		user.IsAdmin = *req.IsAdmin
		updates["is_admin"] = *req.IsAdmin
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
		updates["is_active"] = *req.IsActive
	}
	if len(updates) == 0 {
		return user, nil
	}
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return nil, err
	}

	s.revisions.Record(ctx, KindUser, user.ID, actorID, "admin update", user)
	return user, nil
}

func (s *UserService) PromoteAdmin(ctx context.Context, username string) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("username = ?", username).UpdateColumn("is_admin", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// QueueShutdownNotice schedules the shutdown email for every active user and
// returns how many were queued.
func (s *UserService) QueueShutdownNotice(ctx context.Context) (int, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("email <> ? AND is_active = ?", "", true).
		Order("created_at").Pluck("id", &ids).Error
	if err != nil {
		return 0, err
	}
	for i, id := range ids {
		if err := s.jobs.Dispatch(ctx, JobEmailFinal, UserPayload{UserID: id}); err != nil {
			return i, err
		}
	}
	return len(ids), nil
}

// RequestRefresh schedules a re-read of the user's full provider profile.
func (s *UserService) RequestRefresh(ctx context.Context, id string) error {
	return s.jobs.Dispatch(ctx, JobUserRefresh, UserPayload{UserID: id})
}

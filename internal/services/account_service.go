package services

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/civicvoice/backend/internal/jobs"
	"github.com/civicvoice/backend/internal/logging"
	"github.com/civicvoice/backend/internal/models"
)

type AccountService struct {
	db        *gorm.DB
	jobs      *jobs.Dispatcher
	revisions *Revisions
}

func NewAccountService(db *gorm.DB, dispatcher *jobs.Dispatcher, revisions *Revisions) *AccountService {
	return &AccountService{db: db, jobs: dispatcher, revisions: revisions}
}

func (s *AccountService) Get(ctx context.Context, id string) (*models.Account, error) {
	var acct models.Account
	if err := s.db.WithContext(ctx).First(&acct, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &acct, nil
}

func (s *AccountService) GetByUserID(ctx context.Context, userID string) (*models.Account, error) {
	var acct models.Account
	if err := s.db.WithContext(ctx).First(&acct, "user_id = ?", userID).Error; err != nil {
		return nil, translate(err)
	}
	return &acct, nil
}

// PublicListing returns public, unmoderated accounts newest first together
// with the count of all accounts.
func (s *AccountService) PublicListing(ctx context.Context) (*models.PublicListing, error) {
	db := s.db.WithContext(ctx)

	var accounts []models.Account
	err := db.Where("is_public = ? AND is_moderated = ?", true, false).
		Order("created_at DESC").Find(&accounts).Error
	if err != nil {
		return nil, err
	}

	var total int64
	if err := db.Model(&models.Account{}).Count(&total).Error; err != nil {
		return nil, err
	}

	out := &models.PublicListing{
		Accounts: make([]models.PublicAccount, 0, len(accounts)),
		Total:    total,
	}
	for i := range accounts {
		out.Accounts = append(out.Accounts, accounts[i].Public())
	}
	return out, nil
}

// Update applies the self-service form. req must already be normalized and
// validated.
func (s *AccountService) Update(ctx context.Context, userID string, req *models.UpdateAccountRequest) (*models.Account, error) {
	var (
		acct        models.Account
		user        models.User
		nameChanged bool
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, "id = ?", userID).Error; err != nil {
			return err
		}
		if err := tx.First(&acct, "user_id = ?", userID).Error; err != nil {
			return err
		}

		nameChanged = acct.Name != req.Name
		req.Apply(&acct)
		if err := tx.Save(&acct).Error; err != nil {
			return err
		}
		if nameChanged {
			return tx.Model(&models.User{}).Where("id = ?", userID).UpdateColumn("name", acct.Name).Error
		}
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}

	payload := AccountPayload{AccountID: acct.ID}
	_ = s.jobs.Dispatch(ctx, JobMailingListUpsert, payload)
	_ = s.jobs.Dispatch(ctx, JobEmailAccountUpdate, payload)
	if nameChanged {
		_ = s.jobs.Dispatch(ctx, JobIdentityUpdate, IdentityUpdatePayload{Subject: user.Username, Name: acct.Name})
		_ = s.jobs.Dispatch(ctx, JobVoterMatch, payload)
	}
	return &acct, nil
}

// List returns accounts matching an admin filter, oldest first.
func (s *AccountService) List(ctx context.Context, f models.AccountFilter) ([]models.Account, error) {
	q := s.db.WithContext(ctx).Model(&models.Account{})
	if f.IsPublic != nil {
		q = q.Where("is_public = ?", *f.IsPublic)
	}
	if f.IsVoter != nil {
		q = q.Where("is_voter = ?", *f.IsVoter)
	}
	if f.IsModerated != nil {
		q = q.Where("is_moderated = ?", *f.IsModerated)
	}
	if f.Zone != nil {
		q = q.Where("zone = ?", int(*f.Zone))
	}
	if f.Role != "" {
		q = q.Where("role = ?", string(f.Role))
	}
	if term := strings.ToLower(strings.TrimSpace(f.Query)); term != "" {
		q = q.Where("LOWER(name) LIKE ?", "%"+term+"%")
	}

	accounts := []models.Account{}
	if err := q.Order("created_at").Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

// All returns every account, oldest first.
func (s *AccountService) All(ctx context.Context) ([]models.Account, error) {
	return s.List(ctx, models.AccountFilter{})
}

// SetModerated flips only the moderation flag, bypassing model hooks, and
// schedules the mailing-list sync once the transaction has committed.
func (s *AccountService) SetModerated(ctx context.Context, actorID, id string, moderated bool) (*models.Account, error) {
	var acct models.Account
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&acct, "id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Model(&acct).UpdateColumn("is_moderated", moderated).Error; err != nil {
			return err
		}
		acct.IsModerated = moderated
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}

	action := "unmoderated"
	if moderated {
		action = "moderated"
	}
	logging.Component("accounts").WithField("account_id", id).WithField("actor", actorID).Info(action)
	s.revisions.Record(ctx, KindAccount, acct.ID, actorID, action, &acct)
	_ = s.jobs.Dispatch(ctx, JobMailingListUpsert, AccountPayload{AccountID: acct.ID})
	return &acct, nil
}

// Sync forces a mailing-list upsert.
func (s *AccountService) Sync(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return s.jobs.Dispatch(ctx, JobMailingListUpsert, AccountPayload{AccountID: id})
}

// RequestVoterMatch schedules a voter-roll check.
func (s *AccountService) RequestVoterMatch(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return s.jobs.Dispatch(ctx, JobVoterMatch, AccountPayload{AccountID: id})
}

// QueueOutreach schedules the final-request email for every account with a
// deliverable address and returns how many were queued.
func (s *AccountService) QueueOutreach(ctx context.Context) (int, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&models.Account{}).
		Where("email <> ? AND is_email_invalid = ?", "", false).
		Order("created_at").Pluck("id", &ids).Error
	if err != nil {
		return 0, err
	}
	for i, id := range ids {
		if err := s.jobs.Dispatch(ctx, JobEmailOutreach, AccountPayload{AccountID: id}); err != nil {
			return i, err
		}
	}
	return len(ids), nil
}

// MarkEmailInvalid flags every account with this email and returns how many
// rows changed.
func (s *AccountService) MarkEmailInvalid(ctx context.Context, email string) (int64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Model(&models.Account{}).
		Where("LOWER(email) = ?", email).UpdateColumn("is_email_invalid", true)
	return res.RowsAffected, res.Error
}

// AddStrike records a media moderation rejection and returns the new total.
func (s *AccountService) AddStrike(ctx context.Context, id string) (int, error) {
	db := s.db.WithContext(ctx)
	res := db.Model(&models.Account{}).Where("id = ?", id).
		UpdateColumn("strikes", gorm.Expr("strikes + ?", 1))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, ErrNotFound
	}

	var acct models.Account
	if err := db.Select("strikes").First(&acct, "id = ?", id).Error; err != nil {
		return 0, translate(err)
	}
	return acct.Strikes, nil
}

func (s *AccountService) SetVoter(ctx context.Context, id string, isVoter bool) error {
	res := s.db.WithContext(ctx).Model(&models.Account{}).Where("id = ?", id).UpdateColumn("is_voter", isVoter)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

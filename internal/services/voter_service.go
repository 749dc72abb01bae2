package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/civicvoice/backend/internal/logging"
	"github.com/civicvoice/backend/internal/models"
)

const (
	// PerfectScore is the only score accepted as a voter match.
	PerfectScore = 100

	rollCacheKey = "roll"
)

// VoterService matches account names against the imported voter roll. The
// roll is cached for a fixed TTL.
type VoterService struct {
	db    *gorm.DB
	cache *expirable.LRU[string, []models.Voter]
}

func NewVoterService(db *gorm.DB, ttl time.Duration) *VoterService {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &VoterService{
		db:    db,
		cache: expirable.NewLRU[string, []models.Voter](1, nil, ttl),
	}
}

// Roll returns the voter roll ordered by voter id.
func (s *VoterService) Roll(ctx context.Context) ([]models.Voter, error) {
	if roll, ok := s.cache.Get(rollCacheKey); ok {
		return roll, nil
	}

	var roll []models.Voter
	if err := s.db.WithContext(ctx).Order("voter_id").Find(&roll).Error; err != nil {
		return nil, err
	}
	s.cache.Add(rollCacheKey, roll)
	return roll, nil
}

// Invalidate drops the cached roll.
func (s *VoterService) Invalidate() {
	s.cache.Purge()
}

func normalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// Ratio scores the similarity of two names from 0 to 100 using Levenshtein
// distance over the longer name. Case and whitespace are ignored.
func Ratio(a, b string) int {
	a, b = normalizeName(a), normalizeName(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return PerfectScore
	}
	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}
	dist := levenshtein.ComputeDistance(a, b)
	score := int(math.Round(float64(PerfectScore) * float64(longest-dist) / float64(longest)))
	if score >= PerfectScore {
		// Rounding must never turn a near miss into a match.
		score = PerfectScore - 1
	}
	return score
}

// Match scores name against every roll entry. Ties keep the earliest entry in
// roll order; only a perfect top score is a match.
func (s *VoterService) Match(ctx context.Context, name string) (*models.VoterMatch, error) {
	roll, err := s.Roll(ctx)
	if err != nil {
		return nil, err
	}

	result := &models.VoterMatch{}
	best := -1
	for i := range roll {
		score := Ratio(name, roll[i].Name)
		if score > best {
			best = score
			v := roll[i]
			result.Voter = &v
		}
	}
	if best < 0 {
		return result, nil
	}
	result.Score = best
	result.Matched = best == PerfectScore
	return result, nil
}

// Verify matches the account's name against the roll and stores the result
// in is_voter.
func (s *VoterService) Verify(ctx context.Context, accountID string) (*models.VoterMatch, error) {
	var acct models.Account
	if err := s.db.WithContext(ctx).First(&acct, "id = ?", accountID).Error; err != nil {
		return nil, translate(err)
	}

	match, err := s.Match(ctx, acct.Name)
	if err != nil {
		return nil, err
	}
	err = s.db.WithContext(ctx).Model(&models.Account{}).Where("id = ?", accountID).
		UpdateColumn("is_voter", match.Matched).Error
	if err != nil {
		return nil, err
	}

	logging.Component("voters").WithField("account_id", accountID).
		WithField("score", match.Score).WithField("matched", match.Matched).Info("voter match")
	return match, nil
}

// ParseVoters reads a voter_id,name,zone CSV. A header row is skipped when its
// first cell is "voter_id"; zone may be blank.
func ParseVoters(r io.Reader) ([]models.Voter, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	var (
		voters  []models.Voter
		rowErrs []RowError
		line    int
	)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line++
		if line == 1 && len(row) > 0 && strings.EqualFold(strings.TrimSpace(row[0]), "voter_id") {
			continue
		}

		errs := map[string]string{}
		if len(row) < 2 {
			errs["row"] = fmt.Sprintf("expected voter_id,name,zone, got %d columns", len(row))
			rowErrs = append(rowErrs, RowError{Line: line, Errors: errs})
			continue
		}

		v := models.Voter{
			VoterID: strings.TrimSpace(row[0]),
			Name:    strings.Join(strings.Fields(row[1]), " "),
		}
		if v.VoterID == "" {
			errs["voter_id"] = "Voter id is required"
		}
		if v.Name == "" {
			errs["name"] = "Name is required"
		}
		if len(row) > 2 && strings.TrimSpace(row[2]) != "" {
			n, err := strconv.Atoi(strings.TrimSpace(row[2]))
			if err != nil || !models.Zone(n).Valid() {
				errs["zone"] = "Zone is invalid"
			} else {
				z := models.Zone(n)
				v.Zone = &z
			}
		}

		if len(errs) > 0 {
			rowErrs = append(rowErrs, RowError{Line: line, Errors: errs})
			continue
		}
		voters = append(voters, v)
	}

	if len(rowErrs) > 0 {
		return nil, &ImportError{Rows: rowErrs}
	}
	return voters, nil
}

// Import upserts the roll by voter id and drops the cache.
func (s *VoterService) Import(ctx context.Context, r io.Reader) (int, error) {
	voters, err := ParseVoters(r)
	if err != nil {
		return 0, err
	}
	if len(voters) == 0 {
		return 0, nil
	}

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "voter_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "zone"}),
	}).CreateInBatches(&voters, 500).Error
	if err != nil {
		return 0, err
	}

	s.Invalidate()
	return len(voters), nil
}

package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/civicvoice/backend/internal/models"
)

// NCES export column positions.
const (
	ncesColName      = 0
	ncesColID        = 1
	ncesColPhone     = 7
	ncesColCharter   = 9
	ncesColMagnet    = 10
	ncesColLatitude  = 12
	ncesColLongitude = 13

	ncesYes = "1-Yes"
)

// RowError describes one rejected import row. Line is 1-based and counts the
// header.
type RowError struct {
	Line   int
	Errors map[string]string
}

// ImportError aborts an import; no rows were written.
type ImportError struct {
	Rows []RowError
}

func (e *ImportError) Error() string {
	parts := make([]string, 0, len(e.Rows))
	for _, r := range e.Rows {
		keys := make([]string, 0, len(r.Errors))
		for k := range r.Errors {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		msgs := make([]string, 0, len(keys))
		for _, k := range keys {
			msgs = append(msgs, k+": "+r.Errors[k])
		}
		parts = append(parts, fmt.Sprintf("line %d: %s", r.Line, strings.Join(msgs, "; ")))
	}
	return fmt.Sprintf("import failed with %d invalid rows:\n%s", len(e.Rows), strings.Join(parts, "\n"))
}

type SchoolService struct {
	db *gorm.DB
}

func NewSchoolService(db *gorm.DB) *SchoolService {
	return &SchoolService{db: db}
}

func (s *SchoolService) List(ctx context.Context) ([]models.School, error) {
	schools := []models.School{}
	if err := s.db.WithContext(ctx).Order("name").Find(&schools).Error; err != nil {
		return nil, err
	}
	return schools, nil
}

// ParseNCES reads an NCES public school export. The header row is skipped and
// names are title-cased.
func ParseNCES(r io.Reader) ([]models.School, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	title := cases.Title(language.English)
	var (
		schools []models.School
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
		if line == 1 {
			continue
		}

		errs := map[string]string{}
		if len(row) <= ncesColLongitude {
			errs["row"] = fmt.Sprintf("expected at least %d columns, got %d", ncesColLongitude+1, len(row))
			rowErrs = append(rowErrs, RowError{Line: line, Errors: errs})
			continue
		}

		school := models.School{
			Name:      title.String(strings.TrimSpace(row[ncesColName])),
			Phone:     strings.TrimSpace(row[ncesColPhone]),
			IsCharter: strings.TrimSpace(row[ncesColCharter]) == ncesYes,
			IsMagnet:  strings.TrimSpace(row[ncesColMagnet]) == ncesYes,
		}
		if school.NCESSchoolID, err = strconv.ParseInt(strings.TrimSpace(row[ncesColID]), 10, 64); err != nil {
			errs["nces_school_id"] = "NCES school id must be a number"
		}
		if school.Latitude, err = strconv.ParseFloat(strings.TrimSpace(row[ncesColLatitude]), 64); err != nil {
			errs["latitude"] = "Latitude must be a number"
		}
		if school.Longitude, err = strconv.ParseFloat(strings.TrimSpace(row[ncesColLongitude]), 64); err != nil {
			errs["longitude"] = "Longitude must be a number"
		}
		for k, v := range school.Validate() {
			if _, seen := errs[k]; !seen {
				errs[k] = v
			}
		}

		if len(errs) > 0 {
			rowErrs = append(rowErrs, RowError{Line: line, Errors: errs})
			continue
		}
		schools = append(schools, school)
	}

	if len(rowErrs) > 0 {
		return nil, &ImportError{Rows: rowErrs}
	}
	return schools, nil
}

// ImportNCES parses an NCES export and upserts every row by NCES id. Any
// invalid row aborts the whole import.
func (s *SchoolService) ImportNCES(ctx context.Context, r io.Reader) (int, error) {
	schools, err := ParseNCES(r)
	if err != nil {
		return 0, err
	}
	if len(schools) == 0 {
		return 0, nil
	}

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "nces_school_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "phone", "is_charter", "is_magnet", "latitude", "longitude", "updated_at"}),
	}).CreateInBatches(&schools, 200).Error
	if err != nil {
		return 0, err
	}
	return len(schools), nil
}

type AssignmentService struct {
	db *gorm.DB
}

func NewAssignmentService(db *gorm.DB) *AssignmentService {
	return &AssignmentService{db: db}
}

func (s *AssignmentService) ListForAccount(ctx context.Context, accountID string) ([]models.Assignment, error) {
	out := []models.Assignment{}
	err := s.db.WithContext(ctx).Preload("School").
		Where("account_id = ?", accountID).Order("date").Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Create signs an account up for a school on a date. Signing up twice for the
// same slot returns ErrConflict.
func (s *AssignmentService) Create(ctx context.Context, accountID, schoolID string, date time.Time) (*models.Assignment, error) {
	db := s.db.WithContext(ctx)

	var school models.School
	if err := db.First(&school, "id = ?", schoolID).Error; err != nil {
		return nil, translate(err)
	}

	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	var existing int64
	err := db.Model(&models.Assignment{}).
		Where("account_id = ? AND school_id = ? AND date = ?", accountID, schoolID, day).
		Count(&existing).Error
	if err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, ErrConflict
	}

	a := &models.Assignment{AccountID: accountID, SchoolID: schoolID, Date: day}
	if err := db.Create(a).Error; err != nil {
		return nil, err
	}
	a.School = &school
	return a, nil
}

// Delete removes an assignment owned by accountID.
func (s *AssignmentService) Delete(ctx context.Context, id, accountID string) error {
	db := s.db.WithContext(ctx)

	var a models.Assignment
	if err := db.First(&a, "id = ?", id).Error; err != nil {
		return translate(err)
	}
	if a.AccountID != accountID {
		return ErrForbidden
	}
	return db.Delete(&models.Assignment{}, "id = ?", id).Error
}

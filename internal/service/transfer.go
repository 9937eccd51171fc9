package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"path"
	"strings"

	"github.com/rs/zerolog"
	"github.com/userprod/account-service/internal/apperror"
	"github.com/userprod/account-service/internal/models"
	"github.com/userprod/account-service/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

const (
	// MaxImportBytes caps the size of an uploaded CSV file.
	MaxImportBytes = 5 * 1000 * 1000

	exportBatchSize = 500
)

// ExportHeader is the column order of exported user files.
var ExportHeader = []string{"email", "username", "firstName", "lastName", "role"}

var requiredImportColumns = []string{"email", "username", "firstName", "lastName", "password"}

// ImportResult reports one imported row.
type ImportResult struct {
	Row   int    `json:"row"`
	Email string `json:"email"`
	ID    int64  `json:"id"`
}

// ImportError reports one rejected row.
type ImportError struct {
	Row    int    `json:"row"`
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

// ImportReport summarizes a CSV import.
type ImportReport struct {
	Imported int            `json:"imported"`
	Results  []ImportResult `json:"results"`
	Errors   []ImportError  `json:"errors"`
}

// TransferService imports and exports users as CSV.
type TransferService interface {
	Export(ctx context.Context, w io.Writer) error
	Import(ctx context.Context, upload Upload) (*ImportReport, error)
}

type transferService struct {
	users        repository.UserRepository
	log          zerolog.Logger
	passwordCost int
}

// NewTransferService creates a new TransferService instance.
func NewTransferService(users repository.UserRepository, log zerolog.Logger) TransferService {
	return &transferService{
		users:        users,
		log:          log.With().Str("component", "transfer").Logger(),
		passwordCost: bcrypt.DefaultCost,
	}
}

func (s *transferService) Export(ctx context.Context, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	err := s.users.EachBatch(ctx, exportBatchSize, func(batch []models.User) error {
		for _, u := range batch {
			if err := cw.Write([]string{u.Email, u.Username, u.FirstName, u.LastName, string(u.Role)}); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
	if err != nil {
		return fmt.Errorf("failed to export users: %w", err)
	}

	cw.Flush()
	return cw.Error()
}

func (s *transferService) Import(ctx context.Context, upload Upload) (*ImportReport, error) {
	if upload.Body == nil {
		return nil, apperror.BadRequest("CSV file is required")
	}
	if !strings.EqualFold(path.Ext(upload.FileName), ".csv") {
		return nil, apperror.BadRequest("only .csv files are allowed")
	}
	if upload.Size > MaxImportBytes {
		return nil, apperror.BadRequest("file too large", fmt.Sprintf("maximum size is %d bytes", MaxImportBytes))
	}

	r := csv.NewReader(io.LimitReader(upload.Body, MaxImportBytes+1))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, apperror.BadRequest("CSV header row is required")
		}
		return nil, apperror.BadRequest("invalid CSV header", err.Error())
	}
	columns, err := indexColumns(header)
	if err != nil {
		return nil, err
	}

	report := &ImportReport{Results: []ImportResult{}, Errors: []ImportError{}}
	for row := 1; ; row++ {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				report.Errors = append(report.Errors, ImportError{Row: row, Reason: parseErr.Err.Error()})
				continue
			}
			return nil, apperror.Internal("failed to read CSV", err)
		}

		result, rowErr := s.importRow(ctx, row, columns, record)
		if rowErr != nil {
			report.Errors = append(report.Errors, *rowErr)
			continue
		}
		report.Results = append(report.Results, *result)
	}
	report.Imported = len(report.Results)

	s.log.Info().Str("op", "import").Int("imported", report.Imported).Int("rejected", len(report.Errors)).Msg("csv import finished")
	return report, nil
}

func indexColumns(header []string) (map[string]int, error) {
	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, dup := columns[name]; !dup {
			columns[name] = i
		}
	}

	var missing []any
	for _, name := range requiredImportColumns {
		if _, ok := columns[name]; !ok {
			missing = append(missing, "missing column "+name)
		}
	}
	if len(missing) > 0 {
		return nil, apperror.BadRequest("invalid CSV header", missing...)
	}
	return columns, nil
}

func (s *transferService) importRow(ctx context.Context, row int, columns map[string]int, record []string) (*ImportResult, *ImportError) {
	field := func(name string) string {
		i, ok := columns[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	email := models.NormalizeHandle(field("email"))
	username := models.NormalizeHandle(field("username"))
	firstName := field("firstName")
	lastName := field("lastName")
	password := field("password")

	reject := func(reason string) (*ImportResult, *ImportError) {
		return nil, &ImportError{Row: row, Email: email, Reason: reason}
	}

	if email == "" || username == "" || firstName == "" || lastName == "" || password == "" {
		return reject("missing required details")
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return reject("invalid email")
	}

	role := models.DefaultRole
	if raw := field("role"); raw != "" {
		parsed, ok := models.ParseRole(raw)
		if !ok {
			return reject(fmt.Sprintf("unknown role %q", raw))
		}
		role = parsed
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.passwordCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return reject("password must be at most 72 bytes")
		}
		return reject("failed to hash password")
	}

	user, err := s.users.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		user = &models.User{Email: email}
	case err != nil:
		s.log.Error().Err(err).Str("op", "import").Int("row", row).Msg("failed to look up user")
		return reject("failed to look up user")
	}

	user.Username = username
	user.FirstName = firstName
	user.LastName = lastName
	user.Role = role
	user.PasswordHash = string(hash)

	if user.ID == 0 {
		err = s.users.Create(ctx, user)
	} else {
		err = s.users.Update(ctx, user)
	}
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return reject("username already taken")
		}
		s.log.Error().Err(err).Str("op", "import").Int("row", row).Msg("failed to save user")
		return reject("failed to save user")
	}

	return &ImportResult{Row: row, Email: email, ID: user.ID}, nil
}

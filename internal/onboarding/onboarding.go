package onboarding

import (
	"errors"
	"fmt"

	"log/slog"

	"gorm.io/gorm"

	"attriflow/internal/attribution"
	"attriflow/internal/users"
)

// ErrSetupAlreadyCompleted is returned when setup runs against an instance
// that already has an admin user.
var ErrSetupAlreadyCompleted = errors.New("setup already completed")

// CompletionData holds the data needed to complete the first-run setup
type CompletionData struct {
	Email    string
	Password string
}

// CompletionResult contains the results of completing the first-run setup
type CompletionResult struct {
	UserID    uint
	UserEmail string
}

// IsOnboardingRequired checks if first-run setup is required (no admin users exist)
func IsOnboardingRequired(db *gorm.DB) (bool, error) {
	var count int64
	err := db.Model(&users.User{}).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check user count: %w", err)
	}

	return count == 0, nil
}

// CompleteOnboarding finishes the first-run setup: it creates the admin user
// and registers the standard attribution models so the instance can score
// journeys immediately.
func CompleteOnboarding(db *gorm.DB, logger *slog.Logger, data CompletionData) (*CompletionResult, error) {
	if data.Email == "" {
		return nil, fmt.Errorf("email is required")
	}
	if data.Password == "" {
		return nil, fmt.Errorf("password is required")
	}

	required, err := IsOnboardingRequired(db)
	if err != nil {
		return nil, err
	}
	if !required {
		return nil, ErrSetupAlreadyCompleted
	}

	if err := users.CreateAdminUser(db, data.Email, data.Password); err != nil {
		return nil, fmt.Errorf("failed to create admin user: %w", err)
	}

	if err := attribution.EnsureStandardModels(db, logger); err != nil {
		return nil, fmt.Errorf("failed to register standard models: %w", err)
	}

	user, err := users.FindByEmail(db, data.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to find created user: %w", err)
	}

	return &CompletionResult{
		UserID:    user.ID,
		UserEmail: data.Email,
	}, nil
}

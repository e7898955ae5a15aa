package trust

import (
	"context"
	"errors"

	"github.com/pawlift/pawlift/trust/models"

	"gorm.io/gorm"
)

// Principal is the resolved calling identity: who they are, what they may
// do, and how trusted the platform considers them.
type Principal struct {
	UserID            string
	Role              models.Role
	VerificationLevel models.VerificationStatus
}

// Directory resolves user IDs to principals. Authentication itself is
// external; the engine only reads the result. Lookup returns (nil, nil)
// when the user is unknown.
type Directory interface {
	Lookup(ctx context.Context, userID string) (*Principal, error)
}

// GormDirectory reads the engine-side user_account projection.
type GormDirectory struct {
	db *gorm.DB
}

func NewGormDirectory(db *gorm.DB) *GormDirectory {
	return &GormDirectory{db: db}
}

func (d *GormDirectory) Lookup(ctx context.Context, userID string) (*Principal, error) {
	var acct models.UserAccount
	err := d.db.WithContext(ctx).First(&acct, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return &Principal{
		UserID:            acct.UserID,
		Role:              acct.Role,
		VerificationLevel: acct.VerificationLevel,
	}, nil
}

// MockDirectory is a map-backed Directory for tests.
type MockDirectory struct {
	Users map[string]Principal
}

func NewMockDirectory() *MockDirectory {
	return &MockDirectory{
		Users: make(map[string]Principal),
	}
}

func (d *MockDirectory) Insert(p Principal) {
	d.Users[p.UserID] = p
}

func (d *MockDirectory) Lookup(ctx context.Context, userID string) (*Principal, error) {
	p, ok := d.Users[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

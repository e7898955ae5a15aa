package trust

import (
	"testing"
	"time"

	"github.com/pawlift/pawlift/trust/blobstore"
	"github.com/pawlift/pawlift/trust/countstore"
	"github.com/pawlift/pawlift/trust/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// TestFixture bundles an engine with the handles tests need to seed state
// behind it: the database (cases are created by the external CRUD surface,
// which tests stand in for), the identity directory, and the blob store.
type TestFixture struct {
	Engine    *Engine
	DB        *gorm.DB
	Directory *MockDirectory
	Blobs     *blobstore.MemBlobStore
}

func EngineTestFixture(t *testing.T) *TestFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	if err != nil {
		t.Fatal(err)
	}

	dir := NewMockDirectory()
	blobs := blobstore.NewMemBlobStore()
	eng, err := NewEngine(db, dir, countstore.NewMemCountStore(), blobs, nil)
	if err != nil {
		t.Fatal(err)
	}

	return &TestFixture{
		Engine:    eng,
		DB:        db,
		Directory: dir,
		Blobs:     blobs,
	}
}

// MustCreateCase seeds one case row, as the platform's case CRUD would.
func (f *TestFixture) MustCreateCase(t *testing.T, ownerID string) *models.Case {
	t.Helper()
	c := models.Case{
		OwnerID:            ownerID,
		VerificationStatus: models.VerificationUnverified,
		RiskLevel:          models.RiskLow,
		RiskFlags:          models.RiskFlagList{},
		CreatedAt:          time.Now().UTC(),
	}
	if err := f.DB.Create(&c).Error; err != nil {
		t.Fatal(err)
	}
	return &c
}

// MustInsertUser registers a principal in the mock directory.
func (f *TestFixture) MustInsertUser(t *testing.T, userID string, role models.Role, level models.VerificationStatus) {
	t.Helper()
	f.Directory.Insert(Principal{
		UserID:            userID,
		Role:              role,
		VerificationLevel: level,
	})
}

func (f *TestFixture) ReloadCase(t *testing.T, caseID uint64) *models.Case {
	t.Helper()
	var c models.Case
	if err := f.DB.First(&c, caseID).Error; err != nil {
		t.Fatal(err)
	}
	return &c
}

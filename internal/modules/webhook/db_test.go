package webhook

import (
	"testing"

	"github.com/stayspace/hooks/internal/database"
	"github.com/stayspace/hooks/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a private in-memory database with the full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sql.DB: %v", err)
	}
	// A pooled second connection would see a different, empty :memory: DB.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func mustCreateWebhook(t *testing.T, r *Registry, filters ...string) *models.WebhookModel {
	t.Helper()
	if len(filters) == 0 {
		filters = []string{string(EventReservationCreated)}
	}
	w, err := r.Create(CreateWebhookInput{
		URL:          "https://example.com/hook",
		EventFilters: filters,
		CreatedBy:    "admin-1",
	})
	if err != nil {
		t.Fatalf("create webhook: %v", err)
	}
	return w
}

package metadata

import (
	"context"
	"errors"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// TenantSettings is the row backing a tenant's language-processing
// configuration (§9 Open Questions: TranslationConfig is per-tenant
// state, not a package-level map).
type TenantSettings struct {
	TenantID             string `gorm:"primaryKey;column:tenant_id"`
	TranslationStrategy  string `gorm:"column:translation_strategy"`
	CanonicalLanguage    string `gorm:"column:canonical_language"`
	NormalizationOptions string `gorm:"column:normalization_options"` // JSON-encoded
	UpdatedAt            time.Time
}

func (TenantSettings) TableName() string { return "tenant_settings" }

// SettingsStore is the Postgres-backed side store for tenant-level
// configuration that the graph metadata store has no natural home for.
type SettingsStore struct {
	db *gorm.DB
}

// OpenSettingsStore opens a pooled Postgres connection per the teacher's
// connection-pool settings and migrates the tenant_settings table.
func OpenSettingsStore(dsn string) (*SettingsStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&TenantSettings{}); err != nil {
		return nil, err
	}
	return &SettingsStore{db: db}, nil
}

// Get returns a tenant's settings, or defaults if none have been set yet.
func (s *SettingsStore) Get(ctx context.Context, tenantID string) (TenantSettings, error) {
	var row TenantSettings
	err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return defaultSettings(tenantID), nil
	}
	if err != nil {
		return TenantSettings{}, err
	}
	return row, nil
}

func defaultSettings(tenantID string) TenantSettings {
	return TenantSettings{
		TenantID:            tenantID,
		TranslationStrategy: "canonical",
		CanonicalLanguage:   "en",
	}
}

// Upsert creates or replaces a tenant's settings row.
func (s *SettingsStore) Upsert(ctx context.Context, settings TenantSettings) error {
	settings.UpdatedAt = time.Now()
	return s.db.WithContext(ctx).Save(&settings).Error
}

package models

import "gorm.io/gorm"

// Migrate 批量迁移所有表
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&MapFeature{},
		&FeatureRecord{},
	)
}

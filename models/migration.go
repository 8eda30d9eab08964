package models

import (
	"log"

	"github.com/tsgsafety/osha_tracker/config"
	"gorm.io/gorm"
)

func MigrateTable() {
	if err := AutoMigrate(config.GetDB()); err != nil {
		log.Fatal(err)
	}
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Inspection{}, &Violation{},
		&CronRun{},
	)
}

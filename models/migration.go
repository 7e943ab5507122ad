package models

import (
	"log"

	"bitbucket.org/mmdatafocus/inventory_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&SequenceCounter{},
		&Product{}, &StockBatch{},
		&Document{}, &DocumentLine{},
		&StockEventRecord{},
	)
	if err != nil {
		log.Fatal(err)
	}
}

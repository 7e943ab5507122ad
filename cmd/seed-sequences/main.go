// seed-sequences provisions the document sequence counters of a business
// (quotation, sales_order, proforma, sales_invoice, pick_up_slip), starting at 1.
// Existing counters are left untouched, so it is safe to rerun.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... BUSINESS_ID=... go run ./cmd/seed-sequences
//
// MIGRATE=true runs AutoMigrate first. PRINT_TOKEN=true also prints a bearer token
// for BUSINESS_ID (user id 1) signed with API_SECRET.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/inventory_backend/config"
	"bitbucket.org/mmdatafocus/inventory_backend/models"
	"bitbucket.org/mmdatafocus/inventory_backend/utils"
)

func main() {
	businessID := strings.TrimSpace(os.Getenv("BUSINESS_ID"))
	if businessID == "" {
		fmt.Fprintln(os.Stderr, "BUSINESS_ID is required.")
		os.Exit(2)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	if strings.EqualFold(os.Getenv("MIGRATE"), "true") {
		models.MigrateTable()
	}

	ctx := context.Background()
	created, err := models.CreateDefaultSequenceCounters(db.WithContext(ctx), businessID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to provision sequence counters: %v\n", err)
		os.Exit(1)
	}
	for _, c := range created {
		fmt.Printf("created %s (next %s)\n", c.Name, c.Formatted())
	}
	fmt.Printf("%d of %d counters created for business %s\n", len(created), len(models.AllDocumentTypes), businessID)

	if strings.EqualFold(os.Getenv("PRINT_TOKEN"), "true") {
		token, err := utils.JwtGenerate(1, "Seed", businessID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to sign token: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Bearer " + token)
	}
}

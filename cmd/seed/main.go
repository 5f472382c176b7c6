// seed is a one-shot tool to load baseline reference data: a distributor,
// the standard cylinder types, and an admin operator. Safe to re-run; all
// inserts are upserts.
//
// Usage: ADMIN_PASSWORD=secret go run ./cmd/seed
package main

import (
	"context"
	"log"
	"os"

	"gaslink/internal/db"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	_ = godotenv.Load()

	ctx := context.Background()
	pool, err := db.NewPool(ctx)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer pool.Close()

	adminPassword := os.Getenv("ADMIN_PASSWORD")
	if adminPassword == "" {
		log.Fatal("ADMIN_PASSWORD must be set")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("Failed to hash admin password: %v", err)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		log.Fatalf("Failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	log.Println("Seeding distributor...")
	_, err = tx.Exec(ctx, `
		INSERT INTO distributors (code, name)
		VALUES ('MAIN', 'Main Depot')
		ON CONFLICT (code) DO UPDATE
		  SET name = EXCLUDED.name;
	`)
	if err != nil {
		log.Fatalf("Failed to seed distributor: %v", err)
	}

	log.Println("Seeding cylinder types...")
	_, err = tx.Exec(ctx, `
		INSERT INTO cylinder_types (name, capacity_kg)
		VALUES
		  ('14.2kg Domestic',   14),
		  ('19kg Commercial',   19),
		  ('47.5kg Industrial', 47),
		  ('5kg Portable',      5)
		ON CONFLICT (name) DO UPDATE
		  SET capacity_kg = EXCLUDED.capacity_kg;
	`)
	if err != nil {
		log.Fatalf("Failed to seed cylinder types: %v", err)
	}

	log.Println("Seeding admin operator...")
	_, err = tx.Exec(ctx, `
		INSERT INTO operators (username, password_hash, role)
		VALUES ('admin', $1, 'admin')
		ON CONFLICT (username) DO UPDATE
		  SET password_hash = EXCLUDED.password_hash,
		      role = EXCLUDED.role,
		      is_active = true;
	`, string(hash))
	if err != nil {
		log.Fatalf("Failed to seed admin operator: %v", err)
	}

	if err := tx.Commit(ctx); err != nil {
		log.Fatalf("Failed to commit: %v", err)
	}

	log.Println("Seed data loaded successfully.")
}

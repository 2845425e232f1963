package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/dispatchly/ledger-api/internal/config"
	"github.com/dispatchly/ledger-api/internal/domain/entity"
	"github.com/dispatchly/ledger-api/internal/domain/transaction"
	"github.com/dispatchly/ledger-api/internal/domain/wallet"
	"github.com/dispatchly/ledger-api/internal/pkg/database"
	"github.com/dispatchly/ledger-api/internal/pkg/jwt"
)

// Prints an entity's wallet and latest transactions and mints a short-lived
// access token for calling the API as that entity in development.
func main() {
	entityID := flag.String("id", "", "entity id")
	entityType := flag.String("type", "customer", "customer, vendor or rider")
	email := flag.String("email", "dev@example.com", "email placed in the token")
	limit := flag.Int("n", 10, "transactions to show")
	flag.Parse()

	id, err := uuid.Parse(*entityID)
	if err != nil {
		log.Fatalf("Invalid -id: %v", err)
	}
	typ, err := entity.ParseType(*entityType)
	if err != nil {
		log.Fatalf("Invalid -type: %v", err)
	}
	ref := entity.NewRef(id, typ)

	cfg := config.Load()

	db, err := database.NewPostgres(cfg.DatabaseURL, 2)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.ClosePostgres(db)

	ctx := context.Background()

	w, err := wallet.NewRepository(db).Get(ctx, ref)
	if err != nil {
		log.Fatalf("Failed to load wallet: %v", err)
	}
	fmt.Println("--- Wallet ---")
	fmt.Printf("%s balance=%s pending=%s updated=%s\n",
		ref, w.Balance.StringFixed(2), w.PendingBalance.StringFixed(2), w.UpdatedAt.Format(time.RFC3339))

	items, total, err := transaction.NewRepository(db).ListByEntity(ctx, ref, transaction.ListFilter{Limit: *limit}.Normalize())
	if err != nil {
		log.Fatalf("Failed to list transactions: %v", err)
	}
	fmt.Printf("--- Transactions (%d of %d) ---\n", len(items), total)
	for _, t := range items {
		fmt.Printf("%s  %-20s %-10s %12s  %s\n",
			t.CreatedAt.Format(time.RFC3339), t.Type, t.Status, t.Amount.StringFixed(2), t.Reference)
	}

	token, err := jwt.NewService(cfg.JWTSecret, time.Hour).GenerateAccessToken(id, string(typ), *email)
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}
	fmt.Println("--- Access token (1h) ---")
	fmt.Println(token)
}

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/admin"
	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/config"
	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/database"
	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/identity"
	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/models"
	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/store"
)

// demoPlayers are seeded so two browsers can play against each other locally
var demoPlayers = []models.UserProfile{
	{UserName: "Anna", Email: "anna@example.com", Country: "NL"},
	{UserName: "Bert", Email: "bert@example.com", Country: "BE"},
}

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := database.Connect(ctx, cfg.DatabaseURL, 10*time.Second)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	phone := os.Getenv("ADMIN_PHONE")
	if phone == "" {
		phone = "31600000000"
		log.Printf("Using default admin phone: %s", phone)
	}
	adminToken := os.Getenv("ADMIN_TOKEN")
	if adminToken == "" {
		adminToken = "change-me-in-production"
		log.Printf("WARNING: Using default admin token. Set ADMIN_TOKEN env var in production!")
	}
	var allowedIPs []string
	if ips := os.Getenv("ADMIN_ALLOWED_IPS"); ips != "" {
		allowedIPs = strings.Split(ips, ",")
	}
	roles := []string{admin.RoleSuperAdmin}

	if err := admin.NewAccounts(db).Upsert(ctx, phone, "Admin", adminToken, roles, allowedIPs); err != nil {
		log.Fatalf("Failed to create admin account: %v", err)
	}
	log.Printf("✓ Admin account created/updated: phone=%s roles=%v", phone, roles)

	if cfg.Environment == "production" {
		return
	}

	records := store.NewPostgres(db)
	for _, p := range demoPlayers {
		u := models.User{
			UserID:             strings.ToLower(p.UserName),
			AuthProviderUserID: "demo|" + strings.ToLower(p.UserName),
			Profile:            p,
			CreatedAt:          time.Now().UTC(),
		}
		if err := records.WriteUser(ctx, u); err != nil {
			log.Fatalf("Failed to seed user %s: %v", u.UserID, err)
		}
		token, err := identity.IssueToken(cfg.JWTSecret, u.AuthProviderUserID, 30*24*time.Hour)
		if err != nil {
			log.Fatalf("Failed to issue token for %s: %v", u.UserID, err)
		}
		fmt.Printf("%s\t%s\n", u.UserID, token)
	}
	log.Printf("✓ Seeded %d demo players; bearer tokens printed above", len(demoPlayers))
}

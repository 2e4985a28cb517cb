package main

import (
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/wardenproxy/warden/internal/config"
	"github.com/wardenproxy/warden/internal/database"
	"github.com/wardenproxy/warden/internal/models"
	"github.com/wardenproxy/warden/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("load config:", err)
	}

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatal("open database:", err)
	}

	fmt.Println("✓ Database migrated successfully")

	// Admin account for the management API
	authSvc := services.NewAuthService(db, cfg.JWTSecret)
	if _, err := authSvc.Register("admin@example.com", "change-me-now", "Admin", "admin"); err != nil {
		log.Println("admin user:", err)
	} else {
		fmt.Println("✓ Seeded admin@example.com")
	}

	rules := []models.Rule{
		{UUID: uuid.NewString(), Name: "IP allow/deny lists", Description: "Blocks blacklisted addresses and enforces whitelists", Implementation: "ip-filtering"},
		{UUID: uuid.NewString(), Name: "Bearer token check", Description: "Requires a valid signed token", Implementation: "identity-verification"},
		{UUID: uuid.NewString(), Name: "SQL injection scan", Description: "Rejects requests carrying SQL injection signatures", Implementation: "content-inspection"},
		{UUID: uuid.NewString(), Name: "XSS scrub", Description: "Strips script markup from request values", Implementation: "xss-sanitization"},
		{UUID: uuid.NewString(), Name: "Per-minute rate limit", Description: "Fixed-window admission control", Implementation: "rate-limiting"},
		{UUID: uuid.NewString(), Name: "Response cache", Description: "Replays responses for resource-heavy endpoints", Implementation: "caching"},
	}
	for i := range rules {
		if err := db.Where("name = ?", rules[i].Name).FirstOrCreate(&rules[i]).Error; err != nil {
			log.Fatal("seed rules:", err)
		}
	}
	fmt.Printf("✓ Seeded %d rules\n", len(rules))

	limit := 120
	endpoint := models.Endpoint{
		UUID:        uuid.NewString(),
		Path:        "/api/orders/{id}",
		Method:      "GET",
		Description: "Example order lookup",
		QueryParams: models.StringList{},
		PathParams:  models.StringList{"id"},

		ResourceHeavy:      true,
		RateLimitPerMinute: &limit,
	}
	if err := db.Where("path = ? AND method = ?", endpoint.Path, endpoint.Method).FirstOrCreate(&endpoint).Error; err != nil {
		log.Fatal("seed endpoint:", err)
	}

	group := models.SecurityGroup{
		UUID:        uuid.NewString(),
		Name:        "baseline",
		Description: "Baseline protection for discovered endpoints",
		Rules:       rules,
		Endpoints:   []models.Endpoint{endpoint},
	}
	if err := db.Where("name = ?", group.Name).FirstOrCreate(&group).Error; err != nil {
		log.Fatal("seed group:", err)
	}
	fmt.Println("✓ Seeded baseline security group")
}

package main

import (
	"context"
	"log"
	"os"
	"time"

	"clinic-crm/internal/access"
	"clinic-crm/internal/cache"
	"clinic-crm/internal/config"
	"clinic-crm/internal/db"
	"clinic-crm/internal/users"
)

type seedUser struct {
	Name        string
	Email       string
	PasswordEnv string
	Role        access.Role
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	client, cols, err := db.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		log.Fatal(err)
	}
	defer client.Disconnect(context.Background())

	if err := db.EnsureIndexes(ctx, cols); err != nil {
		log.Fatal(err)
	}

	service := users.NewService(users.NewRepository(cols.Users), cache.NewNoop(), 0, cfg.AdminSetupKey, cfg.Timezone)

	seeds := []seedUser{
		{
			Name:        envOrDefault("SEED_ADMIN_NAME", "Admin"),
			Email:       envOrDefault("SEED_ADMIN_EMAIL", ""),
			PasswordEnv: "SEED_ADMIN_PASSWORD",
			Role:        access.RoleAdmin,
		},
		{
			Name:        envOrDefault("SEED_SALES_NAME", "Demo Salesperson"),
			Email:       envOrDefault("SEED_SALES_EMAIL", ""),
			PasswordEnv: "SEED_SALES_PASSWORD",
			Role:        access.RoleSalesperson,
		},
	}

	for _, seed := range seeds {
		password := os.Getenv(seed.PasswordEnv)
		if seed.Email == "" || password == "" {
			log.Printf("seed %s: email or %s missing, skipping", seed.Role, seed.PasswordEnv)
			continue
		}
		user, created, err := service.Bootstrap(ctx, users.CreateRequest{
			Name:     seed.Name,
			Email:    seed.Email,
			Password: password,
			Role:     string(seed.Role),
		})
		if err != nil {
			log.Fatalf("seed %s error for %s: %v", seed.Role, seed.Email, err)
		}
		if created {
			log.Printf("seed %s: created %s (%s)", seed.Role, user.Email, user.ID)
		} else {
			log.Printf("seed %s: %s already exists", seed.Role, user.Email)
		}
	}

	log.Println("seed completed")
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/oksasatya/go-ddd-auth/config"
	"github.com/oksasatya/go-ddd-auth/internal/application"
	"github.com/oksasatya/go-ddd-auth/internal/container"
	"github.com/oksasatya/go-ddd-auth/internal/domain/apperror"
	"github.com/oksasatya/go-ddd-auth/pkg/helpers"
)

// Seeds a demo account through the regular registration path so the stored
// hash and the published UserRegistered event match real sign-ups.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName+"-seed", cfg.Env, cfg.LogLevel)

	ctx := context.Background()
	c, err := container.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("init: %v", err)
	}
	defer c.Close()

	email := getenv("SEED_EMAIL", "demo@example.com")
	username := getenv("SEED_USERNAME", "demo_user")
	password := getenv("SEED_PASSWORD", "Demo#Passw0rd")

	res, err := c.Auth.Register(ctx, application.RegisterInput{
		Email:           email,
		Username:        username,
		Password:        password,
		ConfirmPassword: password,
	})
	switch {
	case errors.Is(err, apperror.ErrEmailExists), errors.Is(err, apperror.ErrUsernameExists):
		fmt.Printf("demo user already present: email=%s username=%s\n", email, username)
		return
	case err != nil:
		log.Fatalf("failed to seed user: %v", err)
	}
	fmt.Printf("seeded user: id=%s email=%s username=%s password=%s\n", res.ID, res.Email, res.Username, password)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

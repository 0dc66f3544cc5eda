package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/rl1809/event-inventory/internal/auth"
	"github.com/rl1809/event-inventory/internal/config"
)

// Mints a staff bearer token for local use and scripts.
func main() {
	uid := flag.String("uid", "", "staff uid written as the token subject")
	name := flag.String("name", "", "staff display name")
	email := flag.String("email", "", "staff email shown on the profile")
	ttl := flag.Duration("ttl", 12*time.Hour, "token lifetime")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.RequireAuth(); err != nil {
		log.Fatalf("invalid auth config: %v", err)
	}

	authenticator, err := auth.NewAuthenticator(auth.Config{
		Secret:   []byte(cfg.AuthSecret),
		Issuer:   cfg.AuthIssuer,
		Audience: cfg.AuthAudience,
	})
	if err != nil {
		log.Fatalf("failed to create authenticator: %v", err)
	}

	token, err := authenticator.Mint(auth.Staff{UID: *uid, Name: *name, Email: *email}, *ttl)
	if err != nil {
		log.Fatalf("failed to mint token: %v", err)
	}
	fmt.Println(token)
}

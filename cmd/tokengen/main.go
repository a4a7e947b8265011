// Command tokengen mints a development token for a user id using the
// server's JWT_SECRET.
package main

import (
	"flag"
	"fmt"
	"os"

	"devlink-realtime/internal/auth"
	"devlink-realtime/internal/config"
	"devlink-realtime/pkg/logger"
)

func main() {
	userID := flag.String("user", "", "user id to put in the token subject")
	ttl := flag.Duration("ttl", 0, "token lifetime (defaults to JWT_EXPIRES_IN)")
	flag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "usage: tokengen -user <id> [-ttl 24h]")
		os.Exit(2)
	}

	cfg := config.Load()
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	if *ttl > 0 {
		cfg.JWT.ExpiresIn = *ttl
	}

	// Issuing never consults the user store.
	token, err := auth.NewService(nil, cfg).IssueToken(*userID)
	if err != nil {
		logger.Fatal("Failed to issue token: %v", err)
	}
	fmt.Println(token)
}

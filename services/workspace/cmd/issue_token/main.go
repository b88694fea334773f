package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"aiassistant/internal/workspacetoken"
	"aiassistant/services/workspace/internal/config"
)

// issue_token prints a bearer token for a workspace, signed with the same
// secret the workspace service verifies against.
func main() {
	if len(os.Args) < 2 || len(os.Args) > 3 {
		fmt.Fprintf(os.Stderr, "usage: %s <workspace-id> [ttl]\n", os.Args[0])
		os.Exit(2)
	}
	_ = godotenv.Load()

	cfg, err := config.Load(config.Path())
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		fmt.Fprintln(os.Stderr, "WORKSPACE_JWT_SECRET is not set")
		os.Exit(1)
	}

	var ttl time.Duration
	if len(os.Args) == 3 {
		ttl, err = time.ParseDuration(os.Args[2])
		if err != nil || ttl <= 0 {
			fmt.Fprintf(os.Stderr, "invalid ttl %q\n", os.Args[2])
			os.Exit(2)
		}
	}

	codec, err := workspacetoken.New(workspacetoken.Config{
		Secret:   cfg.JWTSecret,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      ttl,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init codec: %v\n", err)
		os.Exit(1)
	}
	token, err := codec.Sign(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}

// Command waitforstore blocks until the configured shared credential store
// answers, for use before integration tests or the first console login.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"time"

	_ "github.com/lib/pq"

	"workflowhub/console/internal/config"
	"workflowhub/console/internal/credstore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(2)
	}

	timeout := 60 * time.Second
	if raw := os.Getenv("WAIT_FOR_STORE_TIMEOUT_SEC"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs <= 0 {
			fmt.Fprintf(os.Stderr, "invalid WAIT_FOR_STORE_TIMEOUT_SEC: %q\n", raw)
			os.Exit(2)
		}
		timeout = time.Duration(secs) * time.Second
	}

	var name string
	var ping func(ctx context.Context) error
	switch {
	case cfg.DatabaseURL != "":
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open postgres: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()
		name, ping = "postgres", db.PingContext
	case cfg.RedisURL != "":
		name = "redis"
		ping = func(ctx context.Context) error {
			store, err := credstore.NewRedisStore(ctx, cfg.RedisURL)
			if err != nil {
				return err
			}
			return store.Close()
		}
	default:
		fmt.Printf("file store at %s, nothing to wait for\n", cfg.Session.CredentialFile)
		return
	}

	deadline := time.Now().Add(timeout)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := ping(ctx)
		cancel()
		if err == nil {
			fmt.Printf("%s ready\n", name)
			return
		}
		if time.Now().After(deadline) {
			fmt.Fprintf(os.Stderr, "%s not ready within %s: %v\n", name, timeout, err)
			os.Exit(1)
		}
		time.Sleep(2 * time.Second)
	}
}

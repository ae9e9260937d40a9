package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"assetgen/internal/db"
)

func main() {
	_ = godotenv.Load()

	command := "up"
	if args := os.Args[1:]; len(args) > 0 {
		command = strings.ToLower(args[0])
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	conn, err := db.Open(dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	switch command {
	case "up":
		err = db.Up(conn)
	case "down":
		err = db.Down(conn)
	case "status":
		err = db.Status(conn)
	default:
		fmt.Fprintln(os.Stderr, "usage: migrate [up|down|status]")
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate %s: %v\n", command, err)
		os.Exit(1)
	}
}

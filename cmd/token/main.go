package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

func main() {
	secret := flag.String("secret", "", "HMAC signing secret (defaults to ACCESS_TOKEN_SECRET)")
	userID := flag.String("user", "", "User UUID (random if omitted)")
	name := flag.String("name", "Dev User", "Display name claim")
	role := flag.String("role", "hq", "Role claim: hq, boss, shaper or admin")
	ttl := flag.Duration("ttl", 24*time.Hour, "Token lifetime")
	flag.Parse()

	if *secret == "" {
		*secret = os.Getenv("ACCESS_TOKEN_SECRET")
	}
	if *secret == "" {
		fmt.Fprintln(os.Stderr, "Usage: token -secret <hmac-secret> [-user <uuid>] [-name <name>] [-role <role>] [-ttl <duration>]")
		fmt.Fprintln(os.Stderr, "  Reads the secret from ACCESS_TOKEN_SECRET if -secret not specified")
		os.Exit(1)
	}

	id := *userID
	if id == "" {
		id = uuid.New().String()
	} else if _, err := uuid.Parse(id); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid user ID: %v\n", err)
		os.Exit(1)
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  id,
		"name": *name,
		"role": *role,
		"iat":  now.Unix(),
		"exp":  now.Add(*ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(*secret))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Signing failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("User-ID: %s\n", id)
	fmt.Printf("Authorization: Bearer %s\n", signed)
}

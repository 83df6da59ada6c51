// genjwt prints a signed access token for local testing.
//
//	JWT_SECRET=dev-secret go run ./cmd/dev/genjwt -type admin
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func main() {
	userID := flag.String("user", "", "user id (random when empty)")
	userType := flag.String("type", "viewer", "user_type claim")
	email := flag.String("email", "viewer@example.com", "email claim")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "dev-secret-123"
	}
	if *userID == "" {
		*userID = uuid.New().String()
	} else if _, err := uuid.Parse(*userID); err != nil {
		fmt.Fprintln(os.Stderr, "invalid -user:", err)
		os.Exit(2)
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"user_id":   *userID,
		"email":     *email,
		"user_type": *userType,
		"exp":       now.Add(*ttl).Unix(),
		"iat":       now.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		panic(err)
	}
	fmt.Println(signed)
}

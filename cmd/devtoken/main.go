// Command devtoken mints a signed bearer token for local testing.
//
//	JWT_SECRET=dev devtoken -sub cust-1 -role user
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joao-fontenele/foodorder/internal/auth"
	"github.com/joao-fontenele/foodorder/internal/domain"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	subject := flag.String("sub", "", "subject id (customer, restaurant or partner id)")
	role := flag.String("role", string(domain.RoleCustomer), "role: user, restaurant, delivery or admin")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		logger.Error("JWT_SECRET environment variable is required")
		os.Exit(1)
	}

	actor := domain.Actor{ID: *subject, Role: domain.Role(*role)}
	if actor.ID == "" || !actor.Role.Valid() {
		logger.Error("a subject and a valid role are required", "sub", *subject, "role", *role)
		flag.Usage()
		os.Exit(2)
	}

	token, err := auth.NewIssuer(secret, *ttl).Issue(actor)
	if err != nil {
		logger.Error("failed to sign token", "error", err)
		os.Exit(1)
	}

	fmt.Println(token)
}

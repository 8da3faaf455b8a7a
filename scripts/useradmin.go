// Command useradmin manages Nodegate user accounts from the shell.
// It talks straight to Postgres, bypassing the HTTP API.
//
// Usage:
//
//	useradmin -database-url ... create -email a@b.c -password secret
//	useradmin -database-url ... show -email a@b.c
//	useradmin -database-url ... delete -email a@b.c
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/nodegate/nodegate/internal/auth"
	"github.com/nodegate/nodegate/internal/model"
	"github.com/nodegate/nodegate/internal/repository"
)

type userOutput struct {
	ID        string                  `json:"id"`
	Email     string                  `json:"email"`
	CreatedAt time.Time               `json:"created_at"`
	Keys      []model.KeyWithRequests `json:"keys,omitempty"`
}

func main() {
	databaseURL := flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
	flag.Parse()

	if *databaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: useradmin [flags] create|show|delete [subcommand flags]")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := repository.New(ctx, *databaseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect database:", err)
		os.Exit(1)
	}
	defer repo.Close()

	switch args[0] {
	case "create":
		err = createUser(ctx, repo, args[1:])
	case "show":
		err = showUser(ctx, repo, args[1:])
	case "delete":
		err = deleteUser(ctx, repo, args[1:])
	default:
		err = fmt.Errorf("unknown subcommand %q", args[0])
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func createUser(ctx context.Context, repo *repository.Repository, args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	email := fs.String("email", "", "User email")
	password := fs.String("password", "", "User password")
	fs.Parse(args)

	// Same stored form as the HTTP register path, so accounts created
	// here can log in over the API.
	addr := auth.NormalizeEmail(*email)
	if addr == "" || *password == "" {
		return fmt.Errorf("email and password are required")
	}

	salt, err := auth.GenerateSalt()
	if err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}
	hash, err := auth.HashPassword(*password, salt)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		ID:           ulid.Make().String(),
		Email:        addr,
		PasswordHash: hash,
		Salt:         auth.EncodeSalt(salt),
		CreatedAt:    time.Now().UTC(),
	}

	if err := repo.CreateUser(ctx, user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	fmt.Println(user.ID)
	return nil
}

func showUser(ctx context.Context, repo *repository.Repository, args []string) error {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	email := fs.String("email", "", "User email")
	fs.Parse(args)

	addr := auth.NormalizeEmail(*email)
	if addr == "" {
		return fmt.Errorf("email is required")
	}

	user, err := repo.GetUserByEmail(ctx, addr)
	if err != nil {
		return fmt.Errorf("look up user: %w", err)
	}

	keys, err := repo.ListKeysWithRequests(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("list keys: %w", err)
	}

	out := userOutput{
		ID:        user.ID,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
		Keys:      keys,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func deleteUser(ctx context.Context, repo *repository.Repository, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	email := fs.String("email", "", "User email")
	fs.Parse(args)

	addr := auth.NormalizeEmail(*email)
	if addr == "" {
		return fmt.Errorf("email is required")
	}

	if err := repo.DeleteUser(ctx, addr); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	fmt.Println("deleted", addr)
	return nil
}

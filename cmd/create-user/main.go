package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/stemsi/webexam/internal/config"
	"github.com/stemsi/webexam/internal/database"
	"github.com/stemsi/webexam/internal/logger"
	"github.com/stemsi/webexam/internal/model"
	"github.com/stemsi/webexam/internal/repository"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

// create-user provisions an account of any role, including ADMIN, which
// cannot be obtained through self-registration.
func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	users := repository.NewUserRepository(repository.NewDB(pool, cfg.DBRetryAttempts, cfg.DBRetryBackoff, log))

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("=== Create New User ===")

	firstName := prompt(reader, "Enter First Name: ")
	lastName := prompt(reader, "Enter Last Name: ")
	if firstName == "" || lastName == "" {
		fmt.Println("Error: First and last name are required")
		return
	}

	email := strings.ToLower(prompt(reader, "Enter Email: "))
	if email == "" {
		fmt.Println("Error: Email is required")
		return
	}

	fmt.Print("Enter Password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		fmt.Println("\nError reading password")
		return
	}
	password := string(bytePassword)
	fmt.Println()
	if len(password) < 6 || len(password) > 72 {
		fmt.Println("Error: Password must be between 6 and 72 characters")
		return
	}

	role := model.UserRole(strings.ToUpper(prompt(reader, "Enter Role [STUDENT|TEACHER|ADMIN] (default ADMIN): ")))
	if role == "" {
		role = model.RoleAdmin
	}
	switch role {
	case model.RoleStudent, model.RoleTeacher, model.RoleAdmin:
	default:
		fmt.Printf("Error: Unknown role %q\n", role)
		return
	}

	// ─── Logic ─────────────────────────────────────────────────────────
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), cfg.BcryptCost)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to hash password")
	}

	u := &model.User{
		FirstName:    firstName,
		LastName:     lastName,
		Email:        email,
		PasswordHash: string(hashedPassword),
		Role:         role,
		IsActive:     true,
	}
	if err := users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			fmt.Printf("Error: A user with email %s already exists\n", email)
			return
		}
		log.Fatal().Err(err).Msg("Failed to create user")
	}

	fmt.Printf("\nSuccess! %s %s (%s, %s) created with ID: %d\n", u.FirstName, u.LastName, u.Email, u.Role, u.ID)
}

func prompt(r *bufio.Reader, label string) string {
	fmt.Print(label)
	s, _ := r.ReadString('\n')
	return strings.TrimSpace(s)
}

package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/facemark/facemark/internal/config"
	"github.com/facemark/facemark/internal/database"
	"github.com/facemark/facemark/internal/database/postgres"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage API accounts",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an API account",
	RunE:  runUserCreate,
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userCreateCmd)

	userCreateCmd.Flags().String("username", "", "Login name (required)")
	userCreateCmd.Flags().String("password", "", "Password (required)")
	userCreateCmd.Flags().String("role", "teacher", "Role: admin, teacher or student")
	userCreateCmd.Flags().String("full-name", "", "Display name")
	userCreateCmd.Flags().String("email", "", "Email address")
	userCreateCmd.Flags().Int("student-id", 0, "Link the account to a student record")
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	username := mustGetString(cmd, "username")
	password := mustGetString(cmd, "password")
	if username == "" || password == "" {
		return errors.New("--username and --password are required")
	}

	role := database.Role(mustGetString(cmd, "role"))
	switch role {
	case database.RoleAdmin, database.RoleTeacher, database.RoleStudent:
	default:
		return fmt.Errorf("invalid role %q", role)
	}

	cfg := config.Load()
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	pool, err := postgres.NewPool(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer pool.Close()

	ctx := context.Background()
	if err := pool.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	user := &database.User{
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
		FullName:     mustGetString(cmd, "full-name"),
		Email:        mustGetString(cmd, "email"),
	}
	if studentID := mustGetInt(cmd, "student-id"); studentID > 0 {
		id := int64(studentID)
		user.StudentID = &id
	}

	id, err := postgres.NewUserRepository(pool).CreateUser(ctx, user)
	if err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return fmt.Errorf("username %q already exists", username)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	fmt.Printf("Created %s account %q (id %d)\n", role, username, id)
	return nil
}

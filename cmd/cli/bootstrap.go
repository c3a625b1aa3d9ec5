package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/aryan0dhankhar/taskdesk/internal/domain"
	"github.com/aryan0dhankhar/taskdesk/internal/repository"
	"github.com/aryan0dhankhar/taskdesk/internal/security/auth"
	"github.com/aryan0dhankhar/taskdesk/pkg/config"
	"github.com/aryan0dhankhar/taskdesk/pkg/database"
)

const (
	roleSuperadmin = domain.RoleSuperadmin
	roleAdmin      = domain.RoleAdmin
	roleUser       = domain.RoleUser
)

var usernamePattern = regexp.MustCompile(`^[\w.@+-]{1,150}$`)

// openStore connects to the configured database. Bootstrap commands run
// without an actor, so they bypass the service layer.
func openStore(ctx context.Context) (*database.ConnectionPool, *repository.PostgresUserRepository, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

	pool, err := database.NewConnectionPool(ctx, &database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Name,
		SSLMode:  cfg.Database.SSLMode,
	}, quiet)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return pool, repository.NewPostgresUserRepository(pool.GetDB(), quiet), nil
}

// newAccount validates bootstrap input and builds the account to insert
func newAccount(username, password string, role domain.Role) (*domain.User, error) {
	username = strings.TrimSpace(username)
	if !usernamePattern.MatchString(username) {
		return nil, errors.New("username must be 1-150 characters of letters, digits and @/./+/-/_")
	}
	if err := auth.ValidatePassword(password); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	return &domain.User{Username: username, PasswordHash: hash, Role: role}, nil
}

func createAccount(name string, role domain.Role, args []string) error {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	username := fs.String("username", "", "username")
	password := fs.String("password", "", "password (or TASKDESK_PASSWORD)")
	var admin *string
	if role == roleUser {
		admin = fs.String("admin", "", "username of the managing admin (optional)")
	}
	fs.Parse(args)

	if *password == "" {
		*password = os.Getenv("TASKDESK_PASSWORD")
	}
	if *username == "" || *password == "" {
		fs.PrintDefaults()
		return errors.New("username and password are required")
	}

	account, err := newAccount(*username, *password, role)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pool, users, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	if admin != nil && *admin != "" {
		a, err := users.GetByUsername(ctx, *admin)
		if err != nil {
			return fmt.Errorf("admin %q: %w", *admin, err)
		}
		account.AdminID = &a.ID
	}

	err = users.Create(ctx, account, func(u *domain.User, lookup domain.UserLookup) error {
		if u.AdminID == nil {
			return nil
		}
		a, err := lookup(*u.AdminID)
		if err != nil {
			return err
		}
		if a == nil || a.Role != roleAdmin {
			return fmt.Errorf("%q is not an admin", *admin)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return fmt.Errorf("username %q is already taken", account.Username)
		}
		return err
	}
	fmt.Printf("✓ Created %s %s (id %d)\n", account.Role, account.Username, account.ID)
	return nil
}

func listUsers(args []string) error {
	fs := flag.NewFlagSet("users", flag.ExitOnError)
	roleFlag := fs.String("role", "", "only list this role")
	fs.Parse(args)

	var filter domain.UserFilter
	if *roleFlag != "" {
		role := domain.Role(*roleFlag)
		if !role.Valid() {
			return fmt.Errorf("unknown role %q", *roleFlag)
		}
		filter.Role = &role
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pool, users, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	list, err := users.List(ctx, filter)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME\tROLE\tADMIN")
	for _, u := range list {
		admin := "-"
		if u.AdminID != nil {
			admin = fmt.Sprint(*u.AdminID)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", u.ID, u.Username, u.Role, admin)
	}
	return w.Flush()
}

func migrate(args []string) error {
	_ = args
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pool, _, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()
	fmt.Println("✓ Schema applied")
	return nil
}

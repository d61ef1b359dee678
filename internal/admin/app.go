// Package admin implements tokengate-admin, the operator tool for the
// signing secret and the user directory.
package admin

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/tokengate/internal/common"
	"github.com/dmitrijs2005/tokengate/internal/flagx"
	"github.com/dmitrijs2005/tokengate/internal/logging"
	"github.com/dmitrijs2005/tokengate/internal/server"
	"github.com/dmitrijs2005/tokengate/internal/server/config"
	"github.com/dmitrijs2005/tokengate/internal/server/directory"
	"github.com/dmitrijs2005/tokengate/internal/server/models"
	"github.com/dmitrijs2005/tokengate/internal/server/services"
)

const usage = `usage: tokengate-admin <command> [flags]

commands:
  show           print the signing secret and the mobile .env lines
  rotate [-yes]  replace the secret; every issued token stops working
  hash-password  read a password and print its bcrypt hash
  create-user    -username NAME -email ADDR [-display-name NAME] [-roles a,b]
  migrate        apply database migrations

Server flags (-c, -backend, -d, -redis, -s3-bucket, ...) are accepted after the command.
`

var (
	errUsage               = errors.New("invalid usage")
	errDatabaseUnavailable = errors.New("database unavailable")
)

type App struct {
	config *config.Config
	logger logging.Logger
	in     *bufio.Reader
	out    io.Writer
	open   func(ctx context.Context, cfg *config.Config, logger logging.Logger, migrate bool) (*server.Resources, error)
}

func NewApp(cfg *config.Config, in io.Reader, out io.Writer, logger logging.Logger) *App {
	return &App{
		config: cfg,
		logger: logger,
		in:     bufio.NewReader(in),
		out:    out,
		open:   server.OpenResources,
	}
}

// Run executes the command named by args[0]; the remaining args belong to it.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(a.out, usage)
		return errUsage
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "show":
		return a.show(ctx)
	case "rotate":
		return a.rotate(ctx, rest)
	case "hash-password":
		return a.hashPassword()
	case "create-user":
		return a.createUser(ctx, rest)
	case "migrate":
		return a.migrate(ctx)
	case "help", "-h", "-help", "--help":
		fmt.Fprint(a.out, usage)
		return nil
	default:
		fmt.Fprint(a.out, usage)
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func (a *App) withResources(ctx context.Context, migrate bool, fn func(*server.Resources) error) error {
	res, err := a.open(ctx, a.config, a.logger, migrate)
	if err != nil {
		return err
	}
	defer func() {
		if err := res.Close(); err != nil {
			a.logger.Warn(ctx, "closing resources", "error", err)
		}
	}()
	return fn(res)
}

func (a *App) printSecret(secret []byte) {
	fmt.Fprintf(a.out, "Secret key:\n%s\n\nMobile app .env:\n%s", secret, services.AppConfig(secret, a.config.PublicBaseURL))
}

func (a *App) show(ctx context.Context) error {
	return a.withResources(ctx, false, func(res *server.Resources) error {
		secret, err := res.Secrets.Get(ctx)
		if err != nil {
			return err
		}
		a.printSecret(secret)
		return nil
	})
}

func (a *App) rotate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("rotate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	if err := fs.Parse(flagx.FilterArgs(args, []string{"-yes"})); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	if !*yes {
		if !isTerminal() {
			return fmt.Errorf("%w: refusing to rotate without a terminal, pass -yes", common.ErrConfirmationRequired)
		}
		answer, err := GetSimpleText(a.in,
			"Rotating the secret logs out every mobile user and the app must be updated. Type yes to continue", a.out)
		if err != nil {
			return err
		}
		if answer != "yes" {
			return common.ErrConfirmationRequired
		}
	}

	return a.withResources(ctx, false, func(res *server.Resources) error {
		secret, err := res.Secrets.Rotate(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Secret rotated. Previously issued tokens are no longer valid.")
		fmt.Fprintln(a.out)
		a.printSecret(secret)
		return nil
	})
}

func (a *App) readNewPassword() (string, error) {
	pw, err := GetPassword(a.in, a.out)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(pw)
	return directory.HashPassword(string(pw))
}

func (a *App) hashPassword() error {
	hash, err := a.readNewPassword()
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, hash)
	return nil
}

func (a *App) createUser(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	username := fs.String("username", "", "login name")
	email := fs.String("email", "", "email address")
	displayName := fs.String("display-name", "", "display name")
	roles := fs.String("roles", "customer", "comma separated roles")
	if err := fs.Parse(flagx.FilterArgs(args, []string{"-username", "-email", "-display-name", "-roles"})); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if *username == "" || *email == "" {
		return fmt.Errorf("%w: -username and -email are required", errUsage)
	}
	if *displayName == "" {
		*displayName = *username
	}
	if a.config.DatabaseDSN == "" {
		return fmt.Errorf("%w: create-user needs a database dsn", errUsage)
	}

	hash, err := a.readNewPassword()
	if err != nil {
		return err
	}

	return a.withResources(ctx, false, func(res *server.Resources) error {
		if res.DB == nil {
			return errDatabaseUnavailable
		}
		u, err := res.Users.Create(ctx, &models.User{
			Identity: models.Identity{
				Username:    *username,
				Email:       *email,
				DisplayName: *displayName,
				Roles:       splitRoles(*roles),
			},
			PasswordHash: hash,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Created user %d (%s)\n", u.ID, u.Username)
		return nil
	})
}

func (a *App) migrate(ctx context.Context) error {
	if a.config.DatabaseDSN == "" {
		return fmt.Errorf("%w: migrate needs a database dsn", errUsage)
	}
	return a.withResources(ctx, true, func(res *server.Resources) error {
		if res.DB == nil {
			return errDatabaseUnavailable
		}
		fmt.Fprintln(a.out, "Migrations applied.")
		return nil
	})
}

func splitRoles(s string) []string {
	roles := []string{}
	for _, r := range strings.Split(s, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roles = append(roles, r)
		}
	}
	return roles
}

// Main is the entry point used by cmd/tokengate-admin.
func Main(ctx context.Context) int {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	logger := logging.NewJSONLogger(os.Stderr, cfg.LogLevel)
	app := NewApp(cfg, os.Stdin, os.Stdout, logger)

	if err := app.Run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if errors.Is(err, errUsage) {
			return 2
		}
		return 1
	}
	return 0
}

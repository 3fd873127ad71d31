// Command client is a small terminal consumer of the user-portal API, mostly
// useful for poking at a running server: register, login, me, users, logout.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go-user-portal/pkg/client"
)

func main() {
	baseURL := flag.String("url", envOr("PORTAL_URL", "http://localhost:8080"), "server base URL")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	api := client.New(*baseURL,
		client.WithCredentialsFile(filepath.Join(home, ".user-portal", "credentials.json")))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := run(ctx, api, args[0], args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, api *client.Client, command string, args []string) error {
	switch command {
	case "register":
		fs := flag.NewFlagSet("register", flag.ExitOnError)
		name := fs.String("name", "", "display name")
		email := fs.String("email", "", "email address")
		password := fs.String("password", "", "password")
		role := fs.String("role", "", "requested role (optional)")
		remember := fs.Bool("remember", false, "persist the session across runs")
		_ = fs.Parse(args)

		user, err := api.Register(ctx, client.RegisterParams{
			Name:     *name,
			Email:    *email,
			Password: *password,
			Role:     *role,
		}, *remember)
		if err != nil {
			return err
		}
		fmt.Printf("registered %s (%s) as %s\n", user.Name, user.Email, user.Role)
		return nil

	case "login":
		fs := flag.NewFlagSet("login", flag.ExitOnError)
		email := fs.String("email", "", "email address")
		password := fs.String("password", "", "password")
		remember := fs.Bool("remember", false, "persist the session across runs")
		_ = fs.Parse(args)

		user, err := api.Login(ctx, *email, *password, *remember)
		if err != nil {
			return err
		}
		fmt.Printf("logged in as %s (%s)\n", user.Name, user.Role)
		return nil

	case "me":
		user, err := api.Me(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%s <%s> role=%s since %s\n", user.Name, user.Email, user.Role, user.CreatedAt.Format(time.DateOnly))
		return nil

	case "users":
		fs := flag.NewFlagSet("users", flag.ExitOnError)
		page := fs.Int("page", 1, "page number")
		limit := fs.Int("limit", 10, "page size")
		_ = fs.Parse(args)

		list, err := api.Users(ctx, *page, *limit)
		if err != nil {
			return err
		}
		for _, u := range list.Users {
			fmt.Printf("%-36s %-20s %-30s %s\n", u.ID, u.Name, u.Email, u.Role)
		}
		fmt.Printf("page %d/%d (%d total)\n", list.Page, (list.Total+list.Limit-1)/list.Limit, list.Total)
		return nil

	case "logout":
		if err := api.Logout(ctx); err != nil {
			return err
		}
		fmt.Println("logged out")
		return nil

	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: client [-url URL] <command> [flags]

commands:
  register  -name NAME -email EMAIL -password PASS [-role ROLE] [-remember]
  login     -email EMAIL -password PASS [-remember]
  me
  users     [-page N] [-limit N]
  logout`)
}

func envOr(key string, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

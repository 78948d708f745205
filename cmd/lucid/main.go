package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/term"

	apiclient "github.com/firi193/lucid/pkg/api/client"
)

type cliConfig struct {
	APIBaseURL  string `json:"api_base_url"`
	AccessToken string `json:"access_token"`
}

const defaultAPIBase = "http://localhost:4000"

var buildVersion = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "register":
		err = commandRegister(args)
	case "login":
		err = commandLogin(args)
	case "post":
		err = commandPost(args)
	case "version", "--version", "-v":
		printVersion()
		return
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func commandRegister(args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	apiBase := fs.String("api", "", "API base URL (default http://localhost:4000)")
	fs.Parse(args)

	if strings.TrimSpace(*email) == "" {
		return errors.New("--email is required")
	}
	secret, err := readSecret(*password)
	if err != nil {
		return err
	}
	cfg, client, err := clientFor(*apiBase)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	user, err := client.Register(ctx, *email, secret)
	if err != nil {
		return err
	}
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Printf("registered %s (%s)\n", user.Email, user.ID)
	return nil
}

func commandLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	apiBase := fs.String("api", "", "API base URL (default http://localhost:4000)")
	fs.Parse(args)

	if strings.TrimSpace(*email) == "" {
		return errors.New("--email is required")
	}
	secret, err := readSecret(*password)
	if err != nil {
		return err
	}
	cfg, client, err := clientFor(*apiBase)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	resp, err := client.Login(ctx, *email, secret)
	if err != nil {
		return err
	}
	cfg.AccessToken = resp.Session.Token
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Printf("login successful, session expires %s\n", resp.Session.ExpiresAt.Local().Format(time.RFC1123))
	return nil
}

func commandPost(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: lucid post [add|list|delete]")
	}
	sub := args[0]
	switch sub {
	case "add":
		return postAdd(args[1:])
	case "list":
		return postList(args[1:])
	case "delete":
		return postDelete(args[1:])
	default:
		return fmt.Errorf("unknown post command: %s", sub)
	}
}

func postAdd(args []string) error {
	fs := flag.NewFlagSet("post add", flag.ExitOnError)
	text := fs.String("text", "", "Post content")
	fs.Parse(args)

	content := *text
	if strings.TrimSpace(content) == "" && fs.NArg() > 0 {
		content = strings.Join(fs.Args(), " ")
	}
	if strings.TrimSpace(content) == "" {
		return errors.New("--text is required")
	}

	token, client, err := authedClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	post, err := client.CreatePost(ctx, token, content)
	if err != nil {
		return err
	}
	fmt.Printf("post created: %d\n", post.ID)
	return nil
}

func postList(args []string) error {
	fs := flag.NewFlagSet("post list", flag.ExitOnError)
	limit := fs.Int("limit", 0, "Maximum number of posts to display")
	fs.Parse(args)

	token, client, err := authedClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	posts, err := client.ListPosts(ctx, token)
	if err != nil {
		return err
	}
	count := len(posts)
	if *limit > 0 && *limit < count {
		count = *limit
	}
	for i := 0; i < count; i++ {
		p := posts[i]
		fmt.Printf("%d\t%s\t%s\n", p.ID, p.CreatedAt.Format(time.RFC3339), firstLine(p.Content))
	}
	return nil
}

func postDelete(args []string) error {
	fs := flag.NewFlagSet("post delete", flag.ExitOnError)
	rawID := fs.String("id", "", "Post identifier")
	fs.Parse(args)

	postID, err := strconv.ParseInt(strings.TrimSpace(*rawID), 10, 64)
	if err != nil || postID <= 0 {
		return errors.New("--id must be a positive integer")
	}
	token, client, err := authedClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := client.DeletePost(ctx, token, postID); err != nil {
		return err
	}
	fmt.Println("post deleted")
	return nil
}

func readSecret(flagValue string) (string, error) {
	secret := strings.TrimSpace(flagValue)
	if secret != "" {
		return secret, nil
	}
	fmt.Print("Password: ")
	bytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Print("\n")
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(bytes), nil
}

func clientFor(apiBase string) (cliConfig, *apiclient.Client, error) {
	cfg, _ := loadConfig()
	if strings.TrimSpace(apiBase) != "" {
		cfg.APIBaseURL = apiBase
	}
	client, err := apiclient.New(cfg.APIBaseURL)
	if err != nil {
		return cliConfig{}, nil, err
	}
	return cfg, client, nil
}

func authedClient() (string, *apiclient.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return "", nil, err
	}
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return "", nil, errors.New("please login first using 'lucid login'")
	}
	client, err := apiclient.New(cfg.APIBaseURL)
	if err != nil {
		return "", nil, err
	}
	return token, client, nil
}

func firstLine(content string) string {
	line, _, _ := strings.Cut(content, "\n")
	if len(line) > 72 {
		return line[:69] + "..."
	}
	return line
}

func loadConfig() (cliConfig, error) {
	path, err := configPath()
	if err != nil {
		return cliConfig{APIBaseURL: defaultAPIBase}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cliConfig{APIBaseURL: defaultAPIBase}, nil
		}
		return cliConfig{APIBaseURL: defaultAPIBase}, err
	}
	var cfg cliConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cliConfig{APIBaseURL: defaultAPIBase}, err
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBase
	}
	return cfg, nil
}

func saveConfig(cfg cliConfig) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func configPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "lucid", "config.json"), nil
}

func printUsage() {
	fmt.Printf("lucid CLI %s\n\n", buildVersion)
	fmt.Print(`Usage:
	lucid register --email user@example.com [--password secret] [--api http://localhost:4000]
	lucid login --email user@example.com [--password secret] [--api http://localhost:4000]
	lucid post add --text "note body"
	lucid post list [--limit N]
	lucid post delete --id <post-id>
	lucid version
`)
}

func printVersion() {
	fmt.Println(strings.TrimSpace(buildVersion))
}

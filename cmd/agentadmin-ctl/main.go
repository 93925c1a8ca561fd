// ABOUTME: Admin CLI for agentadmin user and role management
// ABOUTME: Talks to the HTTP API with JWT authentication

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"
)

const banner = `
                          _            _           _              _   _
  __ _  __ _  ___ _ __ | |_ __ _  __| |_ __ ___ (_)_ __        ___| |_| |
 / _' |/ _' |/ _ \ '_ \| __/ _' |/ _' | '_ ' _ \| | '_ \ _____ / __| __| |
| (_| | (_| |  __/ | | | || (_| | (_| | | | | | | | | | |_____| (__| |_| |
 \__,_|\__, |\___|_| |_|\__\__,_|\__,_|_| |_| |_|_|_| |_|      \___|\__|_|
       |___/
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	baseURL := getEnv("AGENTADMIN_URL", "http://localhost:9999")
	client := &apiClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   getToken(),
		http:    &http.Client{Timeout: 30 * time.Second},
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	ctx := context.Background()

	var err error
	switch cmd {
	case "login":
		err = cmdLogin(ctx, client, args)
	case "me":
		err = cmdMe(ctx, client)
	case "users":
		err = cmdUsers(ctx, client, args)
	case "roles":
		err = cmdRoles(ctx, client, args)
	case "agents":
		err = cmdAgents(ctx, client, args)
	case "apis":
		err = cmdAPIs(ctx, client, args)
	case "audit":
		err = cmdAudit(ctx, client, args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: agentadmin-ctl <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  login                        Log in and save a token")
	fmt.Println("  me                           Show your identity")
	fmt.Println("  users                        List users")
	fmt.Println("  users list                   List users")
	fmt.Println("  users create                 Create a user")
	fmt.Println("  users reset-password <id>    Reset a user's password")
	fmt.Println("  users delete <id>            Delete a user by ID")
	fmt.Println("  roles                        List roles")
	fmt.Println("  roles list                   List roles")
	fmt.Println("  roles create --name NAME     Create a role")
	fmt.Println("  agents                       List agents visible to you")
	fmt.Println("  apis refresh                 Resync the permission route table")
	fmt.Println("  audit                        Show recent audit log entries")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  AGENTADMIN_URL     Server base URL (default: http://localhost:9999)")
	fmt.Println("  AGENTADMIN_TOKEN   JWT access token (overrides the saved token)")
	fmt.Println()
}

// apiClient wraps the admin API's response envelope.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

type envelope struct {
	Code  int             `json:"code"`
	Msg   string          `json:"msg"`
	Data  json.RawMessage `json:"data"`
	Total *int64          `json:"total,omitempty"`
}

func (c *apiClient) do(ctx context.Context, method, path string, body any, out any) (*envelope, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/api/v1"+path, &buf)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s (status %d)", env.Msg, resp.StatusCode)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return nil, fmt.Errorf("decoding response: %w", err)
		}
	}
	return &env, nil
}

func cmdLogin(ctx context.Context, client *apiClient, args []string) error {
	var username string
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--username" || args[i] == "-u":
			if i+1 < len(args) {
				username = args[i+1]
				i++
			}
		case strings.HasPrefix(args[i], "--username="):
			username = strings.TrimPrefix(args[i], "--username=")
		}
	}

	reader := bufio.NewReader(os.Stdin)
	if username == "" {
		fmt.Print("Username: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("reading username: %w", err)
		}
		username = strings.TrimSpace(line)
	}

	fmt.Print("Password: ")
	password, err := readPassword()
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}
	fmt.Println()

	var tokens struct {
		AccessToken string `json:"access_token"`
	}
	_, err = client.do(ctx, http.MethodPost, "/base/access_token",
		map[string]string{"username": username, "password": password}, &tokens)
	if err != nil {
		return err
	}

	tokenPath, err := tokenFilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(tokenPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(tokenPath, []byte(tokens.AccessToken), 0600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Logged in as %s\n", username)
	fmt.Printf("  Token saved to %s\n", tokenPath)
	return nil
}

func readPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		return string(raw), err
	}
	// Piped input
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

type userInfo struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	IsActive    bool   `json:"is_active"`
	IsSuperuser bool   `json:"is_superuser"`
	LastLogin   string `json:"last_login"`
	Roles       []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"roles"`
}

func cmdMe(ctx context.Context, client *apiClient) error {
	var me userInfo
	if _, err := client.do(ctx, http.MethodGet, "/base/userinfo", nil, &me); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Your Identity")
	cyan.Println("  -------------")
	fmt.Printf("  ID:        %d\n", me.ID)
	fmt.Printf("  Username:  %s\n", me.Username)
	if me.Email != "" {
		fmt.Printf("  Email:     %s\n", me.Email)
	}
	fmt.Printf("  Superuser: %t\n", me.IsSuperuser)
	if len(me.Roles) > 0 {
		names := make([]string, 0, len(me.Roles))
		for _, r := range me.Roles {
			names = append(names, r.Name)
		}
		fmt.Printf("  Roles:     %s\n", strings.Join(names, ", "))
	}
	fmt.Println()
	return nil
}

func cmdUsers(ctx context.Context, client *apiClient, args []string) error {
	subcmd := "list"
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}

	switch subcmd {
	case "list":
		return cmdUsersList(ctx, client)
	case "create":
		return cmdUsersCreate(ctx, client, args)
	case "reset-password":
		return cmdUsersResetPassword(ctx, client, args)
	case "delete":
		return cmdUsersDelete(ctx, client, args)
	default:
		return fmt.Errorf("unknown users subcommand: %s", subcmd)
	}
}

func cmdUsersList(ctx context.Context, client *apiClient) error {
	var users []userInfo
	if _, err := client.do(ctx, http.MethodGet, "/user/list?page_size=100", nil, &users); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Users")
	cyan.Println("  -----")

	if len(users) == 0 {
		fmt.Println("  (no users)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tUSERNAME\tEMAIL\tACTIVE\tSUPERUSER\tROLES\tLAST LOGIN")
	fmt.Fprintln(w, "  --\t--------\t-----\t------\t---------\t-----\t----------")

	for _, u := range users {
		names := make([]string, 0, len(u.Roles))
		for _, r := range u.Roles {
			names = append(names, r.Name)
		}
		lastLogin := u.LastLogin
		if t, err := time.Parse(time.RFC3339, u.LastLogin); err == nil {
			lastLogin = t.Format("Jan 02 15:04")
		}
		fmt.Fprintf(w, "  %d\t%s\t%s\t%t\t%t\t%s\t%s\n",
			u.ID, u.Username, truncate(u.Email, 30), u.IsActive, u.IsSuperuser,
			strings.Join(names, ","), lastLogin)
	}
	w.Flush()
	fmt.Println()

	return nil
}

func cmdUsersCreate(ctx context.Context, client *apiClient, args []string) error {
	var username, password, email string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--username", "-u":
			if i+1 < len(args) {
				username = args[i+1]
				i++
			}
		case "--password", "-p":
			if i+1 < len(args) {
				password = args[i+1]
				i++
			}
		case "--email", "-e":
			if i+1 < len(args) {
				email = args[i+1]
				i++
			}
		}
	}

	if username == "" {
		return fmt.Errorf("--username is required")
	}
	if password == "" {
		fmt.Print("Password: ")
		var err error
		password, err = readPassword()
		if err != nil {
			return fmt.Errorf("reading password: %w", err)
		}
		fmt.Println()
	}

	var created userInfo
	_, err := client.do(ctx, http.MethodPost, "/user/create", map[string]any{
		"username": username,
		"password": password,
		"email":    email,
	}, &created)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Created user %s (id %d)\n", created.Username, created.ID)
	return nil
}

func cmdUsersResetPassword(ctx context.Context, client *apiClient, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: agentadmin-ctl users reset-password <id>")
	}
	id, err := parseIntArg(args[0])
	if err != nil {
		return err
	}

	fmt.Print("New password: ")
	password, err := readPassword()
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}
	fmt.Println()

	_, err = client.do(ctx, http.MethodPost, "/user/reset_password", map[string]any{
		"id":       id,
		"password": password,
	}, nil)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Password reset for user %d\n", id)
	return nil
}

func cmdUsersDelete(ctx context.Context, client *apiClient, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: agentadmin-ctl users delete <id>")
	}
	id, err := parseIntArg(args[0])
	if err != nil {
		return err
	}

	_, err = client.do(ctx, http.MethodDelete, "/user/delete?id="+strconv.FormatInt(id, 10), nil, nil)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Deleted user %d\n", id)
	return nil
}

func cmdRoles(ctx context.Context, client *apiClient, args []string) error {
	subcmd := "list"
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}

	switch subcmd {
	case "list":
		return cmdRolesList(ctx, client)
	case "create":
		return cmdRolesCreate(ctx, client, args)
	default:
		return fmt.Errorf("unknown roles subcommand: %s", subcmd)
	}
}

func cmdRolesList(ctx context.Context, client *apiClient) error {
	var roles []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
		Desc string `json:"desc"`
	}
	if _, err := client.do(ctx, http.MethodGet, "/role/list?page_size=100", nil, &roles); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Roles")
	cyan.Println("  -----")

	if len(roles) == 0 {
		fmt.Println("  (no roles)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tNAME\tDESCRIPTION")
	fmt.Fprintln(w, "  --\t----\t-----------")
	for _, r := range roles {
		fmt.Fprintf(w, "  %d\t%s\t%s\n", r.ID, r.Name, truncate(r.Desc, 50))
	}
	w.Flush()
	fmt.Println()

	return nil
}

func cmdRolesCreate(ctx context.Context, client *apiClient, args []string) error {
	var name, desc string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--name", "-n":
			if i+1 < len(args) {
				name = args[i+1]
				i++
			}
		case "--desc", "-d":
			if i+1 < len(args) {
				desc = args[i+1]
				i++
			}
		}
	}
	if name == "" {
		return fmt.Errorf("--name is required")
	}

	var created struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
	_, err := client.do(ctx, http.MethodPost, "/role/create", map[string]string{
		"name": name,
		"desc": desc,
	}, &created)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Created role %s (id %d)\n", created.Name, created.ID)
	return nil
}

func cmdAgents(ctx context.Context, client *apiClient, args []string) error {
	var agents []struct {
		ID       int64  `json:"id"`
		Name     string `json:"name"`
		Endpoint string `json:"endpoint"`
		IsActive bool   `json:"is_active"`
	}
	if _, err := client.do(ctx, http.MethodGet, "/agent/list?page_size=100", nil, &agents); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Agents")
	cyan.Println("  ------")

	if len(agents) == 0 {
		fmt.Println("  (no agents accessible)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tNAME\tENDPOINT\tACTIVE")
	fmt.Fprintln(w, "  --\t----\t--------\t------")
	for _, a := range agents {
		fmt.Fprintf(w, "  %d\t%s\t%s\t%t\n", a.ID, a.Name, truncate(a.Endpoint, 40), a.IsActive)
	}
	w.Flush()
	fmt.Println()

	return nil
}

func cmdAPIs(ctx context.Context, client *apiClient, args []string) error {
	if len(args) < 1 || args[0] != "refresh" {
		return fmt.Errorf("usage: agentadmin-ctl apis refresh")
	}

	if _, err := client.do(ctx, http.MethodPost, "/api/refresh", nil, nil); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Println("  ✓ Route table resynced")
	return nil
}

func cmdAudit(ctx context.Context, client *apiClient, args []string) error {
	query := url.Values{"page_size": {"50"}}
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--username", "-u":
			if i+1 < len(args) {
				query.Set("username", args[i+1])
				i++
			}
		case "--module", "-m":
			if i+1 < len(args) {
				query.Set("module", args[i+1])
				i++
			}
		}
	}

	var entries []struct {
		Username  string `json:"username"`
		Module    string `json:"module"`
		Method    string `json:"method"`
		Path      string `json:"path"`
		Status    int    `json:"status"`
		LatencyMS int64  `json:"latency_ms"`
		CreatedAt string `json:"created_at"`
	}
	if _, err := client.do(ctx, http.MethodGet, "/auditlog/list?"+query.Encode(), nil, &entries); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Audit Log")
	cyan.Println("  ---------")

	if len(entries) == 0 {
		fmt.Println("  (no entries)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  TIME\tUSER\tMETHOD\tPATH\tSTATUS\tLATENCY")
	fmt.Fprintln(w, "  ----\t----\t------\t----\t------\t-------")
	for _, e := range entries {
		created := e.CreatedAt
		if t, err := time.Parse(time.RFC3339, e.CreatedAt); err == nil {
			created = t.Format("Jan 02 15:04:05")
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%d\t%dms\n",
			created, e.Username, e.Method, truncate(e.Path, 50), e.Status, e.LatencyMS)
	}
	w.Flush()
	fmt.Println()

	return nil
}

func parseIntArg(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id: %s", s)
	}
	return id, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getToken returns the JWT token from AGENTADMIN_TOKEN env var or the saved token file.
func getToken() string {
	if token := os.Getenv("AGENTADMIN_TOKEN"); token != "" {
		return token
	}

	tokenPath, err := tokenFilePath()
	if err != nil {
		return ""
	}
	data, err := os.ReadFile(tokenPath)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func tokenFilePath() (string, error) {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "agentadmin", "token"), nil
}

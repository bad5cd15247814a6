package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

type client struct {
	baseURL    string
	token      string
	admin      bool
	httpClient *http.Client
}

type ui struct {
	title func(a ...any) string
	ok    func(a ...any) string
	info  func(a ...any) string
	warn  func(a ...any) string
	err   func(a ...any) string
	dim   func(a ...any) string
}

type profile struct {
	BaseURL string `yaml:"baseUrl"`
	Token   string `yaml:"token"`
	Admin   bool   `yaml:"admin"`
}

type cliConfig struct {
	CurrentProfile string             `yaml:"currentProfile"`
	Profiles       map[string]profile `yaml:"profiles"`
}

func newUI() *ui {
	return &ui{
		title: color.New(color.FgHiCyan, color.Bold).SprintFunc(),
		ok:    color.New(color.FgGreen, color.Bold).SprintFunc(),
		info:  color.New(color.FgCyan).SprintFunc(),
		warn:  color.New(color.FgYellow).SprintFunc(),
		err:   color.New(color.FgRed, color.Bold).SprintFunc(),
		dim:   color.New(color.FgHiBlack).SprintFunc(),
	}
}

func (c *client) request(method, path string, body any) (int, []byte, error) {
	var buf io.Reader = bytes.NewReader(nil)
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		buf = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.baseURL+path, buf)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.admin {
		req.Header.Set("X-Role", "ADMIN")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out, nil
}

// getJSON issues the request and decodes a 2xx body into out.
func (c *client) getJSON(method, path string, body, out any) error {
	status, resp, err := c.request(method, path, body)
	if err != nil {
		return err
	}
	if status >= 300 {
		return fmt.Errorf("error (%d): %s", status, strings.TrimSpace(string(resp)))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(resp, out)
}

func main() {
	baseURL := getenv("DOSSIER_BASE_URL", "http://localhost:8080")
	token := getenv("DOSSIER_TOKEN", "")
	admin := getenvBool("DOSSIER_ADMIN", isLocalURL(baseURL))
	profileName := getenv("DOSSIER_PROFILE", "")
	ui := newUI()

	root := &cobra.Command{
		Use:   "dossier",
		Short: "dossier CLI",
		Long:  "dossier CLI for submitting subjects, polling artifacts and running pipelines locally.",
	}
	root.SetHelpTemplate(helpTemplate(ui))
	root.SilenceUsage = true

	root.PersistentFlags().StringVar(&baseURL, "base-url", baseURL, "Base URL for the dossier service")
	root.PersistentFlags().StringVar(&token, "token", token, "Producer token")
	root.PersistentFlags().BoolVar(&admin, "admin", admin, "Send X-Role: ADMIN (dev only)")
	root.PersistentFlags().StringVar(&profileName, "profile", profileName, "Config profile")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, _, _ := loadConfig()
		prof := cfg.Profiles[resolveProfileName(profileName, cfg)]
		flags := cmd.Flags()
		if !flags.Changed("base-url") && os.Getenv("DOSSIER_BASE_URL") == "" && prof.BaseURL != "" {
			baseURL = prof.BaseURL
		}
		if !flags.Changed("token") && os.Getenv("DOSSIER_TOKEN") == "" && prof.Token != "" {
			token = prof.Token
		}
		if !flags.Changed("admin") && os.Getenv("DOSSIER_ADMIN") == "" {
			admin = prof.Admin || isLocalURL(baseURL)
		}
		return nil
	}

	newC := func() *client {
		return &client{
			baseURL:    strings.TrimRight(baseURL, "/"),
			token:      token,
			admin:      admin,
			httpClient: &http.Client{Timeout: 30 * time.Second},
		}
	}

	root.AddCommand(initCmd(&profileName, ui))
	root.AddCommand(submitCmd(newC, ui))
	root.AddCommand(statusCmd(newC, ui))
	root.AddCommand(resultCmd(newC, ui))
	root.AddCommand(catalogCmd(newC, ui))
	root.AddCommand(corpusCmd(newC, ui))
	root.AddCommand(runCmd(ui))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.err("[ERROR]"), err.Error())
		os.Exit(1)
	}
}

func initCmd(profileName *string, ui *ui) *cobra.Command {
	var (
		baseURL  string
		token    string
		admin    bool
		noPrompt bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize CLI config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgPath, err := loadConfig()
			if err != nil {
				return err
			}
			active := resolveProfileName(*profileName, cfg)
			prof := cfg.Profiles[active]

			baseURL = firstNonEmpty(baseURL, prof.BaseURL, "http://localhost:8080")
			token = firstNonEmpty(token, prof.Token)
			if !noPrompt {
				reader := bufio.NewReader(os.Stdin)
				baseURL = prompt(reader, "Base URL", baseURL)
				if token == "" {
					if token, err = promptSecret("Producer token (optional)"); err != nil {
						return err
					}
				}
			}

			prof.BaseURL = strings.TrimSpace(baseURL)
			prof.Token = strings.TrimSpace(token)
			if cmd.Flags().Changed("admin") {
				prof.Admin = admin
			}
			cfg.Profiles[active] = prof
			if cfg.CurrentProfile == "" || *profileName != "" {
				cfg.CurrentProfile = active
			}
			if err := saveConfig(cfg, cfgPath); err != nil {
				return err
			}
			fmt.Printf("%s Initialized profile '%s' at %s (token %s)\n", ui.ok("[OK]"), active, cfgPath, ui.dim(maskToken(prof.Token)))
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Base URL for the dossier service")
	cmd.Flags().StringVar(&token, "token", "", "Producer token")
	cmd.Flags().BoolVar(&admin, "admin", false, "Set admin for profile")
	cmd.Flags().BoolVar(&noPrompt, "no-prompt", false, "Disable interactive prompts")
	return cmd
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getenvBool(k string, def bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(k)))
	if v == "" {
		return def
	}
	return v == "1" || v == "true" || v == "yes"
}

func isLocalURL(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	return host == "localhost" || host == "127.0.0.1"
}

func helpTemplate(ui *ui) string {
	title := ui.title("dossier")
	return fmt.Sprintf(`%s: CLI for the dossier service

Usage:
  {{.UseLine}}

Commands:
{{range .Commands}}{{if (or .IsAvailableCommand .IsAdditionalHelpTopicCommand)}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}

Flags:
  {{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

Global Flags:
  {{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

Config:
  %s

Examples:
  dossier init
  dossier submit --subject acme --work-types report,infographic
  dossier status <upload-id> --work-type report --wait
  dossier corpus put acme projects/p/locations/us-central1/ragCorpora/42
  dossier run --subject acme --work-type report --out acme.json

`, title, configPath())
}

func configPath() string {
	if v := strings.TrimSpace(os.Getenv("DOSSIER_CONFIG_DIR")); v != "" {
		return filepath.Join(v, "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".dossier", "config.yaml")
}

func promptSecret(label string) (string, error) {
	fmt.Printf("%s: ", label)
	b, err := termReadPassword()
	fmt.Println()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func termReadPassword() ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err == io.EOF {
			err = nil
		}
		return []byte(strings.TrimSpace(line)), err
	}
	return term.ReadPassword(fd)
}

func loadConfig() (cliConfig, string, error) {
	path := configPath()
	cfg := cliConfig{Profiles: map[string]profile{}}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, path, nil
		}
		return cfg, path, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, path, err
	}
	if cfg.Profiles == nil {
		cfg.Profiles = map[string]profile{}
	}
	return cfg, path, nil
}

func saveConfig(cfg cliConfig, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func resolveProfileName(flag string, cfg cliConfig) string {
	if strings.TrimSpace(flag) != "" {
		return strings.TrimSpace(flag)
	}
	if cfg.CurrentProfile != "" {
		return cfg.CurrentProfile
	}
	return "default"
}

func prompt(r *bufio.Reader, label, def string) string {
	if def != "" {
		fmt.Printf("%s [%s]: ", label, def)
	} else {
		fmt.Printf("%s: ", label)
	}
	line, _ := r.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return def
	}
	return line
}

func maskToken(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "<unset>"
	}
	if len(v) <= 8 {
		return "****"
	}
	return v[:4] + "..." + v[len(v)-4:]
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, e := range strings.Split(s, ",") {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}

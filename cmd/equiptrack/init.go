package main

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/foxzi/equiptrack/internal/config"
)

var (
	initOutput   string
	initDataDir  string
	initAdmin    string
	initAuthMode string
	initIssuer   string
	initClientID string
	initListen   string
	initForce    bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize EquipTrack configuration",
	Long: `Interactive wizard to create an EquipTrack configuration file.

Examples:
  # Interactive mode - prompts for missing values
  equiptrack init

  # Non-interactive
  equiptrack init --admin ops@example.com --data-dir /var/lib/equiptrack -o config.yaml

  # OIDC login instead of a trusted proxy header
  equiptrack init --admin ops@example.com --auth-mode oidc --issuer https://sso.example.com --client-id equiptrack`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVarP(&initOutput, "output", "o", "config.yaml", "Output configuration file path")
	initCmd.Flags().StringVar(&initDataDir, "data-dir", "/var/lib/equiptrack", "Directory for user databases and state")
	initCmd.Flags().StringVar(&initAdmin, "admin", "", "Email promoted to admin on first access")
	initCmd.Flags().StringVar(&initAuthMode, "auth-mode", "header", "Authentication mode: header, oidc")
	initCmd.Flags().StringVar(&initIssuer, "issuer", "", "OIDC issuer URL (oidc mode)")
	initCmd.Flags().StringVar(&initClientID, "client-id", "", "OIDC client ID (oidc mode)")
	initCmd.Flags().StringVar(&initListen, "listen", ":8080", "API listen address")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing config file")

	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("EquipTrack Configuration Wizard")
	fmt.Println("===============================")
	fmt.Println()

	if !initForce {
		if _, err := os.Stat(initOutput); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", initOutput)
		}
	}

	if initAdmin == "" {
		initAdmin = prompt(reader, "Admin email", "")
	}
	if initAuthMode == "oidc" {
		if initIssuer == "" {
			initIssuer = prompt(reader, "OIDC issuer URL", "")
		}
		if initClientID == "" {
			initClientID = prompt(reader, "OIDC client ID", "equiptrack")
		}
	}

	content := generateConfig(generateRandomString(48))

	if err := os.WriteFile(initOutput, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if _, err := config.Load(initOutput); err != nil {
		return fmt.Errorf("generated config is invalid: %w", err)
	}

	abs, _ := filepath.Abs(initOutput)
	fmt.Printf("\nConfiguration written to %s\n", abs)
	printNextSteps()
	return nil
}

func prompt(reader *bufio.Reader, question, defaultValue string) string {
	if defaultValue != "" {
		fmt.Printf("%s [%s]: ", question, defaultValue)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultValue
	}
	return input
}

func generateRandomString(length int) string {
	bytes := make([]byte, length/2)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

func generateConfig(sessionSecret string) string {
	var sb strings.Builder

	sb.WriteString("# EquipTrack configuration\n\n")

	sb.WriteString("server:\n")
	sb.WriteString(fmt.Sprintf("  listen_addr: %q\n", initListen))
	sb.WriteString("  max_upload_bytes: 33554432\n")
	sb.WriteString("  # allowed_ips: [\"10.0.0.0/8\"]\n\n")

	sb.WriteString("storage:\n")
	sb.WriteString(fmt.Sprintf("  data_dir: %q\n", initDataDir))
	sb.WriteString(fmt.Sprintf("  roles_file: %q\n", filepath.Join(initDataDir, "roles.yaml")))
	sb.WriteString(fmt.Sprintf("  settings_file: %q\n", filepath.Join(initDataDir, "maintenance_settings.yaml")))
	sb.WriteString(fmt.Sprintf("  state_path: %q\n", filepath.Join(initDataDir, "state.db")))
	sb.WriteString("  role_backend: yaml\n\n")

	sb.WriteString("access:\n")
	sb.WriteString("  admin_sees_all: true\n")
	if initAdmin != "" {
		sb.WriteString("  admins:\n")
		sb.WriteString(fmt.Sprintf("    - %q\n", initAdmin))
	}
	sb.WriteString("\n")

	sb.WriteString("auth:\n")
	sb.WriteString(fmt.Sprintf("  mode: %s\n", initAuthMode))
	if initAuthMode == "header" {
		sb.WriteString("  trusted_header: \"X-Forwarded-Email\"\n")
	}
	sb.WriteString(fmt.Sprintf("  session_secret: %q\n", sessionSecret))
	sb.WriteString("  session_ttl: 12h\n")
	sb.WriteString("  cookie_secure: true\n")
	if initAuthMode == "oidc" {
		sb.WriteString("  oidc:\n")
		sb.WriteString(fmt.Sprintf("    issuer_url: %q\n", initIssuer))
		sb.WriteString(fmt.Sprintf("    client_id: %q\n", initClientID))
		sb.WriteString("    client_secret: \"\"\n")
		sb.WriteString("    redirect_url: \"https://equiptrack.example.com/auth/callback\"\n")
	}
	sb.WriteString("\n")

	sb.WriteString("maintenance:\n")
	sb.WriteString("  default_interval_days: 90\n")
	sb.WriteString("  due_soon_days: 30\n\n")

	sb.WriteString("metrics:\n")
	sb.WriteString("  enabled: false\n")
	sb.WriteString("  listen_addr: \":9090\"\n\n")

	sb.WriteString("logging:\n")
	sb.WriteString("  level: info\n")
	sb.WriteString("  format: json\n")

	return sb.String()
}

func printNextSteps() {
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Review the configuration file")
	if initAuthMode == "header" {
		fmt.Println("  2. Put the API behind a proxy that sets X-Forwarded-Email")
	} else {
		fmt.Println("  2. Set auth.oidc.client_secret and redirect_url")
	}
	fmt.Printf("  3. Validate: equiptrack config validate -c %s\n", initOutput)
	fmt.Printf("  4. Start:    equiptrack serve -c %s\n", initOutput)
}

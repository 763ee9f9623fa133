package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/giantswarm/suidriver/internal/settings"
	"github.com/giantswarm/suidriver/pkg/logging"
)

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Manage the engine settings document",
		Long: `The engine settings document holds runner settings such as proxy
credentials. It can be stored encrypted; the password is then read from
SUIDRIVER_ENGINE_SETTINGS_PASSWORD when the driver starts.`,
	}
	cmd.AddCommand(newSettingsEncryptCmd())
	cmd.AddCommand(newSettingsCheckCmd())
	return cmd
}

func newSettingsEncryptCmd() *cobra.Command {
	var out, password string
	cmd := &cobra.Command{
		Use:   "encrypt FILE",
		Short: "Encrypt a plain settings document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := settingsPassword(password)
			if err != nil {
				return err
			}
			plain, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read settings: %w", err)
			}
			encrypted, err := settings.EncryptDocument(plain, pw)
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(encrypted)
				return err
			}
			if err := os.WriteFile(out, encrypted, 0o600); err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}
			logging.Info("Settings", "Wrote encrypted settings to %s", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "O", "", "Write the encrypted document here instead of stdout")
	cmd.Flags().StringVar(&password, "password", "", "Encryption password (default from the configuration)")
	return cmd
}

func newSettingsCheckCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "check [FILE]",
		Short: "Load a settings document and print its keys",
		Long: `Load a plain or encrypted settings document the way the driver does and
print its entries with secret values masked. Without FILE the configured
engine.settingsFile is checked.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			path := cfg.Engine.SettingsFile
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return errors.New("no settings file given and engine.settingsFile is not configured")
			}
			pw := password
			if pw == "" {
				pw = cfg.Engine.SettingsPassword
			}

			s, err := settings.Load(path, pw)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s: %d settings\n", s.Source(), s.Len())
			s.Values().Each(func(key, value string) {
				fmt.Fprintln(w, logging.FormatProperties([]string{key, value}))
			})
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "Decryption password (default from the configuration)")
	return cmd
}

func settingsPassword(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	if cfg.Engine.SettingsPassword == "" {
		return "", errors.New("no password: pass --password or set SUIDRIVER_ENGINE_SETTINGS_PASSWORD")
	}
	return cfg.Engine.SettingsPassword, nil
}

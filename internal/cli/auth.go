package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"mailcrawl/internal/config"
	"mailcrawl/internal/secrets"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Credential and endpoint setup",
	}
	cmd.AddCommand(newAuthLoginCmd())
	cmd.AddCommand(newAuthSetPasswordCmd())
	cmd.AddCommand(newAuthDeletePasswordCmd())
	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	var (
		server   string
		port     int
		protocol string
		username string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store mail store endpoint configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("server") {
				cfg.Endpoint.Server = server
			}
			if cmd.Flags().Changed("port") {
				cfg.Endpoint.Port = port
			}
			if cmd.Flags().Changed("protocol") {
				cfg.Endpoint.Protocol = config.NormalizeProtocol(protocol)
			}
			if cmd.Flags().Changed("username") {
				cfg.Endpoint.Username = username
			}

			if cfg.Endpoint.Server == "" {
				return fmt.Errorf("endpoint.server is required")
			}

			path, err := config.Save(cfg)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Config saved to %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "Mail server host")
	cmd.Flags().IntVar(&port, "port", 0, "Mail server port (0 uses the protocol default)")
	cmd.Flags().StringVar(&protocol, "protocol", "", "Protocol: imap, imaps, pop3 or pop3s")
	cmd.Flags().StringVar(&username, "username", "", "Mailbox username")

	return cmd
}

func newAuthSetPasswordCmd() *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "set-password",
		Short: "Store the mailbox password in the system keyring",
		RunE: func(cmd *cobra.Command, args []string) error {
			user := username
			if user == "" {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				user = cfg.Endpoint.Username
			}
			if user == "" {
				return fmt.Errorf("no username configured; pass --username or run auth login first")
			}

			password, err := promptPassword(cmd, fmt.Sprintf("Password for %s: ", user))
			if err != nil {
				return err
			}

			if err := secrets.SetPassword(user, password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Password stored for %s\n", user)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Username to store the password for")

	return cmd
}

func newAuthDeletePasswordCmd() *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "delete-password",
		Short: "Remove the mailbox password from the system keyring",
		RunE: func(cmd *cobra.Command, args []string) error {
			user := username
			if user == "" {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				user = cfg.Endpoint.Username
			}
			if user == "" {
				return fmt.Errorf("no username configured; pass --username or run auth login first")
			}

			if err := secrets.DeletePassword(user); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Password removed for %s\n", user)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Username to remove the password for")

	return cmd
}

// promptPassword reads a password without echo when stdin is a terminal,
// falling back to a plain line read so piped input still works.
func promptPassword(cmd *cobra.Command, prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(cmd.ErrOrStderr(), prompt)
		data, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(data), nil
	}

	var line string
	if _, err := fmt.Fscanln(cmd.InOrStdin(), &line); err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimSpace(line), nil
}

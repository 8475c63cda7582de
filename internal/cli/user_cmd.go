// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jeranaias/rigrun-router/internal/catalog"
	"github.com/jeranaias/rigrun-router/internal/dispatch"
	"github.com/jeranaias/rigrun-router/internal/profile"
)

func newUserCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Show or change the current user's profile",
	}
	cmd.AddCommand(
		newUserShowCommand(e),
		newUserSetKeyCommand(e),
		newUserSetCLICommand(e),
		newUserSetTierCommand(e),
		newUserSetPrefCommand(e),
	)
	return cmd
}

func newUserShowCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show tier, quota, keys and CLI flags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := e.build(cmd, false)
			if err != nil {
				return err
			}
			defer e.close()

			uc, err := app.Dispatcher.UserConfig(cmd.Context(), e.user())
			if err != nil {
				return err
			}
			return printUserConfig(cmd.OutOrStdout(), uc, e.jsonOut)
		},
	}
}

// credentialKeys are the names set-key accepts.
func credentialKeys() []string {
	keys := make([]string, 0, len(catalog.Providers)+1)
	for _, p := range catalog.Providers {
		keys = append(keys, string(p))
	}
	return append(keys, catalog.GatewayAdapter)
}

func newUserSetKeyCommand(e *env) *cobra.Command {
	var remove bool

	cmd := &cobra.Command{
		Use:   "set-key <provider> [key]",
		Short: "Store an API key (prompted when omitted)",
		Long: `Stores an API key for openai, anthropic, google, or openrouter (the
unified gateway). When the key is omitted it is read from the terminal
without echo, or from stdin when piped.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.ToLower(args[0])
			if !contains(credentialKeys(), name) {
				return usagef("unknown provider %q (want %s)", args[0], strings.Join(credentialKeys(), ", "))
			}

			var key string
			switch {
			case remove:
			case len(args) == 2:
				key = args[1]
			default:
				var err error
				if key, err = readSecret(cmd.InOrStdin(), cmd.ErrOrStderr(), "API key for "+name+": "); err != nil {
					return err
				}
				if key == "" {
					return usagef("no key given (use --remove to delete a key)")
				}
			}

			app, err := e.build(cmd, false)
			if err != nil {
				return err
			}
			defer e.close()

			uc, err := app.Dispatcher.UpdateUserConfig(cmd.Context(), e.user(), profile.Update{
				Credentials: map[string]string{name: strings.TrimSpace(key)},
			})
			if err != nil {
				return err
			}
			if e.jsonOut {
				return writeJSONTo(cmd.OutOrStdout(), uc)
			}
			verb := "Stored"
			if remove {
				verb = "Removed"
			}
			s := NewStyles(cmd.OutOrStdout())
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s key for %s\n", s.Success.Render("✓"), verb, name)
			return nil
		},
	}
	cmd.Flags().BoolVar(&remove, "remove", false, "delete the stored key")
	return cmd
}

func newUserSetCLICommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "set-cli <name> <on|off>",
		Short: "Mark a command-line tool as installed and logged in",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.ToLower(args[0])
			valid := make([]string, 0)
			for k := range profile.DefaultCLIFlags() {
				valid = append(valid, k)
			}
			sort.Strings(valid)
			if !contains(valid, name) {
				return usagef("unknown CLI %q (want %s)", args[0], strings.Join(valid, ", "))
			}
			on, err := parseSwitch(args[1])
			if err != nil {
				return err
			}

			app, err := e.build(cmd, false)
			if err != nil {
				return err
			}
			defer e.close()

			uc, err := app.Dispatcher.UpdateUserConfig(cmd.Context(), e.user(), profile.Update{
				CLI: map[string]bool{name: on},
			})
			if err != nil {
				return err
			}
			if e.jsonOut {
				return writeJSONTo(cmd.OutOrStdout(), uc)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", name, onOff(on))
			return nil
		},
	}
}

func newUserSetTierCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "set-tier <free|pro|enterprise>",
		Short: "Change the subscription tier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tier, err := profile.ParseTier(args[0])
			if err != nil {
				return usagef("%v", err)
			}

			app, err := e.build(cmd, false)
			if err != nil {
				return err
			}
			defer e.close()

			uc, err := app.Dispatcher.UpdateUserConfig(cmd.Context(), e.user(), profile.Update{Tier: &tier})
			if err != nil {
				return err
			}
			if e.jsonOut {
				return writeJSONTo(cmd.OutOrStdout(), uc)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tier %s, quota %d\n", uc.Tier, uc.Quota)
			return nil
		},
	}
}

func newUserSetPrefCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "set-pref <key> [value]",
		Short: "Set a free-form preference (no value deletes it)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value := ""
			if len(args) == 2 {
				value = args[1]
			}
			app, err := e.build(cmd, false)
			if err != nil {
				return err
			}
			defer e.close()

			uc, err := app.Dispatcher.UpdateUserConfig(cmd.Context(), e.user(), profile.Update{
				Preferences: map[string]string{args[0]: value},
			})
			if err != nil {
				return err
			}
			if e.jsonOut {
				return writeJSONTo(cmd.OutOrStdout(), uc)
			}
			return printUserConfig(cmd.OutOrStdout(), uc, false)
		},
	}
}

func printUserConfig(w io.Writer, uc *dispatch.UserConfig, asJSON bool) error {
	if asJSON {
		return writeJSONTo(w, uc)
	}
	s := NewStyles(w)
	label := func(l string) string { return s.Label.Render(fmt.Sprintf("%-11s", l+":")) }

	fmt.Fprintln(w, label("User"), s.Value.Render(uc.UserID))
	fmt.Fprintln(w, label("Tier"), string(uc.Tier))
	usage := fmt.Sprintf("%d / %d (%d remaining)", uc.Usage, uc.Quota, uc.Remaining)
	if uc.Remaining == 0 {
		usage = s.Error.Render(usage)
	}
	fmt.Fprintln(w, label("Usage"), usage)
	fmt.Fprintln(w, label("Features"), strings.Join(uc.Features, ", "))
	fmt.Fprintln(w, label("Keys"), listOrNone(uc.EnabledProviders))

	clis := make([]string, 0, len(uc.CLIConfigs))
	for k := range uc.CLIConfigs {
		clis = append(clis, k)
	}
	sort.Strings(clis)
	for i, k := range clis {
		clis[i] = k + "=" + onOff(uc.CLIConfigs[k])
	}
	fmt.Fprintln(w, label("CLIs"), strings.Join(clis, " "))
	fmt.Fprintln(w, label("Providers"), listOrNone(uc.AvailableProviders))

	if len(uc.Preferences) > 0 {
		keys := make([]string, 0, len(uc.Preferences))
		for k := range uc.Preferences {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for i, k := range keys {
			keys[i] = k + "=" + uc.Preferences[k]
		}
		fmt.Fprintln(w, label("Prefs"), strings.Join(keys, " "))
	}
	return nil
}

// readSecret reads a line without echo from a terminal, or plainly from a pipe.
func readSecret(in io.Reader, prompt io.Writer, label string) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, label)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("failed to read key: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read key: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "yes", "1", "enable":
		return true, nil
	case "off", "false", "no", "0", "disable":
		return false, nil
	}
	return false, usagef("expected on or off, got %q", s)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}

func contains(items []string, s string) bool {
	for _, it := range items {
		if it == s {
			return true
		}
	}
	return false
}

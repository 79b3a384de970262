package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"epmasuppress/pkg/auth"
	"epmasuppress/pkg/ui"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage stored EPMA logins",
	Long: `Manage EPMA logins saved for unattended runs.

Logins are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - EPMA_USERNAME and EPMA_PASSWORD environment variables (read only)

Never share your login or the encrypted credentials file.`,
}

// loginCmd represents the auth login command
var loginCmd = &cobra.Command{
	Use:   "login [username]",
	Short: "Save an EPMA login",
	Long: `Save an EPMA username and password in the system keychain or the
encrypted credentials file. The username is upper-cased before it is stored.`,
	Example: `  # Interactive login
  epmasuppress auth login

  # Login with username
  epmasuppress auth login nurse1`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

// logoutCmd represents the auth logout command
var logoutCmd = &cobra.Command{
	Use:   "logout [username]",
	Short: "Remove a saved login",
	Long: `Remove a saved EPMA login.

If no username is provided you can pick one from the saved logins, or
remove them all.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogout,
}

// listCmd represents the auth list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved logins",
	Long:  `List saved EPMA logins with their passwords masked.`,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(listCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize credential manager", err.Error())
		return err
	}

	auth.ShowStorageGuide(os.Stdout)
	fmt.Println()

	var username string
	if len(args) > 0 {
		username = args[0]
	} else if username, err = prompt("EPMA username: "); err != nil {
		return err
	}
	username = auth.NormalizeUsername(username)
	if username == "" {
		return errors.New("username is required")
	}

	if existing, _ := manager.Retrieve(username); existing != nil {
		if !confirm(fmt.Sprintf("Login '%s' already exists. Update it?", username)) {
			return nil
		}
	}

	password, err := readPassword("EPMA password: ")
	if err != nil {
		ui.PrintError("Failed to read password", err.Error())
		return err
	}
	if password == "" {
		return errors.New("password is required")
	}

	account := &auth.Account{Username: username, Password: password}
	if err := manager.Store(account); err != nil {
		ui.PrintError("Failed to store credentials", err.Error())
		return err
	}

	ui.PrintSuccess(fmt.Sprintf("Login saved: %s", account.Username))
	accounts, _ := manager.List()
	if len(accounts) > 1 {
		fmt.Printf("\n%d logins are saved. Pick one per run with:\n", len(accounts))
		fmt.Printf("  epmasuppress run --account %s\n", account.Username)
	}
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize credential manager", err.Error())
		return err
	}

	if len(args) == 1 {
		return removeAccount(manager, args[0])
	}

	accounts, err := manager.List()
	if err != nil || len(accounts) == 0 {
		ui.PrintError("No saved logins found")
		return nil
	}

	if len(accounts) == 1 {
		if !confirm(fmt.Sprintf("Remove login '%s'?", accounts[0].Username)) {
			return nil
		}
		return removeAccount(manager, accounts[0].Username)
	}

	fmt.Println("Select login to remove:")
	for i, account := range accounts {
		fmt.Printf("  %d. %s\n", i+1, account.Username)
	}
	fmt.Printf("  %d. Remove all logins\n", len(accounts)+1)
	fmt.Printf("  0. Cancel\n\n")

	input, err := prompt("Choice: ")
	if err != nil {
		return err
	}
	var choice int
	fmt.Sscanf(input, "%d", &choice)

	switch {
	case choice == 0:
		return nil
	case choice == len(accounts)+1:
		answer, _ := prompt("Remove ALL logins? This cannot be undone! (yes/N): ")
		if answer != "yes" {
			return nil
		}
		if err := manager.DeleteAll(); err != nil {
			ui.PrintError("Failed to remove all logins", err.Error())
			return err
		}
		ui.PrintSuccess("All logins removed")
		return nil
	case choice > 0 && choice <= len(accounts):
		return removeAccount(manager, accounts[choice-1].Username)
	default:
		return errors.New("invalid choice")
	}
}

func removeAccount(manager *auth.Manager, username string) error {
	if err := manager.Delete(username); err != nil {
		ui.PrintError("Failed to remove login", err.Error())
		return err
	}
	ui.PrintSuccess("Login removed: " + auth.NormalizeUsername(username))
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize credential manager", err.Error())
		return err
	}

	accounts, err := manager.List()
	if err != nil {
		ui.PrintError("Failed to list logins", err.Error())
		return err
	}

	if len(accounts) == 0 {
		ui.PrintInfo("No saved logins", "Use 'epmasuppress auth login' to add one")
		return nil
	}

	ui.PrintHighlight("Saved Logins")
	fmt.Println()
	for i, account := range accounts {
		sanitized := auth.SanitizeAccount(account)
		fmt.Printf("%d. Username: %s\n", i+1, sanitized.Username)
		fmt.Printf("   Password: %s\n", sanitized.Password)
		if !sanitized.LastModified.IsZero() {
			fmt.Printf("   Last Modified: %s\n", sanitized.LastModified.Format("2006-01-02 15:04:05"))
		}
		fmt.Println()
	}
	return nil
}

package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"weibocrawler/pkg/credentials"
	"weibocrawler/pkg/ui"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage stored Weibo cookies",
	Long: `Manage stored Weibo login cookies.

Cookies are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (WEIBOCRAWLER_COOKIE, read only)

Never share your cookie or config files!`,
}

// setCmd represents the auth set command
var setCmd = &cobra.Command{
	Use:   "set [name]",
	Short: "Store a Weibo cookie securely",
	Long: `Store the Cookie header of a logged-in m.weibo.cn session under a name.

The cookie is read without echo. The name defaults to "default".`,
	Example: `  # Interactive
  weibocrawler auth set

  # Store under a name
  weibocrawler auth set work`,
	Args: cobra.MaximumNArgs(1),
	Run:  runAuthSet,
}

// authShowCmd represents the auth show command
var authShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Show a stored cookie, masked",
	Args:  cobra.MaximumNArgs(1),
	Run:   runAuthShow,
}

// listCmd represents the auth list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored cookies",
	Long:  `List all stored accounts with masked cookies, newest first.`,
	Run:   runAuthList,
}

// deleteCmd represents the auth delete command
var deleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Remove a stored cookie",
	Args:  cobra.ExactArgs(1),
	Run:   runAuthDelete,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(setCmd)
	authCmd.AddCommand(authShowCmd)
	authCmd.AddCommand(listCmd)
	authCmd.AddCommand(deleteCmd)
}

func newManager() *credentials.Manager {
	manager, err := credentials.NewManager("")
	if err != nil {
		fail("Failed to initialize credential manager", err)
	}
	return manager
}

func runAuthSet(cmd *cobra.Command, args []string) {
	manager := newManager()

	name := "default"
	if len(args) > 0 {
		name = strings.TrimSpace(args[0])
	}

	reader := bufio.NewReader(os.Stdin)

	credentials.ShowCookieGuide(os.Stdout)
	fmt.Println()

	if existing, _ := manager.Retrieve(name); existing != nil {
		fmt.Printf("Account '%s' already exists. Replace its cookie? (y/N): ", name)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return
		}
	}

	var cookie string
	for {
		fmt.Print("Cookie header value (hidden): ")
		var err error
		cookie, err = readSecret(reader)
		if err != nil {
			fail("Failed to read cookie", err)
		}
		if err := credentials.ValidateCookie(cookie); err != nil {
			fmt.Printf("\n%v\n", err)
			fmt.Print("Try again? (Y/n): ")
			retry, _ := reader.ReadString('\n')
			if strings.ToLower(strings.TrimSpace(retry)) == "n" {
				os.Exit(1)
			}
			continue
		}
		break
	}

	fmt.Print("User Agent (press Enter to use default): ")
	userAgent, _ := reader.ReadString('\n')
	userAgent = strings.TrimSpace(userAgent)

	account := &credentials.Account{
		Name:         name,
		Cookie:       strings.TrimSpace(cookie),
		UserAgent:    userAgent,
		LastModified: time.Now(),
	}
	if err := manager.Store(account); err != nil {
		fail("Failed to store cookie", err)
	}

	ui.PrintSuccess(fmt.Sprintf("Cookie saved: %s", name))
	fmt.Println("\nUse it with:")
	fmt.Printf("  weibocrawler crawl <user_id> --account %s\n", name)
}

func runAuthShow(cmd *cobra.Command, args []string) {
	manager := newManager()

	var (
		account *credentials.Account
		err     error
	)
	if len(args) > 0 {
		account, err = manager.Retrieve(args[0])
	} else {
		account, err = manager.RetrieveDefault()
	}
	if err != nil {
		fail("No stored cookie", err)
	}
	printAccount(credentials.SanitizeAccount(account))
}

func runAuthList(cmd *cobra.Command, args []string) {
	manager := newManager()

	accounts, err := manager.List()
	if err != nil {
		fail("Failed to list accounts", err)
	}

	if len(accounts) == 0 {
		ui.PrintInfo("No stored accounts", "Use 'weibocrawler auth set' to add one")
		return
	}

	ui.PrintHighlight("Stored Accounts")
	fmt.Println()
	for i, account := range accounts {
		fmt.Printf("%d. ", i+1)
		printAccount(credentials.SanitizeAccount(account))
		fmt.Println()
	}
}

func runAuthDelete(cmd *cobra.Command, args []string) {
	manager := newManager()
	if err := manager.Delete(args[0]); err != nil {
		fail("Failed to remove account", err)
	}
	ui.PrintSuccess("Account removed: " + args[0])
}

func printAccount(a *credentials.Account) {
	fmt.Printf("Name: %s\n", a.Name)
	fmt.Printf("   Cookie: %s\n", a.Cookie)
	if a.UserAgent != "" {
		fmt.Printf("   User Agent: %s\n", a.UserAgent)
	}
	if !a.LastModified.IsZero() {
		fmt.Printf("   Last Modified: %s\n", a.LastModified.Format("2006-01-02 15:04:05"))
	}
}

// readSecret reads a line from stdin without echoing when stdin is a terminal
func readSecret(reader *bufio.Reader) (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		secret, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err == nil {
			return string(secret), nil
		}
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

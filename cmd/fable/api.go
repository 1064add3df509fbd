package main

import (
	"github.com/spf13/cobra"

	"github.com/fablepress/fable/internal/server/endpoints"
)

var serverURL string

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Commands that call the running server",
	Long: `API commands call the running fable server via HTTP.

These commands require a running server (fable serve).
Use --server to specify a custom server URL.

Examples:
  fable api health                  # Check server health
  fable api books list --account a  # List an account's books
  fable api books generate <id>     # Start story generation`,
}

var booksCmd = &cobra.Command{
	Use:   "books",
	Short: "Book management commands",
}

// getServerURL returns the server URL at runtime (after flag parsing).
func getServerURL() string {
	return serverURL
}

func init() {
	// Add --server flag to api command (persistent so all subcommands inherit it)
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://localhost:8080", "Server URL",
	)

	// Health endpoints at top level of api
	apiCmd.AddCommand((&endpoints.HealthEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.ReadyEndpoint{}).Command(getServerURL))

	// Books as subcommand group
	booksCmd.AddCommand((&endpoints.CreateBookEndpoint{}).Command(getServerURL))
	booksCmd.AddCommand((&endpoints.ListBooksEndpoint{}).Command(getServerURL))
	booksCmd.AddCommand((&endpoints.GetBookEndpoint{}).Command(getServerURL))
	booksCmd.AddCommand((&endpoints.DeleteBookEndpoint{}).Command(getServerURL))
	booksCmd.AddCommand((&endpoints.GenerateEndpoint{}).Command(getServerURL))
	booksCmd.AddCommand((&endpoints.StatusEndpoint{}).Command(getServerURL))
	booksCmd.AddCommand((&endpoints.ListPagesEndpoint{}).Command(getServerURL))
	booksCmd.AddCommand((&endpoints.SetCoverEndpoint{}).Command(getServerURL))
	booksCmd.AddCommand((&endpoints.UpdatePageTextEndpoint{}).Command(getServerURL))
	booksCmd.AddCommand((&endpoints.PrintEndpoint{}).Command(getServerURL))

	apiCmd.AddCommand(booksCmd)
	rootCmd.AddCommand(apiCmd)
}

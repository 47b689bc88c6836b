package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xXKillerNoobYT/copilot-orchestration-extension-sub014/internal/ticket"
	"github.com/xXKillerNoobYT/copilot-orchestration-extension-sub014/pkg/models"
)

var statusAll bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ticket state",
	Long: `Display tickets from the orchestrator database.

Shows each ticket's status, assignee, and version. By default only
open and in-progress tickets are listed; use --all to include resolved
and closed ones.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusAll, "all", false, "Include resolved and closed tickets")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfg.DB.Path); os.IsNotExist(err) {
		fmt.Println("No ticket database. Run 'orchestrator run --plan <file>' to start.")
		return nil
	}

	db, err := ticket.Open(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	tickets, err := db.List(nil)
	if err != nil {
		return fmt.Errorf("list tickets: %w", err)
	}

	var shown int
	for _, t := range tickets {
		if !statusAll && (t.Status == models.TicketResolved || t.Status == models.TicketClosed) {
			continue
		}
		printTicket(t)
		shown++
	}

	if shown == 0 {
		if statusAll {
			fmt.Println("No tickets.")
		} else {
			fmt.Println("No open tickets. Use --all to include resolved and closed ones.")
		}
	}
	return nil
}

func printTicket(t models.Ticket) {
	assignee := t.Assignee
	if assignee == "" {
		assignee = "unassigned"
	}
	fmt.Printf("%s %s: %q (%s, v%d, updated %s ago)\n",
		statusSymbol(t.Status), t.ID, t.Title, assignee, t.Version,
		formatDuration(time.Since(t.UpdatedAt)))
}

func statusSymbol(s models.TicketStatus) string {
	switch s {
	case models.TicketOpen:
		return color.YellowString("○")
	case models.TicketInProgress:
		return color.CyanString("◐")
	case models.TicketResolved:
		return color.GreenString("✓")
	case models.TicketClosed:
		return color.New(color.Faint).Sprint("●")
	default:
		return "?"
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	}
	days := int(d.Hours()) / 24
	return fmt.Sprintf("%dd", days)
}

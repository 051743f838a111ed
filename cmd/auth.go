package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bnema/meeting-alertd/internal/token"
)

var manualOnly bool

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authenticate with the calendar service",
	Long: `Obtain and persist an access credential.

The full chain is attempted in order: probe of any stored token, silent
refresh, refresh-token exchange, browser-based device flow, and finally a
pasted-token prompt. With --manual the browser flow is skipped.`,
	RunE: runAuth,
}

func init() {
	authCmd.Flags().BoolVar(&manualOnly, "manual", false, "skip the browser flow and paste a token directly")
}

func runAuth(cmd *cobra.Command, args []string) error {
	mgr, err := newTokenManager(!manualOnly)
	if err != nil {
		return err
	}
	if manualOnly {
		mgr.SetManualEntry(token.PromptFunc(promptStdin))
	}

	outcome, err := mgr.Authenticate(cmd.Context())
	if err != nil {
		if errors.Is(err, token.ErrUserCancelled) {
			fmt.Println("Authentication cancelled.")
			return nil
		}
		return fmt.Errorf("authentication failed: %w", err)
	}

	switch outcome {
	case token.OutcomeValidNoAction, token.OutcomeValidatedByServer:
		fmt.Println("Already authenticated; existing token is valid.")
	case token.OutcomeRefreshed:
		fmt.Println("Token refreshed.")
	default:
		fmt.Println("Authentication successful.")
	}
	return nil
}

// promptStdin asks the user to paste a token. Safe to call from a background
// goroutine: the blocking read runs on its own goroutine and the caller's
// context bounds the wait.
func promptStdin(ctx context.Context) (string, error) {
	fmt.Print("Paste an access token (or press Enter to cancel): ")

	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		ch <- result{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		fmt.Println()
		return "", fmt.Errorf("manual entry timed out: %w", ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return "", fmt.Errorf("failed to read token: %w", r.err)
		}
		line := strings.TrimSpace(r.line)
		if line == "" {
			return "", token.ErrUserCancelled
		}
		return line, nil
	}
}

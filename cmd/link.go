package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"larkgate/internal/bridge"
	"larkgate/internal/config"
	"larkgate/internal/formatting"
)

// NotLinkedError is returned when no account is linked before the wait
// times out.
type NotLinkedError struct {
	Server  string
	Timeout time.Duration
}

func (e *NotLinkedError) Error() string {
	return fmt.Sprintf("no account linked on %s within %s", e.Server, e.Timeout)
}

type linkOptions struct {
	server   string
	timeout  time.Duration
	interval time.Duration
	force    bool
	quiet    bool
}

func newLinkCmd() *cobra.Command {
	opts := &linkOptions{}
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Link a Feishu/Lark account to a running gateway",
		Long: `Prints the gateway's /auth URL to open in a browser, then waits until
/auth/status reports a linked account and shows who was linked.

If an account is already linked the current status is printed and nothing
else happens, unless --force is given. The command exits with code 2 when
no account is linked before --timeout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLink(cmd, opts)
		},
	}

	defaultServer := fmt.Sprintf("http://127.0.0.1:%d", config.DefaultPort)
	cmd.Flags().StringVar(&opts.server, "server", defaultServer, "Base URL of the running gateway")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 5*time.Minute, "How long to wait for the account to be linked")
	cmd.Flags().DurationVar(&opts.interval, "interval", 2*time.Second, "Polling interval for /auth/status")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Start a new link even if an account is already linked")
	cmd.Flags().BoolVar(&opts.quiet, "quiet", false, "Do not show a progress spinner")
	return cmd
}

func runLink(cmd *cobra.Command, opts *linkOptions) error {
	server := strings.TrimRight(opts.server, "/")
	client := &http.Client{Timeout: 10 * time.Second}
	out := cmd.OutOrStdout()

	st, err := fetchStatus(cmd.Context(), client, server)
	if err != nil {
		return fmt.Errorf("failed to reach %s: %w", server, err)
	}
	if st.Authorized && !opts.force {
		formatting.StatusTable(out, st)
		return nil
	}

	fmt.Fprintf(out, "Open this URL in your browser to link your account:\n\n  %s\n\n", text.FgHiCyan.Sprint(server+"/auth"))

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	var s *spinner.Spinner
	if !opts.quiet {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		s.Writer = cmd.ErrOrStderr()
		s.Suffix = " Waiting for authorization..."
		s.Start()
	}

	st, err = waitForLink(ctx, client, server, opts.interval, opts.force)

	if s != nil {
		s.Stop()
	}
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return &NotLinkedError{Server: server, Timeout: opts.timeout}
		}
		return err
	}

	fmt.Fprintf(out, "%s\n", text.FgGreen.Sprint("Account linked"))
	formatting.StatusTable(out, st)
	return nil
}

// waitForLink polls /auth/status until an account is linked. With relink set
// it waits for a token newer than the one present when polling starts.
func waitForLink(ctx context.Context, client *http.Client, server string, interval time.Duration, relink bool) (*bridge.Status, error) {
	baseline := int64(-1)
	if relink {
		if st, err := fetchStatus(ctx, client, server); err == nil {
			baseline = remainingSeconds(st)
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		st, err := fetchStatus(ctx, client, server)
		if err != nil || !st.Authorized {
			continue
		}
		if baseline >= 0 && remainingSeconds(st) <= baseline {
			continue
		}
		return st, nil
	}
}

// remainingSeconds parses the token lifetime reported by /auth/status, or
// returns -1 when none is reported.
func remainingSeconds(st *bridge.Status) int64 {
	if !st.Authorized || st.Token == nil {
		return -1
	}
	n, err := strconv.ParseInt(strings.TrimSuffix(st.Token.ExpiresIn, "s"), 10, 64)
	if err != nil {
		return -1
	}
	return n
}

func fetchStatus(ctx context.Context, client *http.Client, server string) (*bridge.Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server+"/auth/status", nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s from /auth/status", resp.Status)
	}
	var st bridge.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, fmt.Errorf("invalid /auth/status response: %w", err)
	}
	return &st, nil
}

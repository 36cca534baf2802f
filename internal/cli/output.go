package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-billsplit/internal/favorites"
	"github.com/tbourn/go-billsplit/internal/remote"
)

func jsonMode(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeCommandError prints err the way the favorites screen would show it
// and returns it so the process exits non-zero.
func writeCommandError(cmd *cobra.Command, err error) error {
	return writeErrorText(cmd, favorites.ErrorText(err, favorites.DefaultLimit), err)
}

// writeErrorText is writeCommandError with a precomputed message.
func writeErrorText(cmd *cobra.Command, text string, err error) error {
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", text)
	if errors.Is(err, remote.ErrTransport) {
		fmt.Fprintln(cmd.ErrOrStderr(), "Hint: check --api or BILLSPLIT_API_URL. Cached data is still available without --refresh.")
	}
	return err
}

// cachedAt renders how old a cache entry is ("cached 3 minutes ago").
func cachedAt(t time.Time, ok bool) string {
	if !ok || t.IsZero() {
		return "not cached"
	}
	return "cached " + humanize.Time(t)
}

package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

// writeJSON prints v for scripts. Comment text and titles routinely carry
// '<' and '&', so HTML escaping stays off.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

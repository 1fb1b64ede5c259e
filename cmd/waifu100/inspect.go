package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/bodul/waifu100/internal/editor"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [file]",
	Short: "Decode a saved or pasted grid and print its contents",
	Long: `Reads a grid export (JSON, base64, or text with grid entries pasted in it)
from a file, or from stdin when the file is "-" or omitted, and lists the
characters it would load.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInspect,
}

func runInspect(cmd *cobra.Command, args []string) error {
	var (
		data []byte
		err  error
	)
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return err
	}

	d, err := editor.Decode(data)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if d.Meta.Title != "" {
		fmt.Fprintf(out, "Title: %s\n", d.Meta.Title)
	}
	fmt.Fprintf(out, "Loaded: %d/%d  Skipped: %d\n", d.Loaded, editor.Size, d.Skipped)
	for i, c := range d.Cells {
		if c == nil {
			continue
		}
		fmt.Fprintf(out, "  [%2d] r%d c%d  %-30s %s\n", i, i/10+1, i%10+1, c.Name, c.Provenance)
	}
	if v := d.Meta.Verdict; v != nil {
		fmt.Fprintf(out, "Verdict: %s %s\n", v.Emoji, v.EN.Title)
	}
	return nil
}

package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newCompressCmd() *cobra.Command {
	var (
		attempts int
		stats    bool
	)

	cmd := &cobra.Command{
		Use:   "compress [file]",
		Short: "Compress a prompt from a file or stdin",
		Long: `Compress a prompt and write the result to stdout.

The original prompt is written back unchanged when no shorter equivalent
is found.

Examples:
  # Compress a file
  promptzip compress system_prompt.txt

  # Compress from stdin with more verification rounds
  cat prompt.txt | promptzip compress --attempts 5 -`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := readInput(args, cmd.InOrStdin())
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			res, err := a.compressor.Compress(ctx, prompt, attempts)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), res.Compressed)
			if stats {
				fmt.Fprintf(cmd.ErrOrStderr(), "tokens: %d -> %d (%s)\n",
					res.OriginalTokens, res.CompressedTokens, res.Duration.Round(time.Millisecond))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&attempts, "attempts", 0, "verification rounds per segment (0 uses compression.attempts)")
	cmd.Flags().BoolVar(&stats, "stats", false, "print token counts to stderr")
	return cmd
}

// readInput reads the prompt from the named file, or from stdin when no
// file or "-" is given.
func readInput(args []string, stdin io.Reader) (string, error) {
	var (
		content []byte
		err     error
	)
	if len(args) == 0 || args[0] == "-" {
		content, err = io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		content, err = os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("failed to read file %s: %w", args[0], err)
		}
	}

	prompt := strings.TrimRight(string(content), "\n")
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("no prompt to compress")
	}
	return prompt, nil
}

package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/karlnotmarx/synthec/internal/generator"
	"github.com/karlnotmarx/synthec/internal/llmjson"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file|->",
	Short: "Check raw model output against the record schema",
	Long: "Runs raw model output through the same sanitize, extract, parse and schema steps\n" +
		"the generator applies. Reads standard input when the argument is \"-\".",
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	var (
		raw []byte
		err error
	)
	if args[0] == "-" {
		raw, err = io.ReadAll(cmd.InOrStdin())
	} else {
		raw, err = readRequired(cmd.Context(), args[0])
	}
	if err != nil {
		return err
	}

	records, err := generator.Parse(string(raw))
	if err != nil {
		return fmt.Errorf("invalid (%s): %w", llmjson.StageOf(err), err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "valid: %d records\n", len(records))
	return nil
}

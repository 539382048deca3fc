package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"grievancebot/services/orchestrator/statusfmt"
	"grievancebot/services/orchestrator/validate"
)

func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify [input...]",
		Short: "Classify grievance ids and mobile numbers",
		Long: `Report whether each input is a grievance id, a mobile number or
neither, and the value that would be sent for a status lookup. Inputs are
read one per line from stdin when no arguments are given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			classify := func(s string) {
				id := validate.Classify(s)
				fmt.Fprintf(out, "%s\t%s\t%s\n", s, id.Kind, id.Value)
			}
			if len(args) > 0 {
				for _, a := range args {
					classify(a)
				}
				return nil
			}
			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				if line := strings.TrimSpace(scanner.Text()); line != "" {
					classify(line)
				}
			}
			return scanner.Err()
		},
	}
}

func newFormatStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "format-status [text]",
		Short: "Format backend status text into labeled fields",
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if len(args) == 0 {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				text = string(data)
			}
			fields := statusfmt.Format(text)
			if len(fields) == 0 {
				return fmt.Errorf("no status fields found")
			}
			out := cmd.OutOrStdout()
			r := &renderer{out: out, st: newStyles(lipgloss.NewRenderer(out))}
			r.fields(fields)
			return nil
		},
	}
}

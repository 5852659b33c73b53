package cli

import (
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/prescripto/prescripto/internal/extraction/dosage"
	"github.com/prescripto/prescripto/internal/extraction/normalizer"
	"github.com/prescripto/prescripto/internal/extraction/parser"
)

// newParseCommand extracts medication entries from a document without
// touching any backing service.
func newParseCommand(opts *rootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "parse [text|-]",
		Short: "Parse OCR text into medication entries",
		Long: `Parse runs the extraction pipeline on one document and prints the
medication entries and the extraction report. The document is taken from the
argument, from --file, or from stdin when the argument is "-".`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readDocument(cmd, args, file)
			if err != nil {
				return err
			}

			interp := dosage.New()
			p := parser.New(normalizer.New(), interp)
			res, err := p.ParseDocument(cmd.Context(), text)
			if err != nil {
				return err
			}

			if opts.output == "json" {
				return printJSON(cmd, res)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			printRow(w, "MEDICINE", "STRENGTH", "PATTERN", "DURATION", "CONFIDENCE")
			for _, e := range res.Entries {
				duration := "-"
				if e.DurationDays != nil {
					duration = strconv.Itoa(*e.DurationDays) + "d"
				}
				pattern := "-"
				if !e.DosePattern.IsEmpty() {
					pattern = e.DosePattern.DashNotation(interp.SlotOrder())
				}
				strength := e.Strength
				if strength == "" {
					strength = "-"
				}
				printRow(w, e.MedicineName, strength, pattern, duration, string(e.Confidence))
			}
			if err := w.Flush(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printRow(out, "")
			printRow(out, "entries:", strconv.Itoa(res.Report.EntriesFound),
				" low confidence:", strconv.Itoa(res.Report.EntriesLowConfidence),
				" unparsed:", strconv.Itoa(len(res.Report.UnparsedFragments)))
			for _, frag := range res.Report.UnparsedFragments {
				printRow(out, "unparsed fragment:", frag)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "read the document from a file")
	return cmd
}

package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	appextraction "github.com/prescripto/prescripto/internal/application/extraction"
	"github.com/prescripto/prescripto/internal/extraction/dosage"
	"github.com/prescripto/prescripto/internal/extraction/normalizer"
	"github.com/prescripto/prescripto/internal/extraction/parser"
	"github.com/prescripto/prescripto/internal/extraction/schedule"
)

// newScheduleCommand previews the full reminder schedule for a document.
func newScheduleCommand(opts *rootOptions) *cobra.Command {
	var (
		file      string
		startDate string
	)

	cmd := &cobra.Command{
		Use:   "schedule [text|-]",
		Short: "Expand OCR text into a day-by-day reminder schedule",
		Long: `Schedule runs the full pipeline on one document and prints every
reminder event. Nothing is persisted; this is a dry run of what the API
would store.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readDocument(cmd, args, file)
			if err != nil {
				return err
			}

			req := appextraction.Request{Text: text}
			if startDate != "" {
				start, err := time.Parse("2006-01-02", startDate)
				if err != nil {
					return fmt.Errorf("--start must be YYYY-MM-DD: %w", err)
				}
				req.StartDate = start
			}

			svc := appextraction.NewService(
				parser.New(normalizer.New(), dosage.New()),
				schedule.New(),
				nil, nil,
			)
			res, err := svc.Preview(cmd.Context(), req)
			if err != nil {
				return err
			}

			if opts.output == "json" {
				return printJSON(cmd, res)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			printRow(w, "DATE", "SLOT", "TIME", "MEDICINE", "DOSE")
			for _, ev := range res.Events {
				at := ev.At(time.UTC)
				printRow(w,
					ev.Date.Format("2006-01-02"),
					string(ev.Slot),
					at.Format("15:04"),
					ev.MedicineName,
					strconv.Itoa(ev.DoseCount),
				)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printRow(out, "")
			printRow(out, "events:", strconv.Itoa(len(res.Events)))
			for _, name := range res.Prescription.Report.DefaultedDurations {
				printRow(out, "defaulted to 1 day:", name)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "read the document from a file")
	cmd.Flags().StringVar(&startDate, "start", "", "schedule start date (YYYY-MM-DD, default today)")
	return cmd
}

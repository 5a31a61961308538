package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"crmcal/internal/layout"
	"crmcal/internal/model"
)

type layoutFlags struct {
	file      string
	view      string
	date      string
	timezone  string
	weekStart string
	asJSON    bool
}

func layoutCmd() *cobra.Command {
	var f layoutFlags
	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Lay out appointments from a JSON file and print the view",
		Long: `Reads a JSON array of appointments (as returned by the CRM API) and prints
the column layout of timed appointments and the lanes of spanning ones.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLayout(cmd.OutOrStdout(), f)
		},
	}
	cmd.Flags().StringVarP(&f.file, "file", "f", "-", "Appointments JSON file (- for stdin)")
	cmd.Flags().StringVar(&f.view, "view", "week", "View: day, week or month")
	cmd.Flags().StringVar(&f.date, "date", "", "Anchor date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&f.timezone, "tz", "UTC", "Display time zone")
	cmd.Flags().StringVar(&f.weekStart, "week-start", "monday", "First day of the week: monday or sunday")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "Print the view as JSON")
	return cmd
}

func runLayout(w io.Writer, f layoutFlags) error {
	view, err := layout.ParseView(f.view)
	if err != nil {
		return err
	}
	loc, err := time.LoadLocation(f.timezone)
	if err != nil {
		return fmt.Errorf("time zone %q: %w", f.timezone, err)
	}
	anchor := time.Now().In(loc)
	if f.date != "" {
		if anchor, err = time.ParseInLocation("2006-01-02", f.date, loc); err != nil {
			return fmt.Errorf("date must be YYYY-MM-DD: %w", err)
		}
	}

	appts, err := readAppointments(f.file)
	if err != nil {
		return err
	}

	cv, err := layout.BuildView(view, anchor, layout.ParseWeekStart(f.weekStart), appts)
	if err != nil {
		return err
	}
	if f.asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(cv)
	}
	printView(w, cv)
	return nil
}

func readAppointments(path string) ([]model.Appointment, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		r = file
	}
	var appts []model.Appointment
	if err := json.NewDecoder(r).Decode(&appts); err != nil {
		return nil, fmt.Errorf("decode appointments: %w", err)
	}
	return appts, nil
}

func printView(w io.Writer, cv layout.CalendarView) {
	fmt.Fprintf(w, "%s view %s .. %s (%s)\n", cv.View, cv.Start, cv.End, cv.TimeZone)

	timed := table.NewWriter()
	timed.SetOutputMirror(w)
	timed.SetTitle("Timed")
	timed.AppendHeader(table.Row{"Date", "Time", "Title", "Column", "Key"})

	spanning := table.NewWriter()
	spanning.SetOutputMirror(w)
	spanning.SetTitle("All-day and multi-day")
	spanning.AppendHeader(table.Row{"Row", "Lane", "Columns", "Title", "Continues", "Key"})

	for ri, row := range cv.Rows {
		for _, d := range row.Days {
			for _, a := range d.Timed {
				timed.AppendRow(table.Row{
					d.Date,
					fmt.Sprintf("%s-%s", clock(a.StartTime), clock(a.EndTime)),
					a.Title,
					fmt.Sprintf("%d/%d", a.Column+1, a.TotalColumns),
					a.Key,
				})
			}
			for _, a := range d.AllDay {
				timed.AppendRow(table.Row{d.Date, "all day", a.Title, "", layout.Key(a)})
			}
		}
		for _, s := range row.Spanning {
			spanning.AppendRow(table.Row{
				ri,
				s.Lane,
				fmt.Sprintf("%d-%d", s.StartCol, s.EndCol),
				s.Title,
				continues(s),
				s.Key,
			})
		}
	}
	timed.Render()
	spanning.Render()

	if len(cv.Skipped) > 0 {
		fmt.Fprintf(w, "skipped (invalid timestamps): %s\n", strings.Join(cv.Skipped, ", "))
	}
}

// clock renders minutes since midnight as HH:MM; 1440 is 24:00.
func clock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

func continues(s model.SpanningAppointment) string {
	switch {
	case s.ContinuesBefore && s.ContinuesAfter:
		return "<>"
	case s.ContinuesBefore:
		return "<"
	case s.ContinuesAfter:
		return ">"
	default:
		return ""
	}
}

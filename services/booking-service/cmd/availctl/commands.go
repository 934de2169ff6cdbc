package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/md-rashed-zaman/specialistbook/libs/grpcx"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/conflict"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/slots"
	"github.com/spf13/cobra"
)

// options are the inputs shared by the offline commands.
type options struct {
	profilePath string
	ledgerPath  string
	now         string
	fullFit     bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "availctl",
		Short:         "Inspect specialist availability and try bookings against local profile and ledger files",
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&opts.profilePath, "profile", "profile.json", "availability profile JSON file")
	root.PersistentFlags().StringVar(&opts.ledgerPath, "ledger", "ledger.json", "booking ledger JSON file (missing means no bookings)")
	root.PersistentFlags().StringVar(&opts.now, "now", "", "evaluation time, RFC3339 (default: current time)")
	root.PersistentFlags().BoolVar(&opts.fullFit, "full-fit", false, "require the whole appointment inside one working window")

	root.AddCommand(resolveCmd(opts), slotsCmd(opts), validateCmd(opts), bookCmd(opts), healthCmd())
	return root
}

func (o *options) clockNow() (time.Time, error) {
	if o.now == "" {
		return time.Now(), nil
	}
	t, err := time.Parse(time.RFC3339, o.now)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --now: %w", err)
	}
	return t, nil
}

func (o *options) engine() *booking.Engine {
	return booking.NewEngine(
		availability.NewResolver(0, availability.DefaultFallback()),
		conflict.NewDetector(conflict.Policy{RequireFullFit: o.fullFit}),
	)
}

func (o *options) loadProfile() (availability.Profile, error) {
	var p availability.Profile
	if err := readJSON(o.profilePath, &p); err != nil {
		return availability.Profile{}, err
	}
	return p, nil
}

func (o *options) loadLedger() (model.Ledger, error) {
	var l model.Ledger
	err := readJSON(o.ledgerPath, &l)
	if errors.Is(err, os.ErrNotExist) {
		return model.Ledger{}, nil
	}
	return l, err
}

func readJSON(path string, dst any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func dateFlag(cmd *cobra.Command) (clock.Date, error) {
	raw, _ := cmd.Flags().GetString("date")
	return clock.ParseDate(raw)
}

func resolveCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Show the working windows in effect on a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := dateFlag(cmd)
			if err != nil {
				return err
			}
			now, err := opts.clockNow()
			if err != nil {
				return err
			}
			p, err := opts.loadProfile()
			if err != nil {
				return err
			}
			r := opts.engine().Resolver
			if week, _ := cmd.Flags().GetBool("week"); week {
				return writeJSON(cmd.OutOrStdout(), r.Week(p, date, now))
			}
			return writeJSON(cmd.OutOrStdout(), r.Resolve(p, date, now))
		},
	}
	cmd.Flags().String("date", "", "date, YYYY-MM-DD")
	cmd.Flags().Bool("week", false, "resolve the whole Monday..Sunday week")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func slotsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "List the slot grid for a date with booked and passed flags",
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := dateFlag(cmd)
			if err != nil {
				return err
			}
			now, err := opts.clockNow()
			if err != nil {
				return err
			}
			ledger, err := opts.loadLedger()
			if err != nil {
				return err
			}
			grid := slots.DefaultGrid()
			if custom, _ := cmd.Flags().GetBool("custom"); custom {
				grid = slots.CustomGrid()
			}
			return writeJSON(cmd.OutOrStdout(), slots.Generate(grid, date, ledger.For(date), now))
		},
	}
	cmd.Flags().String("date", "", "date, YYYY-MM-DD")
	cmd.Flags().Bool("custom", false, "use the whole-day half-hour grid")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func candidateFlags(cmd *cobra.Command) {
	cmd.Flags().String("date", "", "date, YYYY-MM-DD")
	cmd.Flags().String("slot", "", "start time, HH:MM")
	cmd.Flags().Int("duration", conflict.DefaultDuration, "duration in minutes")
	_ = cmd.MarkFlagRequired("date")
	_ = cmd.MarkFlagRequired("slot")
}

func candidate(cmd *cobra.Command) (conflict.Candidate, error) {
	date, err := dateFlag(cmd)
	if err != nil {
		return conflict.Candidate{}, err
	}
	raw, _ := cmd.Flags().GetString("slot")
	start, err := clock.ParseTimeOfDay(raw)
	if err != nil {
		return conflict.Candidate{}, err
	}
	duration, _ := cmd.Flags().GetInt("duration")
	return conflict.Candidate{Date: date, Start: start, DurationMinutes: duration}, nil
}

func validateCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a candidate booking against the profile and ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := candidate(cmd)
			if err != nil {
				return err
			}
			now, err := opts.clockNow()
			if err != nil {
				return err
			}
			p, err := opts.loadProfile()
			if err != nil {
				return err
			}
			ledger, err := opts.loadLedger()
			if err != nil {
				return err
			}
			e := opts.engine()
			v := e.Detector.Validate(c, e.Resolver.Resolve(p, c.Date, now), ledger.For(c.Date), now)
			return writeJSON(cmd.OutOrStdout(), v)
		},
	}
	candidateFlags(cmd)
	return cmd
}

func bookCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Run a booking through the creation flow and optionally save the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := candidate(cmd)
			if err != nil {
				return err
			}
			now, err := opts.clockNow()
			if err != nil {
				return err
			}
			p, err := opts.loadProfile()
			if err != nil {
				return err
			}
			ledger, err := opts.loadLedger()
			if err != nil {
				return err
			}
			treatmentName, _ := cmd.Flags().GetString("treatment")
			patientName, _ := cmd.Flags().GetString("patient")
			email, _ := cmd.Flags().GetString("email")
			save, _ := cmd.Flags().GetBool("write")

			store := booking.NewMemoryStore()
			store.PutProfile(p)
			ledger.SpecialistID = p.SpecialistID
			store.PutLedger(ledger)
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
			svc := booking.NewService(opts.engine(), store, nil, logger, booking.WithClock(func() time.Time { return now }))

			flow := booking.NewFlow(p.SpecialistID)
			steps := []func() error{
				func() error {
					return flow.SelectTreatment(model.Treatment{ID: "cli", Name: treatmentName, DurationMinutes: c.DurationMinutes})
				},
				func() error { return flow.SelectDate(c.Date) },
				func() error { return flow.SelectSlot(c.Start, c.DurationMinutes) },
				func() error { return flow.SelectPatient(model.Patient{Name: patientName, Email: email}) },
			}
			for _, step := range steps {
				if err := step(); err != nil {
					return err
				}
			}
			out, err := flow.Submit(cmd.Context(), svc)
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			if !out.Verdict.OK || !save {
				return nil
			}
			updated, err := store.LoadLedger(cmd.Context(), p.SpecialistID)
			if err != nil {
				return err
			}
			raw, err := json.MarshalIndent(updated, "", "  ")
			if err != nil {
				return err
			}
			return os.WriteFile(opts.ledgerPath, raw, 0o644)
		},
	}
	candidateFlags(cmd)
	cmd.Flags().String("treatment", "Consultation", "treatment name")
	cmd.Flags().String("patient", "", "new patient name")
	cmd.Flags().String("email", "", "new patient email")
	cmd.Flags().Bool("write", false, "write the updated ledger back to --ledger")
	return cmd
}

func healthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Query a booking service's gRPC health endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			service, _ := cmd.Flags().GetString("service")
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			conn, err := grpcx.Dial(ctx, addr, grpcx.DialOptions{})
			if err != nil {
				return fmt.Errorf("dial %s: %w", addr, err)
			}
			defer conn.Close()
			status, err := grpcx.CheckHealth(ctx, conn, service)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), status.String())
			return nil
		},
	}
	cmd.Flags().String("addr", "localhost:9093", "gRPC address")
	cmd.Flags().String("service", "booking", "health service name")
	return cmd
}

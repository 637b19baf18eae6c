package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootFlags struct {
	configPath string
	headless   bool
	debug      bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:          "courtside",
		Short:        "Automated court reservation for the campus sports portal",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flags.configPath, "config", "config.yaml", "path to configuration file")
	root.PersistentFlags().BoolVar(&flags.headless, "headless", false, "run the browser without a visible window")
	root.PersistentFlags().BoolVar(&flags.debug, "debug", false, "enable debug logging")

	root.AddCommand(newBookCmd(flags))
	root.AddCommand(newLoginCmd(flags))
	root.AddCommand(newLeftoverCmd(flags))

	return root
}

func (f *rootFlags) load(cmd *cobra.Command) (*Config, *zap.SugaredLogger, error) {
	config, err := LoadConfig(f.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cmd.Flags().Changed("headless") {
		config.Headless = f.headless
	}
	if f.debug {
		config.DebugMode = true
	}

	return config, newLogger(config.DebugMode), nil
}

func newBookCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "book",
		Short: "Race for the configured slot and pay for it",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, log, err := flags.load(cmd)
			if err != nil {
				return err
			}
			defer log.Sync()

			if err := config.Validate(modeBook); err != nil {
				return err
			}

			request, err := buildRequest(config)
			if err != nil {
				return err
			}

			if config.ReleaseTime != "" {
				if err := armForRelease(config, log); err != nil {
					return err
				}
			}

			session := NewSession(config, NewFileStore(config.SessionDir), log)
			defer session.Close()

			if err := session.Establish(); err != nil {
				outcome := ClassifyOutcome(err)
				log.Errorw("session not established", "status", outcome.Status, "error", err)
				return err
			}

			outcome := NewOrchestrator(session.Page(), config, log).Book(request)
			if !outcome.Success() {
				return fmt.Errorf("booking failed (%s): %s", outcome.Status, outcome.Message)
			}

			log.Infow("booking succeeded",
				"date", request.Date, "slot", request.TimeSlot, "venue", request.Venue)
			fmt.Println("Reservation booked and paid.")
			return nil
		},
	}
}

func newLoginCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Warm up the session and keep the browser open",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, log, err := flags.load(cmd)
			if err != nil {
				return err
			}
			defer log.Sync()

			if err := config.Validate(modeLogin); err != nil {
				return err
			}

			// A headless warm-up would be pointless to hold open.
			if !cmd.Flags().Changed("headless") {
				config.Headless = false
			}

			session := NewSession(config, NewFileStore(config.SessionDir), log)
			defer session.Close()

			if err := session.Establish(); err != nil {
				return err
			}

			log.Info("logged in; close the browser window to exit")
			session.HoldOpen()
			return nil
		},
	}
}

func newLeftoverCmd(flags *rootFlags) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "leftover",
		Short: "List the currently bookable time slots for the configured date and venue",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, log, err := flags.load(cmd)
			if err != nil {
				return err
			}
			defer log.Sync()

			if err := config.Validate(modeLeftover); err != nil {
				return err
			}

			request, err := buildRequest(config)
			if err != nil {
				return err
			}

			session := NewSession(config, NewFileStore(config.SessionDir), log)
			defer session.Close()

			if err := session.Establish(); err != nil {
				return err
			}

			slots, err := NewOrchestrator(session.Page(), config, log).Leftover(request)
			if err != nil {
				return err
			}

			if outPath != "" {
				if err := writeSlotResult(outPath, slots); err != nil {
					return err
				}
			}

			if len(slots) == 0 {
				log.Infow("no bookable slots", "date", request.Date, "venue", request.Venue)
				fmt.Println("No bookable time slots.")
				return nil
			}
			for i, slot := range slots {
				fmt.Printf("%d. %s\n", i+1, slot)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&outPath, "out", "", "write the slot list as JSON to this file")
	return cmd
}

// armForRelease sleeps on the network-synced clock until shortly before
// the daily release moment, so the polling race starts warmed up instead
// of hammering the grid for hours.
func armForRelease(config *Config, log *zap.SugaredLogger) error {
	clock := NewNetClock(log)
	if err := clock.Sync(); err != nil {
		log.Warnw("time sync failed, falling back to the local clock", "error", err)
	}

	release, err := NextRelease(config.ReleaseTime, clock.Now())
	if err != nil {
		return err
	}

	target := release.Add(-time.Duration(config.ArmBeforeSeconds) * time.Second)
	log.Infow("armed for release", "release", release.Format(time.RFC3339),
		"polling_from", target.Format(time.RFC3339))

	clock.WaitUntil(target)
	return nil
}

func writeSlotResult(path string, slots []string) error {
	if slots == nil {
		slots = []string{}
	}
	data, err := json.Marshal(slots)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write slot result: %w", err)
	}
	return nil
}

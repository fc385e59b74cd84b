package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/devsignal-systems/devsignal/internal/seeder"
)

var (
	seedScenario string
	seedCount    int
	seedInterval time.Duration
	seedRandSeed int64
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Generate signed fake provider deliveries",
	Long: `seed posts generated GitHub and Slack webhook deliveries at a running
devsignal instance. Signatures are computed with the secrets from the
scenario file, so the target verifies them like real provider traffic.`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().StringVar(&seedScenario, "scenario", "", "path to scenario yaml (default: built-in scenario)")
	seedCmd.Flags().IntVar(&seedCount, "count", 100, "number of deliveries to send")
	seedCmd.Flags().DurationVar(&seedInterval, "interval", 0, "pause between deliveries")
	seedCmd.Flags().Int64Var(&seedRandSeed, "seed", time.Now().UnixNano(), "random seed (fix for reproducible runs)")
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	scenario, err := seeder.LoadScenario(seedScenario)
	if err != nil {
		return err
	}

	s := seeder.New(scenario, seedRandSeed)
	accepted, err := s.Run(cmd.Context(), seedCount, seedInterval)
	if err != nil {
		return fmt.Errorf("seeding stopped after %d accepted deliveries: %w", accepted, err)
	}

	fmt.Printf("Sent %d deliveries, %d accepted\n", seedCount, accepted)
	return nil
}

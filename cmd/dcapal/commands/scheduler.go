package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/allocator/internal/scheduler"
	"github.com/wonny/allocator/pkg/redis"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run or inspect the maintenance jobs",
	Long: `Runs the periodic maintenance jobs outside of the API server.

Jobs:
  asset_catalog_refresh       - every 5 minutes, reloads the fiat and crypto lists into the cache
  imported_portfolio_cleanup  - hourly, deletes expired imported portfolios (needs DATABASE_URL)

Subcommands:
  start   - start the scheduler daemon
  list    - list the registered jobs
  run     - run one job now

Example:
  go run ./cmd/dcapal scheduler start
  go run ./cmd/dcapal scheduler run asset_catalog_refresh`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the scheduler",
		RunE:  runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "List the registered jobs",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "Run one job now",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}
)

const cleanupJobName = "imported_portfolio_cleanup"

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
}

// initScheduler wires the jobs with their dependencies; cleanup returns everything opened
func initScheduler(cmd *cobra.Command) (*scheduler.Scheduler, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	log := newLogger(cfg)

	rc, err := redis.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}

	db, importer, err := openImporter(cmd.Context(), cfg, log)
	if err != nil {
		_ = rc.Close()
		return nil, nil, err
	}
	cleanup := func() {
		if db != nil {
			db.Close()
		}
		_ = rc.Close()
	}

	sched, err := newScheduler(log, newMarketService(cfg, log, rc), importer)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("init scheduler: %w", err)
	}
	return sched, cleanup, nil
}

func runScheduler(cmd *cobra.Command, args []string) error {
	fmt.Println("=== dcapal Scheduler ===")

	sched, cleanup, err := initScheduler(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	sched.Start()

	fmt.Println("\n✅ Scheduler started successfully")
	fmt.Println("\nRegistered jobs:")
	for _, name := range sched.GetAllJobs() {
		fmt.Printf("  - %s\n", name)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	sched.Stop()
	printJobStats(sched)
	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	sched, cleanup, err := initScheduler(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	out := cmd.OutOrStdout()
	stats := sched.GetJobStats()
	widths := []int{28, 16}
	printTableHeader(out, []string{"Job", "Schedule"}, widths)
	for _, name := range sched.GetAllJobs() {
		printTableRow(out, []string{name, stats[name].Schedule}, widths)
	}
	if _, ok := stats[cleanupJobName]; !ok {
		printTableRow(out, []string{cleanupJobName, "disabled (DATABASE_URL not set)"}, widths)
	}
	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	sched, cleanup, err := initScheduler(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := sched.RunNow(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !res.Success {
		fmt.Fprintf(out, "❌ %s failed after %d attempts: %s\n", res.JobName, res.Attempts, res.Error)
		return fmt.Errorf("job %s failed", res.JobName)
	}
	fmt.Fprintf(out, "✅ %s completed in %s\n", res.JobName, res.Duration.Round(time.Millisecond))
	return nil
}

func printJobStats(sched *scheduler.Scheduler) {
	stats := sched.GetJobStats()
	if len(stats) == 0 {
		return
	}

	fmt.Println("\nJob statistics:")
	for _, name := range sched.GetAllJobs() {
		st := stats[name]
		fmt.Printf("  - %s: %d runs, %d failed, %.0f%% success\n",
			name, st.TotalRuns, st.FailureCount, st.SuccessRate*100)
	}
}

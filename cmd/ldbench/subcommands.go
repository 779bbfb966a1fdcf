package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	core "github.com/3cpo-dev/ldbench/internal/core"
	"github.com/3cpo-dev/ldbench/internal/platform"
	gssh "github.com/3cpo-dev/ldbench/internal/ssh"
	"github.com/3cpo-dev/ldbench/pkg/api"
)

// session bundles what a platform command needs: configuration, the
// per-run logger, the client and the optional ledger.
type session struct {
	cfg    core.Config
	log    zerolog.Logger
	runLog *core.RunLog
	client *platform.Client
	store  *core.Store
}

// Resolve config, credentials, run log and ledger
func newSession(cmd *cobra.Command, runName string) (*session, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := core.LoadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg, log: log.Logger}

	logDir, _ := cmd.Flags().GetString("log-dir")
	if logDir == "" {
		logDir = cfg.Logs.Dir
	}
	rl, err := core.OpenRunLog(consoleWriter(), logDir, runName, zerolog.GlobalLevel(), time.Now())
	if err != nil {
		log.Warn().Err(err).Msg("run log disabled")
	} else {
		s.runLog, s.log = rl, rl.Logger
	}

	profileName, _ := cmd.Flags().GetString("profile")
	secretsPath, _ := cmd.Flags().GetString("secrets")
	profile, err := core.ResolveProfile(cfg, profileName, secretsPath)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.client, err = platform.NewClient(cfg.ClientOptions(profile, s.log))
	if err != nil {
		s.Close()
		return nil, err
	}

	if noLedger, _ := cmd.Flags().GetBool("no-ledger"); !noLedger {
		st, err := core.NewStore(cfg.Store.Path)
		if err != nil {
			s.log.Warn().Err(err).Str("path", cfg.Store.Path).Msg("ledger disabled")
		} else {
			s.store = st
		}
	}
	return s, nil
}

func (s *session) Close() {
	if s.client != nil {
		m := s.client.Metrics().Snapshot()
		s.log.Debug().Int64("requests", m.Requests).Int64("errors", m.Errors).
			Interface("errors_by_status", m.ErrorsByStatus).Dur("avg_latency", m.Average()).
			Msg("platform api usage")
	}
	if s.store != nil {
		s.store.Close()
	}
	if s.runLog != nil {
		s.log.Info().Str("path", s.runLog.Path).Msg("run log written")
		s.runLog.Close()
	}
}

// startRun opens a ledger run, or returns "" when the ledger is disabled.
func (s *session) startRun(ctx context.Context, kind, label string) string {
	if s.store == nil {
		return ""
	}
	id, err := s.store.StartRun(ctx, kind, label)
	if err != nil {
		s.log.Warn().Err(err).Msg("ledger write failed")
		return ""
	}
	s.log.Info().Str("run_id", id).Msg("ledger run started")
	return id
}

func (s *session) ledger(err error) {
	if err != nil {
		s.log.Warn().Err(err).Msg("ledger write failed")
	}
}

func waitOptions(cmd *cobra.Command, cfg core.Config) core.WaitOptions {
	opts := cfg.Wait()
	if cmd.Flags().Changed("interval") {
		opts.Interval, _ = cmd.Flags().GetDuration("interval")
	}
	if cmd.Flags().Changed("timeout") {
		opts.Timeout, _ = cmd.Flags().GetDuration("timeout")
	}
	return opts
}

func addWaitFlags(cmd *cobra.Command) {
	cmd.Flags().Duration("interval", core.DefaultPollInterval, "poll interval")
	cmd.Flags().Duration("timeout", 0, "give up waiting after this long (0 waits forever)")
}

func printRows(w io.Writer, rows []core.BenchmarkRow) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tN_SAMPLES\tN_VARIANTS\tINTERRUPTIBLE\tINSTANCE\tMETHODS\tCPU\tTASK_ID\tNAME")
	for i, r := range rows {
		id := r.TaskID
		if id == "" && r.SubmitError != "" {
			id = "FAILED"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%t\t%s\t%s\t%d\t%s\t%s\n",
			i, r.NSamples, r.NVariants, r.Interruptible, r.InstanceType, strings.Join(r.Methods, ","), r.CPU, id, r.TaskName)
	}
	tw.Flush()
}

// Show the effective benchmark plan
func newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the benchmark plan (built-in unless --plan is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			planPath, _ := cmd.Flags().GetString("plan")
			rowsOnly, _ := cmd.Flags().GetBool("rows")
			p, err := core.LoadPlan(planPath)
			if err != nil {
				return err
			}
			if rowsOnly {
				printRows(cmd.OutOrStdout(), p.Rows())
				return nil
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(p)
		},
	}
	cmd.Flags().String("plan", "", "plan file (YAML)")
	cmd.Flags().Bool("rows", false, "list the expanded task rows instead of the plan")
	return cmd
}

// Submit a benchmark grid
func newSubmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit one task per benchmark row and write the tasks table",
		RunE: func(cmd *cobra.Command, args []string) error {
			planPath, _ := cmd.Flags().GetString("plan")
			tasksFile, _ := cmd.Flags().GetString("tasks-file")
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			p, err := core.LoadPlan(planPath)
			if err != nil {
				return err
			}
			if dryRun {
				printRows(cmd.OutOrStdout(), p.Rows())
				return nil
			}

			s, err := newSession(cmd, "benchmark")
			if err != nil {
				return err
			}
			defer s.Close()
			ctx := cmd.Context()
			runID := s.startRun(ctx, core.RunKindSubmit, p.App)

			rows, err := core.NewDriver(s.client, s.client, s.log).Run(ctx, p)
			if rows == nil {
				return err
			}
			// keep whatever was submitted, even after an interrupt
			if werr := core.WriteTasksFile(tasksFile, rows); werr != nil {
				return errors.Join(err, fmt.Errorf("write tasks table: %w", werr))
			}
			failed := 0
			for i, r := range rows {
				if r.TaskID == "" {
					failed++
				}
				if runID != "" {
					s.ledger(s.store.RecordSubmission(context.WithoutCancel(ctx), runID, i, r))
				}
			}
			printRows(cmd.OutOrStdout(), rows)
			s.log.Info().Str("file", tasksFile).Int("submitted", len(rows)-failed).Int("failed", failed).Msg("tasks table written")
			if err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d tasks were not submitted", failed, len(rows))
			}
			return nil
		},
	}
	cmd.Flags().String("plan", "", "plan file (YAML, default built-in)")
	cmd.Flags().String("tasks-file", core.DefaultTasksFile, "tasks table to write")
	cmd.Flags().Bool("dry-run", false, "list the rows without submitting")
	return cmd
}

// Collect cost, status and duration for submitted tasks
func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Collect cost, status and duration for the tasks in a tasks table",
		RunE: func(cmd *cobra.Command, args []string) error {
			tasksFile, _ := cmd.Flags().GetString("tasks-file")
			out, _ := cmd.Flags().GetString("out")
			publish, _ := cmd.Flags().GetString("publish")

			var target gssh.Target
			if publish != "" {
				t, err := gssh.ParseTarget(publish)
				if err != nil {
					return err
				}
				target = t
			}
			rows, err := core.ReadTasksFile(tasksFile)
			if err != nil {
				return fmt.Errorf("read tasks table: %w", err)
			}

			s, err := newSession(cmd, "stats")
			if err != nil {
				return err
			}
			defer s.Close()
			ctx := cmd.Context()
			runID := s.startRun(ctx, core.RunKindStats, tasksFile)

			stats, err := core.NewStatsCollector(s.client, s.log).Collect(ctx, rows)
			if err != nil {
				return err
			}
			if err := core.WriteReportFile(out, stats); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			if runID != "" {
				for _, st := range stats {
					s.ledger(s.store.RecordStats(ctx, st))
				}
			}
			s.log.Info().Str("file", out).Int("tasks", len(stats)).Msg("report written")

			if publish == "" {
				return nil
			}
			acceptNew, _ := cmd.Flags().GetBool("accept-new-host")
			pub, err := newPublisher(s, target, acceptNew)
			if err != nil {
				return err
			}
			_, err = pub.Publish(ctx, tasksFile, out)
			return err
		},
	}
	cmd.Flags().String("tasks-file", core.DefaultTasksFile, "tasks table to read")
	cmd.Flags().String("out", core.DefaultReportFile, "report table to write")
	cmd.Flags().String("publish", "", "upload both tables to user@host[:port]:/dir over SFTP")
	cmd.Flags().Bool("accept-new-host", false, "record the host key of a host missing from known_hosts")
	return cmd
}

func newPublisher(s *session, target gssh.Target, acceptNew bool) (*gssh.Publisher, error) {
	signer, err := gssh.LoadPrivateKeySigner(s.cfg.SSH.KeyPath)
	if err != nil {
		return nil, err
	}
	hostKeys := gssh.LoadKnownHostsCallback
	if acceptNew {
		hostKeys = gssh.TrustOnFirstUse
	}
	kh, err := hostKeys(s.cfg.SSH.KnownHosts)
	if err != nil {
		return nil, err
	}
	return &gssh.Publisher{Target: target, Signer: signer, KnownHosts: kh, Log: s.log}, nil
}

// Wait for tasks to finish
func newWaitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wait [task-id...]",
		Short: "Wait until tasks reach a terminal status",
		RunE: func(cmd *cobra.Command, args []string) error {
			fromRun, _ := cmd.Flags().GetString("from-run")
			runDrafts, _ := cmd.Flags().GetBool("run")

			s, err := newSession(cmd, "wait")
			if err != nil {
				return err
			}
			defer s.Close()
			ctx := cmd.Context()

			ids := append([]string(nil), args...)
			if fromRun != "" {
				if s.store == nil {
					return errors.New("--from-run needs the ledger")
				}
				runIDs, err := s.store.RunTaskIDs(ctx, fromRun)
				if err != nil {
					return err
				}
				ids = append(ids, runIDs...)
			}
			if len(ids) == 0 {
				return errors.New("no task ids given")
			}

			tasks := make([]*platform.Task, 0, len(ids))
			for _, id := range ids {
				t, err := s.client.GetTask(ctx, id)
				if err != nil {
					return err
				}
				if runDrafts && t.Status == api.TaskDraft {
					if t, err = s.client.RunTask(ctx, id); err != nil {
						return err
					}
					s.log.Info().Str("task_id", id).Msg("draft task started")
				}
				tasks = append(tasks, t)
			}

			opts := waitOptions(cmd, s.cfg)
			opts.Logger = s.log
			outcome, err := core.Wait(ctx, s.client, opts, tasks...)
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TASK_ID\tSTATUS\tNAME")
			for _, t := range tasks {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", t.ID, t.Status, t.Name)
			}
			tw.Flush()
			s.log.Info().Str("outcome", outcome.String()).Int("tasks", len(tasks)).Msg("wait finished")
			return err
		},
	}
	cmd.Flags().String("from-run", "", "wait for every task submitted by a ledger run")
	cmd.Flags().Bool("run", false, "start tasks that are still drafts")
	addWaitFlags(cmd)
	return cmd
}

// Run the end-to-end LD app checks
func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [app...]",
		Short: "Run the LD apps on test data and verify status and output naming",
		Long:  "Runs ld-index, ld-pair and ld-set (or the named subset) on the project's test data, verifies each task completed with correctly named outputs, then deletes the outputs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			project, _ := cmd.Flags().GetString("project")
			dirID, _ := cmd.Flags().GetString("testdata-id")
			dirName, _ := cmd.Flags().GetString("testdata-name")
			keep, _ := cmd.Flags().GetBool("keep-outputs")

			registry := core.NewCheckRegistry(core.BuiltinAppChecks(project)...)
			names := args
			if len(names) == 0 {
				names = registry.Names()
			}
			checks := make([]core.AppCheck, 0, len(names))
			for _, n := range names {
				c, err := registry.Get(n)
				if err != nil {
					return fmt.Errorf("%w (available: %s)", err, strings.Join(registry.Names(), ", "))
				}
				checks = append(checks, c)
			}

			runName := "ld-apps"
			if len(checks) == 1 {
				runName = checks[0].Name
			}
			s, err := newSession(cmd, runName)
			if err != nil {
				return err
			}
			defer s.Close()
			ctx := cmd.Context()

			fx, err := core.NewFixture(ctx, s.client, core.FixtureConfig{
				Project:         project,
				TestDataDirID:   dirID,
				TestDataDirName: dirName,
				Wait:            waitOptions(cmd, s.cfg),
				KeepOutputs:     keep,
			}, s.log)
			if err != nil {
				return err
			}
			runID := s.startRun(ctx, core.RunKindCheck, strings.Join(names, ","))
			results := fx.RunAll(ctx, checks)

			failed := 0
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "APP\tTASK_ID\tSTATUS\tRESULT\tDETAIL")
			for _, r := range results {
				verdict := "passed"
				if !r.Passed() {
					verdict = "failed"
					failed++
				}
				taskID := ""
				if r.Task != nil {
					taskID = r.Task.ID
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Check.Name, taskID, r.Status(), verdict, r.Detail())
				if r.CleanupErr != nil {
					s.log.Warn().Err(r.CleanupErr).Str("app", r.Check.App).Msg("output cleanup incomplete")
				}
				if runID != "" {
					s.ledger(s.store.RecordCheck(context.WithoutCancel(ctx), runID, core.CheckRecord{
						App:    r.Check.Name,
						TaskID: taskID,
						Status: r.Status(),
						Passed: r.Passed(),
						Detail: r.Detail(),
					}))
				}
			}
			tw.Flush()
			if failed > 0 {
				return fmt.Errorf("%d of %d app checks failed", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().String("project", core.DefaultProject, "project holding the apps and test data")
	cmd.Flags().String("testdata-id", core.DefaultTestDataDirID, "id of the test data folder (empty to look it up by name)")
	cmd.Flags().String("testdata-name", core.DefaultTestDataDir, "name of the test data folder in the project")
	cmd.Flags().Bool("keep-outputs", false, "do not delete task outputs after checking")
	addWaitFlags(cmd)
	return cmd
}

// List ledger runs
func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent runs recorded in the local ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			limit, _ := cmd.Flags().GetInt("limit")
			cfg, err := core.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			st, err := core.NewStore(cfg.Store.Path)
			if err != nil {
				return err
			}
			defer st.Close()
			runs, err := st.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN_ID\tKIND\tSTARTED\tSUBMITTED\tFAILED\tCHECKS\tLABEL")
			for _, r := range runs {
				checks := ""
				if r.ChecksPassed+r.ChecksFailed > 0 {
					checks = fmt.Sprintf("%d/%d", r.ChecksPassed, r.ChecksPassed+r.ChecksFailed)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
					r.ID, r.Kind, r.StartedAt.Local().Format(time.DateTime), r.Submitted, r.Failed, checks, r.Label)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Int("limit", 20, "number of runs to show")
	return cmd
}

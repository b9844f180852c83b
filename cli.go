package main

import (
	"fmt"
	"path/filepath"

	"shareclass_hedging/approval"
	"shareclass_hedging/config"
	"shareclass_hedging/logs"
	"shareclass_hedging/workflow"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const logFileName = "hedging.log"

// rootOptions holds global flags for all commands.
type rootOptions struct {
	ConfigPath   string
	Collaborator string
	Verbose      bool
}

type runOptions struct {
	FxPath           string
	CounterpartyPath string
	Sample           bool
	Approve          []string
	Reject           []string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "hedging",
		Short: "Share class hedging workflow",
		Long:  "Runs the share class FX hedging workflow from exposure ingestion through approval, execution and reporting.",
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "config/config.yaml", "path to the config.yaml file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log at debug level, including skipped stage calls")
	cmd.PersistentFlags().StringVar(&opts.Collaborator, "collaborator", "", "override the configured collaborator (mock|file|sqlite|http)")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newStagesCommand())
	cmd.AddCommand(newApproversCommand())
	return cmd
}

func newRunCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:          "run",
		Short:        "Ingest exposures and drive the workflow as far as approvals allow",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd, rootOpts, opts)
		},
	}

	cmd.Flags().StringVar(&opts.FxPath, "fx", "", "FX exposure CSV file")
	cmd.Flags().StringVar(&opts.CounterpartyPath, "counterparty", "", "counterparty exposure CSV file")
	cmd.Flags().BoolVar(&opts.Sample, "sample", false, "use the built-in sample FX exposures when --fx is not given")
	cmd.Flags().StringArrayVar(&opts.Approve, "approve", nil, "approver granting consent (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Reject, "reject", nil, "approver withholding consent (repeatable)")
	return cmd
}

func loadRuntimeConfig(rootOpts *rootOptions) (*config.Config, error) {
	cfg, err := config.LoadConfig(rootOpts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("unable to load config file '%s': %w", rootOpts.ConfigPath, err)
	}
	if rootOpts.Collaborator != "" {
		cfg.Collaborator = rootOpts.Collaborator
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func runWorkflow(cmd *cobra.Command, rootOpts *rootOptions, opts *runOptions) error {
	cfg, err := loadRuntimeConfig(rootOpts)
	if err != nil {
		return err
	}

	logFilename := filepath.Join(cfg.Normal.LogDirectory, logFileName)
	if err := logs.Init(cfg.Logs, logFilename); err != nil {
		return fmt.Errorf("failed to initialize logging system: %w", err)
	}
	defer logs.Close()
	logs.SetOutput(cmd.ErrOrStderr())
	if rootOpts.Verbose {
		logs.SetLevel(logrus.DebugLevel)
	}
	logs.Infof("Configuration loaded successfully, logs will be written to: %s", logFilename)

	ctx := cmd.Context()
	orchestrator, err := NewOrchestrator(ctx, cfg, config.LoadEnvConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize orchestrator: %w", err)
	}
	defer orchestrator.Close()

	if err := orchestrator.Load(opts.FxPath, opts.CounterpartyPath, opts.Sample); err != nil {
		return err
	}

	report, runErr := orchestrator.Run(ctx, opts.Approve, opts.Reject)
	if report != nil {
		WriteReport(cmd.OutOrStdout(), report)
	}
	return runErr
}

func newStagesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stages",
		Short: "List the workflow stages in order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, s := range workflow.Stages() {
				gate := ""
				if s.Gated() {
					gate = "  (requires all approvals to leave)"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s%s\n", int(s), s, gate)
			}
			return nil
		},
	}
}

func newApproversCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "approvers",
		Short: "List the approvers whose consent opens the approval gate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range approval.Roster {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

package main

import (
	"github.com/spf13/cobra"
)

// #region flags

var (
	configPath  string
	dbPath      string
	logLevel    string
	jsonOut     bool
	corpusPath  string
	modelOut    string
	planLength  int
	planSeed    uint64
	pathID      string
	baseline    bool
	metricsAddr string
	runCount    int
	versionID   string
	listLast    int
	force       bool
)

// #endregion flags

// #region commands

var (
	rootCmd = &cobra.Command{
		Use:               "nte",
		Short:             "Narrative trajectory engine",
		Long:              "nte mines position-dependent label transition models from story corpora and plans\nconstrained story structures from them.",
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}

	// --- Models ---
	trainCmd = &cobra.Command{
		Use:   "train",
		Short: "Mine a story corpus into a new model version",
		Args:  cobra.NoArgs,
		RunE:  runTrain, // Defined in cmd_model.go
	}
	importCmd = &cobra.Command{
		Use:   "import [model.json]",
		Short: "Store a model file as a new active version",
		Args:  cobra.ExactArgs(1),
		RunE:  runImport, // Defined in cmd_model.go
	}
	exportCmd = &cobra.Command{
		Use:   "export [model.json]",
		Short: "Write the active (or a given) model version to a file",
		Args:  cobra.ExactArgs(1),
		RunE:  runExport, // Defined in cmd_model.go
	}
	versionsCmd = &cobra.Command{
		Use:   "versions",
		Short: "List stored model versions",
		Args:  cobra.NoArgs,
		RunE:  runVersions, // Defined in cmd_model.go
	}
	rollbackCmd = &cobra.Command{
		Use:   "rollback [version-id]",
		Short: "Make an earlier model version active",
		Args:  cobra.ExactArgs(1),
		RunE:  runRollback, // Defined in cmd_model.go
	}
	pathsCmd = &cobra.Command{
		Use:   "paths",
		Short: "List the discovered paths of the active model",
		Args:  cobra.NoArgs,
		RunE:  runPaths, // Defined in cmd_model.go
	}

	// --- Planning and generation ---
	planCmd = &cobra.Command{
		Use:   "plan",
		Short: "Plan a label sequence without generating prose",
		Args:  cobra.NoArgs,
		RunE:  runPlan, // Defined in cmd_run.go
	}
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Generate a story through the configured collaborators",
		Args:  cobra.NoArgs,
		RunE:  runGenerate, // Defined in cmd_run.go
	}

	// --- Collaborator service ---
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Expose the configured collaborators over gRPC",
		Args:  cobra.NoArgs,
		RunE:  runServe, // Defined in cmd_serve.go
	}
)

// #endregion commands

// #region init

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "config file (defaults to $NTE_CONFIG)")
	pf.StringVar(&dbPath, "db", "", "override db_path")
	pf.StringVar(&logLevel, "log-level", "", "override log_level")
	pf.BoolVar(&jsonOut, "json", false, "print JSON instead of tables")

	trainCmd.Flags().StringVar(&corpusPath, "corpus", "", "story corpus (JSON array or JSON lines)")
	trainCmd.Flags().StringVar(&modelOut, "out", "", "also write the model to this file")
	_ = trainCmd.MarkFlagRequired("corpus")
	for _, c := range []*cobra.Command{trainCmd, importCmd} {
		c.Flags().BoolVar(&force, "force", false, "activate the model even if the promotion gate rejects it")
	}

	exportCmd.Flags().StringVar(&versionID, "version", "", "version to export (default: active)")
	versionsCmd.Flags().IntVar(&listLast, "last", 20, "number of versions to list")

	for _, c := range []*cobra.Command{planCmd, runCmd} {
		c.Flags().IntVar(&planLength, "length", 0, "story length (default: coordinator.default_length)")
		c.Flags().Uint64Var(&planSeed, "seed", 0, "random seed (default: time based)")
		c.Flags().StringVar(&pathID, "path", "", "follow a discovered path by id")
	}
	runCmd.Flags().BoolVar(&baseline, "baseline", false, "also run an unconstrained baseline and compare")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics on this address during the run")
	runCmd.Flags().IntVar(&runCount, "count", 1, "number of runs")

	rootCmd.AddCommand(trainCmd, importCmd, exportCmd, versionsCmd, rollbackCmd, pathsCmd,
		planCmd, runCmd, serveCmd)
}

// #endregion init

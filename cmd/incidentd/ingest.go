package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/incidentd/internal/config"
	"github.com/fyrsmithlabs/incidentd/internal/knowledge"
	"github.com/fyrsmithlabs/incidentd/internal/logging"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Load incident records into the knowledge base",
	Long: `Load incident records from a YAML or JSON file into the SQLite
knowledge base. The file holds a list of records:

  - failure: docker pull access denied for hello-world
    root_cause: registry requires authentication
    solution: log in to the registry before pulling

IDs are assigned by the store. The running daemon picks up new records
on its next rebuild; restart it or add records through the API to make
them searchable immediately.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

// ingestRecord is the on-disk record shape. YAML tags also parse JSON
// input since JSON is a YAML subset.
type ingestRecord struct {
	Failure   string `yaml:"failure"`
	RootCause string `yaml:"root_cause"`
	Solution  string `yaml:"solution"`
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logging.Sync(logger) }()

	content, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	var records []ingestRecord
	if err := yaml.Unmarshal(content, &records); err != nil {
		return fmt.Errorf("failed to parse %s: %w", args[0], err)
	}
	if len(records) == 0 {
		return fmt.Errorf("%s contains no records", args[0])
	}

	store, err := knowledge.NewSQLiteStore(knowledge.SQLiteConfig{Path: cfg.Store.Path}, logger)
	if err != nil {
		return fmt.Errorf("failed to open knowledge store: %w", err)
	}
	defer store.Close()

	added := 0
	for i, rec := range records {
		id, err := store.Add(ctx, knowledge.Record{
			Failure:   rec.Failure,
			RootCause: rec.RootCause,
			Solution:  rec.Solution,
		})
		if err != nil {
			return fmt.Errorf("record %d: %w", i+1, err)
		}
		logger.Debug("ingested record", zap.Int64("id", id))
		added++
	}

	cmd.Printf("Ingested %d record(s) into %s\n", added, cfg.Store.Path)
	return nil
}

package admin

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/praxis-ed/curio/internal/config"
	"github.com/praxis-ed/curio/internal/database"
)

// EnrichCmd returns the enrich command, which runs image description
// batches until no pending images remain.
func EnrichCmd() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Describe pending image atoms",
		Long:  "Run the image enrichment pass over the index until every image atom has a description.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnrich(once)
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Process a single batch and exit")

	return cmd
}

func runEnrich(once bool) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.HasOpenAI() {
		return fmt.Errorf("enrichment requires CURIO_OPENAI_API_KEY")
	}

	pool, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	svcs := buildStack(cfg, pool)

	total := 0
	for {
		n, err := svcs.enrichment.ProcessBatch(ctx)
		if err != nil {
			return err
		}
		total += n
		if n == 0 || once {
			break
		}
	}

	fmt.Printf("described %d images\n", total)
	return nil
}

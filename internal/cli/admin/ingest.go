package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/praxis-ed/curio/internal/config"
	"github.com/praxis-ed/curio/internal/database"
	"github.com/praxis-ed/curio/internal/domain"
	"github.com/praxis-ed/curio/internal/service"
	"github.com/praxis-ed/curio/internal/storage"
)

// IngestCmd returns the ingest command for one-off ingestion runs against
// the database, without going through the HTTP API.
func IngestCmd() *cobra.Command {
	var (
		title    string
		bookID   string
		owner    string
		category string
	)

	cmd := &cobra.Command{
		Use:   "ingest <path>",
		Short: "Ingest a textbook",
		Long:  "Parse a textbook through the fallback chain, persist its structure and index its content. Accepts a local path or an s3:// key.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(args[0], title, bookID, owner, category)
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Book title (defaults to the parsed title)")
	cmd.Flags().StringVar(&bookID, "book-id", "", "Book UUID (generated when omitted)")
	cmd.Flags().StringVar(&owner, "owner", "", "Owner user ID (empty = globally visible)")
	cmd.Flags().StringVarP(&category, "category", "c", "", "Book category: language, stem or history (detected when omitted)")

	return cmd
}

func runIngest(path, title, bookID, owner, category string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	req := service.IngestRequest{Title: title, OwnerID: owner}

	if bookID != "" {
		parsed, err := uuid.Parse(bookID)
		if err != nil {
			return fmt.Errorf("invalid book id: %w", err)
		}
		req.BookID = parsed
	}
	if category != "" {
		parsed, err := domain.ParseCategory(category)
		if err != nil {
			return err
		}
		req.Category = parsed
	}

	req.Path = path
	if strings.HasPrefix(path, "s3://") {
		local, err := stageFromS3(ctx, cfg, path)
		if err != nil {
			return err
		}
		req.Path = local
	}

	pool, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	svcs := buildStack(cfg, pool)
	if err := svcs.idx.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to ensure index schema: %w", err)
	}

	summary, err := svcs.ingestion.IngestBook(ctx, req)
	if err != nil {
		return err
	}

	output, _ := json.MarshalIndent(summary, "", "  ")
	fmt.Println(string(output))
	return nil
}

// stageFromS3 downloads the document and everything sharing its key prefix
// (layout sidecar, page rasters) into the local cache.
func stageFromS3(ctx context.Context, cfg *config.Config, s3Path string) (string, error) {
	if !cfg.HasS3() {
		return "", fmt.Errorf("s3 path given but S3 is not configured")
	}

	key := strings.TrimPrefix(s3Path, "s3://")
	key = strings.TrimPrefix(key, cfg.S3Bucket+"/")
	if key == "" {
		return "", fmt.Errorf("empty s3 key in %s", s3Path)
	}

	client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        cfg.S3Endpoint,
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.S3AccessKey,
		SecretAccessKey: cfg.S3SecretKey,
		Bucket:          cfg.S3Bucket,
		UsePathStyle:    true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create S3 client: %w", err)
	}

	paths, err := client.FetchPrefix(ctx, key, cfg.CacheDir)
	if err != nil {
		return "", fmt.Errorf("failed to stage %s: %w", s3Path, err)
	}
	log.Printf("staged %d objects from %s", len(paths), s3Path)

	for _, p := range paths {
		if strings.HasSuffix(p, "/"+keyBase(key)) || strings.HasSuffix(p, keyBase(key)) {
			return p, nil
		}
	}
	return "", fmt.Errorf("document %s not found under staged prefix", keyBase(key))
}

func keyBase(key string) string {
	if i := strings.LastIndex(key, "/"); i >= 0 {
		return key[i+1:]
	}
	return key
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/campusops/portal/internal/audit"
	"github.com/campusops/portal/internal/aws"
	"github.com/campusops/portal/internal/config"
	"github.com/campusops/portal/internal/database"
)

var (
	verifyPtr = flag.Bool("verify", false, "Walk the hash chain and report the first broken link")
	fromPtr   = flag.String("from", "", "Export window start (RFC 3339)")
	toPtr     = flag.String("to", "", "Export window end, exclusive (RFC 3339)")
	listPtr   = flag.Bool("list", false, "List archived exports in the bucket")
	linkPtr   = flag.String("link", "", "Key of an archive to generate a presigned URL for")
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	switch {
	case *verifyPtr:
		conn := mustConnect(cfg)
		defer conn.Close()

		result, err := audit.NewLog(conn).Verify(ctx)
		if err != nil {
			log.Fatalf("Failed to verify audit chain: %v", err)
		}
		if result.Valid {
			fmt.Printf("audit chain intact (%d entries checked)\n", result.Checked)
			return
		}
		log.Fatalf("audit chain broken at seq %d: %s", result.BrokenAtSeq, result.Reason)

	case *fromPtr != "" || *toPtr != "":
		from, err := time.Parse(time.RFC3339, *fromPtr)
		if err != nil {
			log.Fatalf("Invalid --from: %v", err)
		}
		to, err := time.Parse(time.RFC3339, *toPtr)
		if err != nil {
			log.Fatalf("Invalid --to: %v", err)
		}

		conn := mustConnect(cfg)
		defer conn.Close()
		store := mustStore(ctx, cfg)

		fmt.Printf("Exporting audit entries in [%s, %s) to %s...\n", from.Format(time.RFC3339), to.Format(time.RFC3339), store.Bucket())
		result, err := audit.NewExporter(conn, store).Export(ctx, from, to)
		if err != nil {
			log.Fatalf("Export failed: %v", err)
		}
		fmt.Printf("Wrote %d entries to %s\n", result.Count, result.Key)

	case *listPtr:
		store := mustStore(ctx, cfg)
		fmt.Printf("Listing archives in bucket %s...\n", store.Bucket())
		objects, err := store.ListObjects(ctx, "audit/")
		if err != nil {
			log.Fatalf("Failed to list objects: %v", err)
		}

		if len(objects) == 0 {
			fmt.Println("No archives found.")
			return
		}
		fmt.Printf("%-60s %-10s %s\n", "Key", "Size", "LastModified")
		for _, obj := range objects {
			fmt.Printf("%-60s %-10d %s\n", obj.Key, obj.Size, obj.LastModified.Format(time.RFC3339))
		}

	case *linkPtr != "":
		store := mustStore(ctx, cfg)
		url, err := store.PresignGet(ctx, *linkPtr, 15*time.Minute)
		if err != nil {
			log.Fatalf("Failed to generate presigned URL: %v", err)
		}
		fmt.Printf("Presigned URL for %s (expires in 15m):\n%s\n", *linkPtr, url)

	default:
		flag.Usage()
	}
}

func mustConnect(cfg *config.Config) *database.Database {
	conn, err := database.New(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	return conn
}

func mustStore(ctx context.Context, cfg *config.Config) *aws.S3Service {
	store, err := aws.NewS3Service(ctx, cfg.AWS)
	if err != nil {
		log.Fatalf("Failed to initialize S3 service: %v", err)
	}
	if cfg.AWS.EndpointURL != "" {
		if err := store.EnsureBucket(ctx); err != nil {
			log.Fatalf("Failed to ensure bucket exists: %v", err)
		}
	}
	return store
}

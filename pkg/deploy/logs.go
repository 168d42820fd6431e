package deploy

import (
	"context"
	"fmt"

	"cloud.google.com/go/logging/logadmin"
	"google.golang.org/api/iterator"

	"github.com/stackpilot/stackpilot/pkg/config"
)

// LogEntry is one formatted application log line.
type LogEntry struct {
	Timestamp string
	Severity  string
	Payload   string
}

// TailLogs fetches the most recent log entries for a Cloud Run service,
// newest first. Useful after a failed health check.
func TailLogs(ctx context.Context, cfg config.Resolved, service string, limit int) ([]LogEntry, error) {
	client, err := logadmin.NewClient(ctx, cfg.ProjectID, cfg.ClientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("failed to create logging client: %w", err)
	}
	defer client.Close()

	filter := fmt.Sprintf(
		`resource.type="cloud_run_revision" AND resource.labels.service_name=%q`, service)

	it := client.Entries(ctx, logadmin.Filter(filter), logadmin.NewestFirst())

	entries := make([]LogEntry, 0, limit)
	for len(entries) < limit {
		entry, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read log entries: %w", err)
		}

		entries = append(entries, LogEntry{
			Timestamp: entry.Timestamp.Format("2006-01-02 15:04:05"),
			Severity:  entry.Severity.String(),
			Payload:   fmt.Sprintf("%v", entry.Payload),
		})
	}

	return entries, nil
}

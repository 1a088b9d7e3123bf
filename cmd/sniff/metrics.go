package main

import (
	"context"
	"fmt"
	"strings"

	"csvsniff/internal/metrics"
	"csvsniff/internal/metrics/datadog"
)

// newMetrics returns the backend named by kind. The caller closes it with
// closeMetrics, which flushes anything buffered.
func newMetrics(ctx context.Context, kind, tagsCSV string) (metrics.Backend, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "none":
		return metrics.Nop{}, nil
	case "datadog":
		b, err := datadog.NewBackend(ctx, datadog.Options{
			JobName: "sniff",
			Tags:    datadog.ParseTagsCSV(tagsCSV),
		})
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unsupported metrics backend %q (want none or datadog)", kind)
	}
}

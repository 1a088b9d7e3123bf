package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"csvsniff/internal/metadata"
	"csvsniff/internal/storage"
)

func newHistoryCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [source]",
		Short: "List stored reports, newest first",
		Args:  usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			var source string
			if len(args) == 1 {
				source = args[0]
			}
			return runHistory(cmd, v, source)
		},
	}
	cmd.Flags().IntP("limit", "n", 20, "show at most this many reports (0: all)")
	return cmd
}

// historyEntry is the summary of one stored report.
type historyEntry struct {
	ID          string    `json:"id" yaml:"id"`
	Source      string    `json:"source" yaml:"source"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	Fingerprint string    `json:"fingerprint" yaml:"fingerprint"`
	Delimiter   string    `json:"delimiter" yaml:"delimiter"`
	NumFields   int       `json:"num_fields" yaml:"num_fields"`
	NumRecords  int64     `json:"num_records" yaml:"num_records"`
}

func runHistory(cmd *cobra.Command, v *viper.Viper, source string) error {
	if v.GetString("store") == "" {
		return usageError{errors.New("history needs --store")}
	}
	format, err := metadata.ParseFormat(v.GetString("format"))
	if err != nil {
		return usageError{err}
	}
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return usageError{err}
	}

	repo, err := openStore(cmd.Context(), v)
	if err != nil {
		return err
	}
	defer repo.Close()

	recs, err := repo.List(cmd.Context(), source, limit)
	if err != nil {
		return err
	}
	entries := make([]historyEntry, 0, len(recs))
	for _, r := range recs {
		entries = append(entries, toHistoryEntry(r))
	}
	return writeHistory(cmd.OutOrStdout(), format, entries)
}

func toHistoryEntry(r storage.Record) historyEntry {
	return historyEntry{
		ID:          r.ID.String(),
		Source:      r.Source,
		CreatedAt:   r.CreatedAt,
		Fingerprint: r.Fingerprint,
		Delimiter:   r.Delimiter,
		NumFields:   r.NumFields,
		NumRecords:  r.NumRecords,
	}
}

var (
	historyHeader = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	historyCell   = lipgloss.NewStyle().Padding(0, 1)
)

func writeHistory(w io.Writer, f metadata.Format, entries []historyEntry) error {
	switch f {
	case metadata.FormatJSON:
		b, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	case metadata.FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(entries); err != nil {
			return err
		}
		return enc.Close()
	}

	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "no stored reports")
		return err
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return historyHeader
			}
			return historyCell
		}).
		Headers("created", "source", "delimiter", "fields", "records", "fingerprint")
	for _, e := range entries {
		fp := e.Fingerprint
		if len(fp) > 12 {
			fp = fp[:12]
		}
		t.Row(
			e.CreatedAt.Format(time.RFC3339),
			e.Source,
			e.Delimiter,
			strconv.Itoa(e.NumFields),
			strconv.FormatInt(e.NumRecords, 10),
			fp,
		)
	}
	_, err := fmt.Fprintln(w, t.String())
	return err
}

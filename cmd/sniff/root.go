package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"csvsniff/internal/dialect"
	"csvsniff/internal/metadata"
	"csvsniff/internal/metrics"
	"csvsniff/internal/sniffer"
	"csvsniff/internal/storage"
)

const envPrefix = "SNIFF"

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "sniff [flags] <path|->",
		Short: "Infer the dialect and column types of a CSV file",
		Long: `Reads a bounded sample of a delimited text file (plain, gzip or xz) and
reports its delimiter, quote character, header, preamble, record count and
the type of every column. Use "-" to read standard input.`,
		Args:          usageArgs(cobra.ExactArgs(1)),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(v, cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSniff(cmd, v, args[0])
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	pf := cmd.PersistentFlags()
	pf.String("config", "", "config file (yaml, toml or json)")
	pf.String("log-level", "warn", "log level (debug, info, warn, error)")
	pf.String("log-format", "text", "log format (text, json)")
	pf.String("format", "table", "output format (table, json, yaml)")
	pf.Duration("timeout", 60*time.Second, "abort after this long")
	pf.String("store", "", "report store backend (sqlite, postgres, mssql)")
	pf.String("dsn", "", "report store DSN (highest priority)")
	pf.String("table", storage.DefaultTable, "report store table")

	f := cmd.Flags()
	f.Int("rows", sniffer.DefaultSampleRows, "sample at most this many lines (negative: no line cap)")
	f.Int("bytes", 0, "sample at most this many bytes (0: 1 MiB, negative: no byte cap)")
	f.String("delimiter", "", `force the delimiter (e.g. ";", "tab", "\t")`)
	f.String("quote", "", "force the quote character")
	f.String("date-pref", "auto", "date layout preference (auto, eu, us, iso)")
	f.StringSlice("date-pattern", nil, "Go time layouts tried instead of --date-pref (repeatable)")
	f.StringSlice("null", nil, "values read as null (repeatable; default: empty, NA, N/A, NULL, ...)")
	f.Bool("no-types", false, "skip type inference; report every field as text")
	f.Bool("strict-encoding", false, "fail when the sample is not valid UTF-8")
	f.Bool("strict-delimiter", false, "fail when delimiters tie instead of picking by priority")
	f.Bool("cached", false, "reuse the stored report for an identical sample (needs --store)")
	f.String("metrics", "none", "metrics backend (none, datadog)")
	f.String("metrics-tags", "", "extra metric tags, comma separated (e.g. env:prod,team:data)")

	cmd.AddCommand(newHistoryCmd(v))
	return cmd
}

// usageArgs marks argument validation failures as usage errors.
func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}

// loadConfig binds every flag to v, then layers SNIFF_* env vars and the
// optional config file underneath them.
func loadConfig(v *viper.Viper, cmd *cobra.Command) error {
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return usageError{fmt.Errorf("read config %s: %w", path, err)}
		}
	}
	return nil
}

func snifferConfig(v *viper.Viper) (sniffer.Config, error) {
	delim, err := parseByteFlag(v, "delimiter")
	if err != nil {
		return sniffer.Config{}, err
	}
	quote, err := parseByteFlag(v, "quote")
	if err != nil {
		return sniffer.Config{}, err
	}
	cfg := sniffer.Config{
		SampleRows:           v.GetInt("rows"),
		SampleBytes:          v.GetInt("bytes"),
		Delimiter:            delim,
		Quote:                quote,
		DatePatterns:         v.GetStringSlice("date-pattern"),
		DatePreference:       v.GetString("date-pref"),
		DisableTypeInference: v.GetBool("no-types"),
		StrictEncoding:       v.GetBool("strict-encoding"),
		StrictDelimiter:      v.GetBool("strict-delimiter"),
	}
	if nulls := v.GetStringSlice("null"); len(nulls) > 0 {
		cfg.NullSentinels = nulls
	}
	if err := cfg.Validate(); err != nil {
		return sniffer.Config{}, usageError{err}
	}
	return cfg, nil
}

func parseByteFlag(v *viper.Viper, key string) (byte, error) {
	b, err := dialect.ParseByte(v.GetString(key))
	if err != nil {
		return 0, usageError{fmt.Errorf("--%s: %w", key, err)}
	}
	return b, nil
}

func runSniff(cmd *cobra.Command, v *viper.Viper, path string) error {
	log, err := newLogger(cmd.ErrOrStderr(), v.GetString("log-level"), v.GetString("log-format"))
	if err != nil {
		return usageError{err}
	}
	format, err := metadata.ParseFormat(v.GetString("format"))
	if err != nil {
		return usageError{err}
	}
	cfg, err := snifferConfig(v)
	if err != nil {
		return err
	}
	if v.GetBool("cached") && v.GetString("store") == "" {
		return usageError{errors.New("--cached needs --store")}
	}
	if v.GetBool("cached") && path == "-" {
		return usageError{errors.New("--cached cannot read standard input twice; pass a path")}
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), v.GetDuration("timeout"))
	defer cancel()

	m, err := newMetrics(ctx, v.GetString("metrics"), v.GetString("metrics-tags"))
	if err != nil {
		return usageError{err}
	}
	defer func() {
		if err := closeMetrics(m); err != nil {
			log.WithError(err).Warn("metrics flush failed")
		}
	}()
	cfg.Logger = log
	cfg.Metrics = m

	repo, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	if repo != nil {
		defer repo.Close()
	}

	source := path
	if repo != nil && v.GetBool("cached") {
		rep, ok, err := cachedReport(ctx, repo, path, cfg)
		if err != nil {
			return err
		}
		if ok {
			log.WithFields(logrus.Fields{"source": source, "fingerprint": rep.Fingerprint}).Info("using stored report")
			rep.Source = source
			return rep.Write(cmd.OutOrStdout(), format)
		}
	}

	var md *metadata.Metadata
	if path == "-" {
		source = "stdin"
		md, err = sniffer.Sniff(ctx, cmd.InOrStdin(), cfg)
	} else {
		md, err = sniffer.SniffPath(ctx, path, cfg)
	}
	if err != nil {
		return err
	}
	rep := md.Report(source)

	if repo != nil {
		rec, err := storage.NewRecord(rep)
		if err != nil {
			return err
		}
		if err := repo.Save(ctx, rec); err != nil {
			return fmt.Errorf("save report: %w", err)
		}
		log.WithFields(logrus.Fields{"id": rec.ID, "fingerprint": rec.Fingerprint}).Info("report stored")
	}
	return rep.Write(cmd.OutOrStdout(), format)
}

// cachedReport looks up the newest stored report whose sample fingerprint
// matches path's.
func cachedReport(ctx context.Context, repo storage.Repository, path string, cfg sniffer.Config) (metadata.Report, bool, error) {
	fp, err := sniffer.FingerprintPath(ctx, path, cfg)
	if err != nil {
		return metadata.Report{}, false, err
	}
	rec, err := repo.Latest(ctx, fp)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return metadata.Report{}, false, nil
	case err != nil:
		return metadata.Report{}, false, fmt.Errorf("lookup report: %w", err)
	}
	rep, err := rec.Decode()
	if err != nil {
		return metadata.Report{}, false, err
	}
	return rep, true, nil
}

// openStore returns nil when no --store is configured.
func openStore(ctx context.Context, v *viper.Viper) (storage.Repository, error) {
	kind := strings.ToLower(strings.TrimSpace(v.GetString("store")))
	if kind == "" {
		return nil, nil
	}
	kind = normalizeBackend(kind)
	dsn, ok, err := resolveDSN(kind, strings.TrimSpace(v.GetString("dsn")))
	if err != nil {
		return nil, usageError{err}
	}
	if !ok {
		if kind != "sqlite" {
			return nil, usageError{fmt.Errorf("--store %s needs --dsn, SNIFF_DSN or DSN_* variables", kind)}
		}
		dsn, _, _ = buildSQLiteDSN("", "")
	}

	repo, err := storage.New(ctx, storage.Config{Kind: kind, DSN: dsn, Table: v.GetString("table")})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", kind, err)
	}
	if err := repo.EnsureSchema(ctx); err != nil {
		repo.Close()
		return nil, err
	}
	return repo, nil
}

func newLogger(w io.Writer, level, format string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	log := logrus.New()
	log.SetOutput(w)
	log.SetLevel(lvl)
	switch strings.ToLower(format) {
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("invalid log format %q (want text or json)", format)
	}
	return log, nil
}

func closeMetrics(b metrics.Backend) error {
	if c, ok := b.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

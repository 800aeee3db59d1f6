package main

import (
	"fmt"
	"io"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/p-blackswan/perfreview/internal/cache"
	"github.com/p-blackswan/perfreview/internal/config"
	"github.com/p-blackswan/perfreview/internal/docstore"
	"github.com/p-blackswan/perfreview/internal/models"
)

type clearFlags struct {
	owner string
	repo  string
	typ   string
	actor string
	which string
}

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the local caches",
	}
	cmd.AddCommand(newCacheClearCmd())
	return cmd
}

func newCacheClearCmd() *cobra.Command {
	var f clearFlags
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove cached details and assessments",
		Long: `Remove cached entries below owner/repo/type. Omitted trailing parts widen
the scope; with no flags every entry is removed.

Usage:
  perfreview cache clear
  perfreview cache clear --owner acme --repo widgets --type pull_request
  perfreview cache clear --which analyses --actor octocat`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return clearCaches(cmd.OutOrStdout(), afero.NewOsFs(), cfg, &f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.owner, "owner", "", "Repository owner")
	fl.StringVar(&f.repo, "repo", "", "Repository name (requires --owner)")
	fl.StringVar(&f.typ, "type", "", "Contribution type: issue, pull_request or discussion (requires --repo)")
	fl.StringVar(&f.actor, "actor", "", "Only clear this actor's assessments (default: every actor)")
	fl.StringVar(&f.which, "which", "all", "Which cache to clear: details, analyses or all")
	return cmd
}

func clearCaches(out io.Writer, fs afero.Fs, cfg *config.Config, f *clearFlags) error {
	typ := models.ContributionType(f.typ)
	if f.typ != "" && !typ.Valid() {
		return fmt.Errorf("unknown contribution type %q", f.typ)
	}
	var details, analyses bool
	switch f.which {
	case "all":
		details, analyses = true, true
	case "details":
		details = true
	case "analyses":
		analyses = true
	default:
		return fmt.Errorf("unknown cache %q (want details, analyses or all)", f.which)
	}
	logger := newLogger(cfg, io.Discard)

	if details {
		dc := cache.NewDetailCache[models.Detail](docstore.New(fs, cfg.DetailCacheDir()), cache.WithLogger(logger))
		if err := dc.Clear(f.owner, f.repo, typ); err != nil {
			return err
		}
		fmt.Fprintf(out, "cleared details %s\n", scope(f))
	}

	if analyses {
		store := docstore.New(fs, cfg.AnalysisCacheDir())
		actors := []string{f.actor}
		if f.actor == "" {
			var err error
			if actors, err = store.Children(nil); err != nil {
				return fmt.Errorf("listing cached actors: %w", err)
			}
		}
		for _, actor := range actors {
			ac := cache.NewAnalysisCache[models.Record](store, actor, cache.WithLogger(logger))
			if err := ac.Clear(f.owner, f.repo, typ); err != nil {
				return err
			}
			fmt.Fprintf(out, "cleared analyses for %s %s\n", actor, scope(f))
		}
	}
	return nil
}

func scope(f *clearFlags) string {
	s := "*"
	for _, part := range []string{f.owner, f.repo, f.typ} {
		if part == "" {
			break
		}
		if s == "*" {
			s = part
		} else {
			s += "/" + part
		}
	}
	return s
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/meshintel/deep-research/internal/fetch"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [url ...]",
	Short: "Download documents by URL into the data directory",
	Long: `Fetch downloads each URL with the pipeline's acquisition rules: scheme
and host validation, content-type and size checks against the configured
ceiling, and classified failures. One bad URL does not stop the rest.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg := buildConfig()
	log := newLogger()

	destDir := filepath.Join(cfg.Store.DataDir, "documents")
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", destDir, err)
	}

	f := &fetch.Fetcher{
		Config: cfg.Acquisition,
		Log:    log.With().Str("component", "fetch").Logger(),
	}

	failures := 0
	for _, uri := range args {
		data, err := f.Fetch(cmd.Context(), uri)
		if err != nil {
			failures++
			fmt.Fprintf(os.Stderr, "failed: %s (%s)\n", uri, fetch.KindOf(err))
			continue
		}

		dest := filepath.Join(destDir, documentFilename(uri))
		if err := fetch.Save(data, dest); err != nil {
			failures++
			fmt.Fprintf(os.Stderr, "failed: %s (%v)\n", uri, err)
			continue
		}
		fmt.Printf("%s\t%d bytes\n", dest, len(data))
	}

	if failures == len(args) {
		return fmt.Errorf("all %d downloads failed", len(args))
	}
	return nil
}

// documentFilename derives a filesystem-safe name from the URL path,
// defaulting to document.pdf when the path gives nothing usable.
func documentFilename(uri string) string {
	name := "document.pdf"
	if u, err := url.Parse(uri); err == nil {
		if base := filepath.Base(u.Path); base != "." && base != "/" && base != "" {
			name = base
		}
	}
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		name += ".pdf"
	}
	return name
}

// Command pydl downloads Python distributions and their dependencies
// into a local directory, without installing anything.
package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/frederic-klein/pydl/internal/cache"
	"github.com/frederic-klein/pydl/internal/config"
	"github.com/frederic-klein/pydl/internal/dist"
	"github.com/frederic-klein/pydl/internal/downloader"
	"github.com/frederic-klein/pydl/internal/index"
	"github.com/frederic-klein/pydl/internal/metadata"
	"github.com/frederic-klein/pydl/internal/pep425"
	"github.com/frederic-klein/pydl/internal/pep440"
	"github.com/frederic-klein/pydl/internal/report"
	"github.com/frederic-klein/pydl/internal/reqfile"
	"github.com/frederic-klein/pydl/internal/resolver"
	"github.com/frederic-klein/pydl/internal/selector"
)

const version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

// printError renders a failure the way package tools report them. A
// failed version match gets the summary second line.
func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "ERROR: %s\n", capitalize(err.Error()))
	var noCand *selector.NoCandidateError
	if errors.As(err, &noCand) {
		fmt.Fprintf(w, "ERROR: No matching distribution found for %s\n", noCand.Requirement)
	}
}

func capitalize(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           "pydl",
		Short:         "pydl downloads Python distributions without installing them",
		Long:          "pydl resolves Python requirements against package indexes and find-links locations and downloads the selected wheels and sdists, dependencies included.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	root.AddCommand(newDownloadCmd(&verbose))
	return root
}

type downloadOptions struct {
	dest                 string
	requirements         []string
	indexURL             string
	extraIndexURLs       []string
	noIndex              bool
	findLinks            []string
	platforms            []string
	pythonVersion        string
	implementation       string
	abis                 []string
	noBinary             []string
	onlyBinary           []string
	preferBinary         bool
	noDeps               bool
	ignoreRequiresPython bool
	pre                  bool
	timeout              int
	retries              int
	parallel             int
	reportPath           string
	cacheDir             string
	noCache              bool
	configPath           string
}

func newDownloadCmd(verbose *bool) *cobra.Command {
	opts := &downloadOptions{}

	cmd := &cobra.Command{
		Use:   "download [flags] [requirement ...]",
		Short: "Download distributions and their dependencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDownload(cmd, opts, args, *verbose)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&opts.dest, "dest", "d", "", "Directory to download into")
	fl.StringArrayVarP(&opts.requirements, "requirement", "r", nil, "Requirements file (repeatable)")
	fl.StringVarP(&opts.indexURL, "index-url", "i", "", "Base URL of the simple index")
	fl.StringArrayVar(&opts.extraIndexURLs, "extra-index-url", nil, "Additional index URL (repeatable)")
	fl.BoolVar(&opts.noIndex, "no-index", false, "Ignore indexes, use only --find-links")
	fl.StringArrayVarP(&opts.findLinks, "find-links", "f", nil, "Directory or page listing artifacts (repeatable)")
	fl.StringArrayVar(&opts.platforms, "platform", nil, "Target platform tag (repeatable)")
	fl.StringVar(&opts.pythonVersion, "python-version", "", `Target Python version ("3", "311", "3.11")`)
	fl.StringVar(&opts.implementation, "implementation", "", `Target interpreter implementation ("cp", "pp", ...)`)
	fl.StringArrayVar(&opts.abis, "abi", nil, "Target ABI tag (repeatable)")
	fl.StringArrayVar(&opts.noBinary, "no-binary", nil, `Do not use wheels for these projects (":all:", ":none:", or names)`)
	fl.StringArrayVar(&opts.onlyBinary, "only-binary", nil, "Do not use sdists for these projects")
	fl.BoolVar(&opts.preferBinary, "prefer-binary", false, "Prefer older wheels over newer source distributions")
	fl.BoolVar(&opts.noDeps, "no-deps", false, "Do not follow dependencies")
	fl.BoolVar(&opts.ignoreRequiresPython, "ignore-requires-python", false, "Ignore Requires-Python constraints")
	fl.BoolVar(&opts.pre, "pre", false, "Allow prerelease versions")
	fl.IntVar(&opts.timeout, "timeout", 0, "HTTP timeout in seconds")
	fl.IntVar(&opts.retries, "retries", 0, "Retries for failed downloads")
	fl.IntVar(&opts.parallel, "parallel", 0, "Concurrent downloads")
	fl.StringVar(&opts.reportPath, "report", "", "Write a JSON resolution report to this file")
	fl.StringVar(&opts.cacheDir, "cache-dir", "", "Metadata and index cache directory")
	fl.BoolVar(&opts.noCache, "no-cache", false, "Disable caching")
	fl.StringVar(&opts.configPath, "config", "", "Configuration file")
	return cmd
}

// newLogger creates the session logger. Timestamps are formatted as
// "HH:MM:SS.ms"; the run id correlates resolution, metadata, and fetch
// lines of one invocation.
func newLogger(verbose bool, runID string) *log.Logger {
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
	return logger.With("run", runID)
}

func runDownload(cmd *cobra.Command, opts *downloadOptions, args []string, verbose bool) error {
	runID := uuid.NewString()[:8]
	logger := newLogger(verbose, runID)

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if !flags.Changed("timeout") {
		opts.timeout = cfg.Timeout
	}
	if !flags.Changed("retries") {
		opts.retries = cfg.Retries
	}
	if !flags.Changed("parallel") {
		opts.parallel = cfg.Parallel
	}
	if opts.dest == "" {
		opts.dest = cfg.Dest
	}
	if opts.indexURL == "" {
		opts.indexURL = cfg.IndexURL
	}
	if opts.cacheDir == "" {
		opts.cacheDir = cfg.CacheDir
	}
	opts.findLinks = append(cfg.FindLinks, opts.findLinks...)
	opts.extraIndexURLs = append(cfg.ExtraIndexURLs, opts.extraIndexURLs...)
	opts.preferBinary = opts.preferBinary || cfg.PreferBinary

	requirements, fileOpts, err := collectRequirements(args, opts.requirements)
	if err != nil {
		return err
	}
	if len(requirements) == 0 {
		if len(opts.requirements) > 0 {
			logger.Info("no requirements to download")
			return nil
		}
		return errors.New(`You must give at least one requirement to download (see "pydl help download")`)
	}

	if fileOpts.IndexURL != "" && !flags.Changed("index-url") {
		opts.indexURL = fileOpts.IndexURL
	}
	opts.noIndex = opts.noIndex || fileOpts.NoIndex
	opts.findLinks = append(opts.findLinks, fileOpts.FindLinks...)
	opts.extraIndexURLs = append(opts.extraIndexURLs, fileOpts.ExtraIndexURLs...)
	opts.preferBinary = opts.preferBinary || fileOpts.PreferBinary
	opts.pre = opts.pre || fileOpts.Pre

	env := pep425.Environment{
		Platforms:      opts.platforms,
		PythonVersion:  opts.pythonVersion,
		Implementation: opts.implementation,
		ABIs:           opts.abis,
	}
	tags, err := pep425.Supported(env)
	if err != nil {
		return err
	}

	var targetPython *pep440.Version
	if opts.pythonVersion != "" {
		v, err := targetPythonVersion(opts.pythonVersion)
		if err != nil {
			return err
		}
		targetPython = &v
	}

	format := selector.NewFormatControl()
	for _, v := range opts.noBinary {
		format.DisallowBinary(v)
	}
	for _, v := range opts.onlyBinary {
		format.RequireBinary(v)
	}
	for _, d := range fileOpts.Format {
		if d.Require {
			format.RequireBinary(d.Value)
		} else {
			format.DisallowBinary(d.Value)
		}
	}

	store, err := openCache(opts, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	client := &http.Client{Timeout: time.Duration(opts.timeout) * time.Second}
	dl := downloader.New(downloader.Options{Client: client, Retries: opts.retries, Logger: logger})

	scratch := filepath.Join(os.TempDir(), "pydl-"+runID)
	defer os.RemoveAll(scratch)
	meta := metadata.NewResolver(metadata.Options{
		Client:     client,
		Cache:      store,
		Downloader: dl,
		ScratchDir: scratch,
		Logger:     logger,
	})

	var sources []index.Source
	for _, location := range opts.findLinks {
		sources = append(sources, index.NewFlat(location, client, logger))
	}
	if !opts.noIndex {
		for _, u := range append([]string{opts.indexURL}, opts.extraIndexURLs...) {
			if u == "" {
				continue
			}
			sources = append(sources, index.NewSimple(u, index.SimpleOptions{
				Client: client,
				Cache:  store,
				Logger: logger,
			}))
		}
	}

	resolutions, err := resolver.New(resolver.Options{
		Sources:  sources,
		Metadata: meta,
		Policy: selector.Policy{
			Tags:                 tags,
			Format:               format,
			PreferBinary:         opts.preferBinary,
			AllowPrerelease:      opts.pre,
			TargetPython:         targetPython,
			IgnoreRequiresPython: opts.ignoreRequiresPython,
		},
		Env:    env,
		NoDeps: opts.noDeps,
		Logger: logger,
	}).Resolve(cmd.Context(), requirements)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(opts.dest, 0o755); err != nil {
		return fmt.Errorf("creating download directory: %w", err)
	}
	jobs := make([]downloader.Job, len(resolutions))
	for i, res := range resolutions {
		src := res.Candidate.Link.URL
		// An artifact already fetched for its metadata is read from the
		// scratch copy instead of hitting the origin again.
		if local, ok := meta.FetchedPath(src); ok {
			src = local
		}
		jobs[i] = downloader.Job{
			URL:      src,
			DestPath: filepath.Join(opts.dest, res.Candidate.Link.Filename),
			Expected: res.Candidate.Link.Hash,
		}
	}
	results, err := dl.FetchAll(cmd.Context(), jobs, opts.parallel)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	names := make([]string, len(resolutions))
	for i, result := range results {
		names[i] = resolutions[i].Candidate.Name
		if result.Reused {
			fmt.Fprintf(out, "File was already downloaded %s\n", result.Job.DestPath)
			continue
		}
		fmt.Fprintf(out, "Saved %s\n", result.Job.DestPath)
	}
	if len(names) > 0 {
		fmt.Fprintf(out, "Successfully downloaded %s\n", strings.Join(names, " "))
	}

	if opts.reportPath != "" {
		digests := make(map[string]string, len(results))
		for i, result := range results {
			digests[resolutions[i].Candidate.Link.URL] = result.SHA256
		}
		if err := writeReport(opts.reportPath, report.Build(resolutions, digests)); err != nil {
			return err
		}
		logger.Debug("wrote report", "path", opts.reportPath)
	}
	return nil
}

// collectRequirements gathers command line requirements first, then the
// requirements files in order, merging their embedded options.
func collectRequirements(args, files []string) ([]dist.Requirement, reqfile.Options, error) {
	var requirements []dist.Requirement
	var fileOpts reqfile.Options

	for _, arg := range args {
		req, err := dist.ParseRequirement(arg)
		if err != nil {
			return nil, fileOpts, err
		}
		requirements = append(requirements, req)
	}
	for _, path := range files {
		result, err := reqfile.Parse(path)
		if err != nil {
			return nil, fileOpts, err
		}
		requirements = append(requirements, result.Requirements...)

		if result.Options.IndexURL != "" {
			fileOpts.IndexURL = result.Options.IndexURL
		}
		fileOpts.ExtraIndexURLs = append(fileOpts.ExtraIndexURLs, result.Options.ExtraIndexURLs...)
		fileOpts.NoIndex = fileOpts.NoIndex || result.Options.NoIndex
		fileOpts.FindLinks = append(fileOpts.FindLinks, result.Options.FindLinks...)
		fileOpts.PreferBinary = fileOpts.PreferBinary || result.Options.PreferBinary
		fileOpts.Pre = fileOpts.Pre || result.Options.Pre
		fileOpts.Format = append(fileOpts.Format, result.Options.Format...)
	}
	return requirements, fileOpts, nil
}

func writeReport(path string, rep *report.Report) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report file: %w", err)
	}
	if err := report.NewEmitter(file).Emit(rep); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("writing report file: %w", err)
	}
	return nil
}

func openCache(opts *downloadOptions, cfg config.Config) (cache.Cache, error) {
	if opts.noCache {
		return cache.NewNull(), nil
	}
	if cfg.RedisURL != "" {
		return cache.NewRedis(cfg.RedisURL, "pydl")
	}
	if opts.cacheDir != "" {
		return cache.NewFile(opts.cacheDir)
	}
	return cache.NewNull(), nil
}

// targetPythonVersion turns a --python-version value into the full
// three-part version the Requires-Python check compares against:
// "33" becomes 3.3.0, "3.11" becomes 3.11.0.
func targetPythonVersion(s string) (pep440.Version, error) {
	var parts []string
	switch {
	case strings.Contains(s, "."):
		parts = strings.Split(s, ".")
	case len(s) == 1:
		parts = []string{s}
	default:
		parts = []string{s[:1], s[1:]}
	}
	for len(parts) < 3 {
		parts = append(parts, "0")
	}
	v, err := pep440.Parse(strings.Join(parts[:3], "."))
	if err != nil {
		return pep440.Version{}, fmt.Errorf("invalid --python-version %q", s)
	}
	return v, nil
}

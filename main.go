// lokedit: localization key editor. Imports JSON translation files, keeps a
// master key list in sync with them and exports the set as a zip archive.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/minios-linux/lokedit/config"
	"github.com/minios-linux/lokedit/editor"
	"github.com/minios-linux/lokedit/export"
	"github.com/minios-linux/lokedit/i18n"
	"github.com/minios-linux/lokedit/ingest"
	"github.com/minios-linux/lokedit/langmeta"
	"github.com/minios-linux/lokedit/locales"
	"github.com/minios-linux/lokedit/logging"
	"github.com/minios-linux/lokedit/server"
	"github.com/minios-linux/lokedit/store"
	"github.com/minios-linux/lokedit/translation"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ANSI colors
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[0;31m"
	colorGreen  = "\033[0;32m"
	colorYellow = "\033[1;33m"
	colorBlue   = "\033[0;34m"
)

func logInfo(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorBlue+"[INFO]"+colorReset+" "+format+"\n", args...)
}

func logSuccess(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorGreen+"[OK]"+colorReset+" "+format+"\n", args...)
}

func logWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorYellow+"[WARN]"+colorReset+" "+format+"\n", args...)
}

func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorRed+"[ERROR]"+colorReset+" "+format+"\n", args...)
}

// ---------------------------------------------------------------------------
// Global flags and state
// ---------------------------------------------------------------------------

var (
	rootDir string
	debug   bool

	cfg    *config.Config
	logger *slog.Logger
)

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "lokedit",
		Short: "Localization key editor",
		Long: `lokedit: localization key editor.

Imports flat JSON translation files, merges their keys into one master key
list, edits keys, languages and values, and exports every translation as a
<name>.json entry of a zip archive.

Commands:
  keys        List, add and delete keys
  lang        List, add and delete translations
  import      Import JSON translation files
  set         Set one translation value
  export      Write the zip archive
  status      Show keys and per-translation coverage
  language    Show or set the UI language
  locales     Show the locale catalogue
  serve       Serve the HTTP API

State is kept in the store configured in .lokedit.yaml or LOKEDIT_STORE_*
(default: pebble under $XDG_DATA_HOME/lokedit/state).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup()
		},
	}

	// Global persistent flags: inherited by all subcommands
	root.PersistentFlags().StringVar(&rootDir, "root", ".", "Directory holding .lokedit.yaml and .env")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	root.AddCommand(
		newKeysCmd(),
		newLangCmd(),
		newImportCmd(),
		newSetCmd(),
		newExportCmd(),
		newStatusCmd(),
		newLanguageCmd(),
		newLocalesCmd(),
		newServeCmd(),
		newVersionCmd(),
	)

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logError("%v", err)
		os.Exit(1)
	}
}

// setup loads the configuration and initializes logging.
func setup() error {
	var err error
	cfg, err = config.Load(rootDir)
	if err != nil {
		return err
	}
	logger = logging.New(debug || cfg.Debug, os.Stderr)
	return nil
}

// openEditor opens the configured store and loads the editor from it. The
// UI language of lokedit's own messages follows the stored language.
func openEditor(ctx context.Context) (*editor.Manager, store.Store, error) {
	st, err := store.Open(cfg.Store)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s store: %w", cfg.Store.Backend, err)
	}
	m, err := editor.New(ctx, st,
		editor.WithLogger(logger),
		editor.WithImportConcurrency(cfg.ImportConcurrency),
	)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	i18n.Init(m.Language())
	return m, st, nil
}

// withEditor runs fn with an open editor and closes the store afterwards.
func withEditor(cmd *cobra.Command, fn func(ctx context.Context, m *editor.Manager, st store.Store) error) error {
	ctx := cmd.Context()
	m, st, err := openEditor(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn("closing store", "err", err)
		}
	}()
	return fn(ctx, m, st)
}

// ---------------------------------------------------------------------------
// version (display version information)
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display version, commit hash, and build date.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("lokedit version %s\n", version)
			fmt.Printf("  commit:    %s\n", commit)
			fmt.Printf("  built:     %s\n", date)
		},
	}

	return cmd
}

// ---------------------------------------------------------------------------
// keys
// ---------------------------------------------------------------------------

func newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "List keys in order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEditor(cmd, func(ctx context.Context, m *editor.Manager, _ store.Store) error {
				keys := m.Keys()
				if len(keys) == 0 {
					logInfo("%s", i18n.T("No keys yet."))
					return nil
				}
				for _, k := range keys {
					fmt.Println(k)
				}
				return nil
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add KEY...",
		Short: "Append keys to the key list",
		Long: `Append keys to the key list. Empty keys and keys already present are
skipped. Translations are not modified.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEditor(cmd, func(ctx context.Context, m *editor.Manager, _ store.Store) error {
				for _, key := range args {
					added, err := m.AddKey(ctx, key)
					if err != nil {
						return err
					}
					if added {
						logSuccess(i18n.T("Added key %q"), key)
					} else {
						logWarning(i18n.T("Skipped key %q (empty or already present)"), key)
					}
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "rm KEY...",
		Aliases: []string{"delete"},
		Short:   "Delete keys from the key list and from every translation",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEditor(cmd, func(ctx context.Context, m *editor.Manager, _ store.Store) error {
				for _, key := range args {
					if err := m.DeleteKey(ctx, key); err != nil {
						return err
					}
					logSuccess(i18n.T("Deleted key %q"), key)
				}
				return nil
			})
		},
	})

	return cmd
}

// ---------------------------------------------------------------------------
// lang
// ---------------------------------------------------------------------------

func newLangCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lang",
		Short: "List translations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEditor(cmd, func(ctx context.Context, m *editor.Manager, _ store.Store) error {
				ts := m.Translations()
				if len(ts) == 0 {
					logInfo("%s", i18n.T("No translations yet."))
					return nil
				}
				for _, t := range ts {
					fmt.Printf("%s\t%d\n", t.Name, t.Data.Len())
				}
				return nil
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add NAME",
		Short: "Add an empty translation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEditor(cmd, func(ctx context.Context, m *editor.Manager, _ store.Store) error {
				added, err := m.AddLanguage(ctx, args[0])
				if err != nil {
					return err
				}
				if !added {
					return errors.New(i18n.T("translation name must not be empty"))
				}
				logSuccess(i18n.T("Added translation %q"), args[0])
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "rm NAME",
		Aliases: []string{"delete"},
		Short:   "Delete the first translation with this name",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEditor(cmd, func(ctx context.Context, m *editor.Manager, _ store.Store) error {
				removed, err := m.DeleteTranslation(ctx, args[0])
				if err != nil {
					return err
				}
				if !removed {
					logWarning(i18n.T("No translation named %q"), args[0])
					return nil
				}
				logSuccess(i18n.T("Deleted translation %q"), args[0])
				return nil
			})
		},
	})

	return cmd
}

// ---------------------------------------------------------------------------
// import
// ---------------------------------------------------------------------------

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE...",
		Short: "Import JSON translation files",
		Long: `Import JSON translation files. Each file becomes a translation named after
the file (fr.json -> fr) and its keys are merged into the key list. Files are
read concurrently; a broken file is reported and skipped.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEditor(cmd, func(ctx context.Context, m *editor.Manager, _ store.Store) error {
				return runImport(ctx, m, afero.NewOsFs(), args, progressOut())
			})
		},
	}
}

// runImport imports paths and prints one result line per file. Read
// progress is drawn on progress when it is not nil.
func runImport(ctx context.Context, m *editor.Manager, fs afero.Fs, paths []string, progress io.Writer) error {
	sources := make([]ingest.Source, len(paths))
	for i, p := range paths {
		sources[i] = ingest.FileSource{FS: fs, Path: p}
	}

	var onProgress editor.ProgressFunc
	if progress != nil {
		onProgress = importProgress(progress)
	}
	results := m.ImportFilesWithProgress(ctx, sources, onProgress)
	if progress != nil {
		fmt.Fprint(progress, clearLine)
	}

	var errs []error
	for i, res := range results {
		if res.Err != nil {
			logError(i18n.T("Failed to import %s: %v"), paths[i], res.Err)
			errs = append(errs, res.Err)
			continue
		}
		size := ""
		if n := sources[i].Size(); n >= 0 {
			size = ", " + humanize.Bytes(uint64(n))
		}
		logSuccess(i18n.T("Imported %s as %q (%d entries, %d new keys%s)"),
			paths[i], res.Translation.Name, res.Translation.Data.Len(), len(res.NewKeys), size)
	}

	if len(errs) > 0 {
		return fmt.Errorf(i18n.N("%d file failed to import", "%d files failed to import", len(errs)), len(errs))
	}
	return nil
}

const clearLine = "\r\033[K"

// progressOut returns stderr when it is a terminal, nil otherwise.
func progressOut() io.Writer {
	if isatty.IsTerminal(os.Stderr.Fd()) {
		return os.Stderr
	}
	return nil
}

// importProgress redraws a single status line with the latest read event.
func importProgress(w io.Writer) editor.ProgressFunc {
	var mu sync.Mutex
	return func(_ int, name string, p ingest.Progress) {
		mu.Lock()
		defer mu.Unlock()
		if p.Total > 0 {
			fmt.Fprintf(w, "%s  %s %s", clearLine, progressBar(int(p.Loaded*100/p.Total), 20), name)
			return
		}
		fmt.Fprintf(w, "%s  %s %s", clearLine, humanize.Bytes(uint64(p.Loaded)), name)
	}
}

// ---------------------------------------------------------------------------
// set
// ---------------------------------------------------------------------------

func newSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set NAME KEY VALUE",
		Short: "Set one translation value",
		Long: `Set KEY to VALUE in the translation NAME. A key missing from the key list
is appended to it.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEditor(cmd, func(ctx context.Context, m *editor.Manager, _ store.Store) error {
				if err := m.SetValue(ctx, args[0], args[1], args[2]); err != nil {
					return err
				}
				logSuccess(i18n.T("Set %s in %s"), args[1], args[0])
				return nil
			})
		},
	}
}

// ---------------------------------------------------------------------------
// export
// ---------------------------------------------------------------------------

func newExportCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every translation into a zip archive",
		Long: `Write a zip archive with one <name>.json entry per translation.

The default file name is locales_<Y>_<M>_<D>__<h>_<m>.zip in the current
directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEditor(cmd, func(ctx context.Context, m *editor.Manager, _ store.Store) error {
				if output == "" {
					output = export.FileName(time.Now())
				}
				return runExport(ctx, m, afero.NewOsFs(), output)
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Archive path (default: timestamped name)")

	return cmd
}

func runExport(ctx context.Context, m *editor.Manager, fs afero.Fs, output string) error {
	ts := m.Translations()
	data, err := export.Bytes(ctx, ts)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(output); dir != "." {
		if err := fs.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	if err := afero.WriteFile(fs, output, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", output, err)
	}
	logSuccess(i18n.N("Exported %d translation to %s (%s)", "Exported %d translations to %s (%s)", len(ts)),
		len(ts), output, humanize.Bytes(uint64(len(data))))
	return nil
}

// ---------------------------------------------------------------------------
// status (read-only: keys + per-translation coverage)
// ---------------------------------------------------------------------------

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show keys and per-translation coverage",
		Long: `Show the store in use, the UI language, the number of keys and, for each
translation, how many keys of the key list have a non-empty value.
Does not modify anything.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEditor(cmd, func(ctx context.Context, m *editor.Manager, _ store.Store) error {
				runStatus(m)
				return nil
			})
		},
	}
}

func runStatus(m *editor.Manager) {
	keys := m.Keys()
	ts := m.Translations()

	fmt.Fprintf(os.Stderr, "\n%s%s%s\n", colorBlue, i18n.T("Editor"), colorReset)
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
	fmt.Fprintf(os.Stderr, "  %-12s %s (%s)\n", i18n.T("Store:"), cfg.Store.Backend, cfg.Store.Path)
	lang := m.Language()
	if lang == "" {
		lang = "-"
	}
	fmt.Fprintf(os.Stderr, "  %-12s %s\n", i18n.T("Language:"), lang)
	fmt.Fprintf(os.Stderr, "  %-12s %d\n", i18n.T("Keys:"), len(keys))
	fmt.Fprintf(os.Stderr, "  %-12s %d\n", i18n.T("Translations:"), len(ts))
	fmt.Fprintln(os.Stderr)

	if len(ts) == 0 {
		logInfo("%s", i18n.T("No translations yet. Run 'lokedit import FILE...' or 'lokedit lang add NAME'."))
		return
	}

	names := make([]string, len(ts))
	for i, t := range ts {
		names[i] = t.Name
	}
	width := langColumnWidth(names)

	fmt.Fprintf(os.Stderr, "%s%s%s\n", colorBlue, i18n.T("Coverage"), colorReset)
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
	for _, t := range ts {
		c := coverageOf(keys, t)
		fmt.Fprintf(os.Stderr, "  %s  %s  %d/%d\n", langCell(t.Name, width), progressBar(c.percent(), 20), c.translated, c.total)
	}
	fmt.Fprintln(os.Stderr)
}

type coverage struct {
	translated int
	total      int
}

func (c coverage) percent() int {
	if c.total == 0 {
		return 100
	}
	return c.translated * 100 / c.total
}

// coverageOf counts the keys that have a non-empty value in t.
func coverageOf(keys []string, t *translation.Translation) coverage {
	c := coverage{total: len(keys)}
	for _, k := range keys {
		if v, ok := t.Data.Get(k); ok && v != "" {
			c.translated++
		}
	}
	return c
}

// progressBar renders percent as a colored bar of width cells followed by
// the number.
func progressBar(percent, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := percent * width / 100

	color := colorRed
	switch {
	case percent >= 100:
		color = colorGreen
	case percent >= 40:
		color = colorYellow
	}
	return color + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + colorReset +
		fmt.Sprintf(" %3d%%", percent)
}

// flagFromRegion converts a two-letter region code into its flag emoji.
func flagFromRegion(region string) string {
	if len(region) != 2 {
		return ""
	}
	var b strings.Builder
	for _, r := range strings.ToUpper(region) {
		if r < 'A' || r > 'Z' {
			return ""
		}
		b.WriteRune(0x1F1E6 + r - 'A')
	}
	return b.String()
}

// langFlag returns the registry flag for a language code, falling back to
// the flag of its region subtag.
func langFlag(code string) string {
	if flag := langmeta.Resolve(code).Flag; flag != "" {
		return flag
	}
	parts := strings.FieldsFunc(code, func(r rune) bool { return r == '-' || r == '_' })
	if len(parts) < 2 {
		return ""
	}
	return flagFromRegion(parts[len(parts)-1])
}

func langColumnWidth(langs []string) int {
	width := 0
	for _, l := range langs {
		if n := utf8.RuneCountInString(l); n > width {
			width = n
		}
	}
	return width
}

// langCell renders a flag and the code padded to width. Codes without a
// flag get two spaces so columns stay aligned.
func langCell(code string, width int) string {
	flag := langFlag(code)
	if flag == "" {
		flag = "  "
	}
	pad := width - utf8.RuneCountInString(code)
	if pad < 0 {
		pad = 0
	}
	return flag + " " + code + strings.Repeat(" ", pad)
}

// ---------------------------------------------------------------------------
// language (UI language)
// ---------------------------------------------------------------------------

func newLanguageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "language [CODE]",
		Short: "Show or set the UI language",
		Long: `Without arguments, print the stored UI language. With CODE, store it; lokedit's
own messages and the web UI switch to that language.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEditor(cmd, func(ctx context.Context, m *editor.Manager, _ store.Store) error {
				if len(args) == 0 {
					lang := m.Language()
					if lang == "" {
						lang = i18n.Language()
					}
					meta := langmeta.Resolve(lang)
					fmt.Printf("%s\t%s %s\n", lang, meta.Flag, meta.Name)
					return nil
				}
				if err := m.SetLanguage(ctx, args[0]); err != nil {
					return err
				}
				i18n.Init(args[0])
				logSuccess(i18n.T("UI language set to %s"), langmeta.Resolve(args[0]).Name)
				if !i18n.HasCatalogue(args[0]) {
					logWarning(i18n.T("No message catalogue for %s; available: %s"), args[0], strings.Join(i18n.Available(), ", "))
				}
				return nil
			})
		},
	}
}

// ---------------------------------------------------------------------------
// locales
// ---------------------------------------------------------------------------

func newLocalesCmd() *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "locales",
		Short: "Show the locale catalogue",
		Long: `Print the locale catalogue as JSON. With --refresh the catalogue is fetched
from catalogue_url first; on failure the cached or built-in copy is shown.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEditor(cmd, func(ctx context.Context, m *editor.Manager, st store.Store) error {
				src := ""
				if refresh {
					src = cfg.CatalogueURL
				}
				cat, err := locales.Load(ctx, src, st, cfg.CatalogueTimeout, logger)
				if err != nil {
					logWarning("%v", err)
				}
				fmt.Println(string(cat))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "Fetch the catalogue from catalogue_url")

	return cmd
}

// ---------------------------------------------------------------------------
// serve
// ---------------------------------------------------------------------------

func newServeCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the JSON API used by the web UI: key and translation CRUD, multipart
import, zip export, selection, UI language, locale catalogue, /i18n bundles
and Prometheus metrics on /metrics. Stops on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return withEditor(cmd, func(_ context.Context, m *editor.Manager, st store.Store) error {
				cat, err := locales.Load(ctx, cfg.CatalogueURL, st, cfg.CatalogueTimeout, logger)
				if err != nil {
					logger.Warn("locale catalogue not cached", "err", err)
				}

				addr := cfg.Listen
				if listen != "" {
					addr = listen
				}
				srv := server.New(m, server.Options{
					Locales:     cat,
					WebDir:      cfg.WebDir,
					CORSOrigins: cfg.CORSOrigins,
					Log:         logger,
				})
				logInfo(i18n.T("Serving on http://%s"), addr)
				return srv.ListenAndServe(ctx, addr)
			})
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default from config: "+config.DefaultListen+")")

	return cmd
}

// Command toolspec checks tool manifests, generates Go types from their schemas, validates
// arguments against them, imports OpenAPI operations and manages a SQLite manifest store.
//
// Configuration comes from a .env file, then TOOLSPEC_* environment variables, then flags.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/skosovsky/toolspec"
	"github.com/skosovsky/toolspec/contracts/openapi"
	"github.com/skosovsky/toolspec/manifeststore"
)

const (
	exitOK      = 0
	exitFailed  = 1
	exitUsage   = 2
	defaultDB   = "toolspec.db"
	usageHeader = `Usage: toolspec <command> [flags] [args]

Commands:
  check     <manifest.json>...          check manifests (envelope, meta-schema, compilation)
  types     <manifest.json>             print Go types for the input (or output) schema
  validate  <manifest.json> <args.json> validate arguments ("-" reads stdin), print the accepted value
  schema                                print the manifest envelope schema
  import    <openapi.yaml>              print one manifest per OpenAPI operation
  store     put|get|list|delete         manage the manifest store
`
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "error loading .env: %v\n", err)
		return exitFailed
	}
	return runWithArgs(os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
}

// config holds the settings shared by every command.
type config struct {
	db       string
	unknown  toolspec.Closedness
	html     bool
	logLevel slog.Level
}

func loadConfig(getenv func(string) string) (config, error) {
	cfg := config{db: defaultDB}
	if v := getenv("TOOLSPEC_DB"); v != "" {
		cfg.db = v
	}
	c, err := toolspec.ParseClosedness(getenv("TOOLSPEC_UNKNOWN_KEYS"))
	if err != nil {
		return cfg, fmt.Errorf("TOOLSPEC_UNKNOWN_KEYS: %w", err)
	}
	cfg.unknown = c
	if v := getenv("TOOLSPEC_HTML_DESCRIPTIONS"); v != "" {
		cfg.html = v == "1" || strings.EqualFold(v, "true")
	}
	if v := getenv("TOOLSPEC_LOG_LEVEL"); v != "" {
		if err := cfg.logLevel.UnmarshalText([]byte(v)); err != nil {
			return cfg, fmt.Errorf("TOOLSPEC_LOG_LEVEL: %w", err)
		}
	}
	return cfg, nil
}

type app struct {
	cfg    config
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	log    *slog.Logger
}

func runWithArgs(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	return runWithEnv(args, os.Getenv, stdin, stdout, stderr)
}

func runWithEnv(args []string, getenv func(string) string, stdin io.Reader, stdout, stderr io.Writer) int {
	cfg, err := loadConfig(getenv)
	if err != nil {
		_ = writef(stderr, "error: %v\n", err)
		return exitUsage
	}
	a := &app{
		cfg:    cfg,
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		log:    slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.logLevel})),
	}
	if len(args) == 0 {
		_ = writef(stderr, "%s", usageHeader)
		return exitUsage
	}
	ctx := context.Background()
	switch args[0] {
	case "check":
		return a.check(args[1:])
	case "types":
		return a.types(ctx, args[1:])
	case "validate":
		return a.validate(args[1:])
	case "schema":
		return a.schema(args[1:])
	case "import":
		return a.importOpenAPI(ctx, args[1:])
	case "store":
		return a.store(ctx, args[1:])
	case "help", "-h", "--help":
		_ = writef(stdout, "%s", usageHeader)
		return exitOK
	}
	_ = writef(stderr, "error: unknown command %q\n\n%s", args[0], usageHeader)
	return exitUsage
}

func (a *app) flagSet(name, usage string) *flag.FlagSet {
	fs := flag.NewFlagSet("toolspec "+name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	fs.Usage = func() {
		_ = writef(a.stderr, "Usage: toolspec %s %s\n", name, usage)
		fs.PrintDefaults()
	}
	return fs
}

func (a *app) manifestOptions(html bool) []toolspec.ManifestOption {
	if html {
		return []toolspec.ManifestOption{toolspec.WithHTMLDescriptions()}
	}
	return nil
}

func (a *app) loadManifest(path string, html bool) (*toolspec.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return toolspec.ParseManifest(data, a.manifestOptions(html)...)
}

// reportError prints err, expanding located issues one per line.
func (a *app) reportError(prefix string, err error) {
	var (
		sve *toolspec.SchemaValidationError
		ve  *toolspec.ValidationError
	)
	switch {
	case errors.As(err, &sve):
		_ = writef(a.stderr, "%s: malformed schema\n", prefix)
		for _, is := range sve.Issues {
			_ = writef(a.stderr, "  %s\n", is)
		}
	case errors.As(err, &ve):
		_ = writef(a.stderr, "%s: %d issue(s)\n", prefix, len(ve.Issues))
		for _, is := range ve.Issues {
			_ = writef(a.stderr, "  %s\n", is)
		}
	default:
		_ = writef(a.stderr, "%s: %v\n", prefix, err)
	}
}

func (a *app) check(args []string) int {
	fs := a.flagSet("check", "[flags] <manifest.json>...")
	html := fs.Bool("html", a.cfg.html, "convert HTML descriptions to markdown before checking")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() == 0 {
		_ = writeln(a.stderr, "error: at least one manifest is required")
		fs.Usage()
		return exitUsage
	}
	code := exitOK
	for _, path := range fs.Args() {
		start := time.Now()
		m, err := a.loadManifest(path, *html)
		if err == nil {
			_, err = m.Compile(toolspec.WithAdditionalProperties(a.cfg.unknown))
		}
		if err != nil {
			a.reportError(path, err)
			code = exitFailed
			continue
		}
		a.log.Debug("manifest checked", "file", path, "tool", m.Name, "duration", time.Since(start))
		_ = writef(a.stdout, "%s: ok (%s)\n", path, m.Name)
	}
	return code
}

func (a *app) types(ctx context.Context, args []string) int {
	fs := a.flagSet("types", "[flags] <manifest.json>")
	typeName := fs.String("type", "", "name of the root type (default: the tool name, exported)")
	pkg := fs.String("package", "", "emit a complete file with this package clause")
	output := fs.Bool("output", false, "use the output schema instead of the input schema")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 1 {
		_ = writeln(a.stderr, "error: exactly one manifest is required")
		fs.Usage()
		return exitUsage
	}
	path := fs.Arg(0)
	m, err := a.loadManifest(path, false)
	if err != nil {
		a.reportError(path, err)
		return exitFailed
	}
	doc, suffix := m.InputSchema, "Args"
	if *output {
		if m.OutputSchema == nil {
			_ = writef(a.stderr, "%s: manifest has no output schema\n", path)
			return exitFailed
		}
		doc, suffix = m.OutputSchema, "Result"
	}
	name := *typeName
	if name == "" {
		name = m.Name + "_" + suffix
	}
	src, err := toolspec.GenerateTypeText(ctx, doc, toolspec.TypeOptions{TypeName: name, PackageName: *pkg})
	if err != nil {
		a.reportError(path, err)
		return exitFailed
	}
	if err := writef(a.stdout, "%s", src); err != nil {
		return exitFailed
	}
	return exitOK
}

func (a *app) validate(args []string) int {
	fs := a.flagSet("validate", "[flags] <manifest.json> <args.json|->")
	unknown := fs.String("unknown", a.cfg.unknown.String(), "policy for undeclared keys: strip, passthrough or strict")
	output := fs.Bool("output", false, "validate against the output schema instead of the input schema")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 2 {
		_ = writeln(a.stderr, "error: a manifest and an arguments file are required")
		fs.Usage()
		return exitUsage
	}
	closedness, err := toolspec.ParseClosedness(*unknown)
	if err != nil {
		_ = writef(a.stderr, "error: %v\n", err)
		return exitUsage
	}
	path := fs.Arg(0)
	m, err := a.loadManifest(path, false)
	if err != nil {
		a.reportError(path, err)
		return exitFailed
	}
	cm, err := m.Compile(toolspec.WithAdditionalProperties(closedness))
	if err != nil {
		a.reportError(path, err)
		return exitFailed
	}
	v := cm.Input
	if *output {
		if cm.Output == nil {
			_ = writef(a.stderr, "%s: manifest has no output schema\n", path)
			return exitFailed
		}
		v = cm.Output
	}

	var data []byte
	if fs.Arg(1) == "-" {
		data, err = io.ReadAll(a.stdin)
	} else {
		data, err = os.ReadFile(fs.Arg(1))
	}
	if err != nil {
		_ = writef(a.stderr, "error reading arguments: %v\n", err)
		return exitFailed
	}
	accepted, err := v.ValidateJSON(data)
	if err != nil {
		a.reportError(fs.Arg(1), err)
		return exitFailed
	}
	a.log.Debug("arguments accepted", "tool", m.Name, "pointer", v.Pointer())
	return a.printJSON(accepted)
}

func (a *app) schema(args []string) int {
	fs := a.flagSet("schema", "")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	return a.printJSON(toolspec.ManifestSchema())
}

func (a *app) importOpenAPI(ctx context.Context, args []string) int {
	fs := a.flagSet("import", "[flags] <openapi.yaml>")
	prefix := fs.String("prefix", "", "prefix for generated tool names")
	save := fs.Bool("save", false, "also put the manifests into the store")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 1 {
		_ = writeln(a.stderr, "error: exactly one OpenAPI document is required")
		fs.Usage()
		return exitUsage
	}
	ops, err := openapi.ImportFile(ctx, fs.Arg(0), openapi.WithNamePrefix(*prefix))
	if err != nil {
		a.reportError(fs.Arg(0), err)
		return exitFailed
	}
	manifests := openapi.Manifests(ops)
	if *save {
		st, err := manifeststore.Open(ctx, a.cfg.db)
		if err != nil {
			_ = writef(a.stderr, "error: %v\n", err)
			return exitFailed
		}
		defer st.Close()
		for _, m := range manifests {
			if err := st.Put(ctx, m); err != nil {
				a.reportError(m.Name, err)
				return exitFailed
			}
		}
		a.log.Info("manifests stored", "count", len(manifests), "db", a.cfg.db)
	}
	return a.printJSON(manifests)
}

func (a *app) store(ctx context.Context, args []string) int {
	fs := a.flagSet("store", "[flags] put <manifest.json>... | get <name> | list | delete <name>")
	db := fs.String("db", a.cfg.db, "SQLite database path")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return exitUsage
	}
	sub, rest := fs.Arg(0), fs.Args()[1:]
	st, err := manifeststore.Open(ctx, *db)
	if err != nil {
		_ = writef(a.stderr, "error: %v\n", err)
		return exitFailed
	}
	defer st.Close()

	switch sub {
	case "put":
		if len(rest) == 0 {
			fs.Usage()
			return exitUsage
		}
		code := exitOK
		for _, path := range rest {
			data, err := os.ReadFile(path)
			if err == nil {
				var m *toolspec.Manifest
				if m, err = st.PutJSON(ctx, data, a.manifestOptions(a.cfg.html)...); err == nil {
					_ = writef(a.stdout, "%s: stored %s\n", path, m.Name)
					continue
				}
			}
			a.reportError(path, err)
			code = exitFailed
		}
		return code
	case "get":
		if len(rest) != 1 {
			fs.Usage()
			return exitUsage
		}
		m, err := st.Get(ctx, rest[0])
		if err != nil {
			a.reportError(rest[0], err)
			return exitFailed
		}
		return a.printJSON(m)
	case "list":
		entries, err := st.List(ctx)
		if err != nil {
			_ = writef(a.stderr, "error: %v\n", err)
			return exitFailed
		}
		for _, e := range entries {
			_ = writef(a.stdout, "%s\t%s\t%s\n", e.Manifest.Name, e.Manifest.Version, e.UpdatedAt.UTC().Format(time.RFC3339))
		}
		return exitOK
	case "delete":
		if len(rest) != 1 {
			fs.Usage()
			return exitUsage
		}
		if err := st.Delete(ctx, rest[0]); err != nil {
			a.reportError(rest[0], err)
			return exitFailed
		}
		return exitOK
	}
	_ = writef(a.stderr, "error: unknown store command %q\n", sub)
	return exitUsage
}

func (a *app) printJSON(v any) int {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		_ = writef(a.stderr, "error: %v\n", err)
		return exitFailed
	}
	return exitOK
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	_, err := fmt.Fprintln(w, args...)
	return err
}

// Command kgweave is the CLI front end for the knowledge-graph construction
// and retrieval engine: one subcommand per dispatcher operation (C10),
// taking JSON params on stdin or via --params and printing the operation's
// {success, ...} envelope as JSON on stdout.
//
// Grounded on the donor's cmd/glyphoxa/main.go bootstrap shape (flag-driven
// config path, registry + provider wiring, slog setup) adapted from a
// long-running voice server into a one-shot-per-invocation CLI, since this
// engine's operations are request/response rather than a persistent session.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kgweave/kgweave/internal/config"
	"github.com/kgweave/kgweave/internal/engine"
	"github.com/kgweave/kgweave/pkg/rdf"
	"github.com/kgweave/kgweave/pkg/store/postgres"
	"github.com/kgweave/kgweave/pkg/vector"
)

// cliState holds the flags and lazily-built collaborators shared by every
// subcommand's RunE.
type cliState struct {
	configPath string
	indexFile  string
	storeDSN   string

	paramsInline string
	paramsFile   string

	eng      *engine.Engine
	cfg      *config.Config
	exitCode int
}

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := &cliState{}
	root := newRootCmd(st)
	if err := root.ExecuteContext(ctx); err != nil {
		var inv *invocationError
		if errors.As(err, &inv) {
			return 2
		}
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	return st.exitCode
}

// invocationError marks a cobra-level usage failure (bad flags, unknown
// operation, malformed params) as distinct from an operation returning
// success=false — the two map to different process exit codes.
type invocationError struct{ err error }

func (e *invocationError) Error() string { return e.err.Error() }
func (e *invocationError) Unwrap() error { return e.err }

func newRootCmd(st *cliState) *cobra.Command {
	root := &cobra.Command{
		Use:           "kgweave",
		Short:         "Knowledge-graph construction and retrieval engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&st.configPath, "config", "", "path to YAML config file (providers, graph, vector settings)")
	root.PersistentFlags().StringVar(&st.indexFile, "index-file", "", "vector index file to load at startup and save on exit")
	root.PersistentFlags().StringVar(&st.storeDSN, "store-dsn", "", "optional Postgres DSN; when set, every mutating operation's quads are also persisted here")
	root.PersistentFlags().StringVar(&st.paramsInline, "params", "", "operation parameters as a JSON object (default: read from stdin)")
	root.PersistentFlags().StringVar(&st.paramsFile, "params-file", "", "path to a JSON file of operation parameters")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return st.init()
	}

	for _, op := range []string{
		"decompose", "enrich", "hyde-generate", "hyde-query",
		"search", "pipeline", "stats", "entities", "communities", "export",
	} {
		root.AddCommand(newOperationCmd(st, op))
	}
	return root
}

// newOperationCmd builds the one-subcommand-per-operation surface: each
// just forwards its params blob to engine.Execute under the shared
// operation name.
func newOperationCmd(st *cliState, operation string) *cobra.Command {
	return &cobra.Command{
		Use:   operation,
		Short: fmt.Sprintf("Run the %q operation", operation),
		RunE: func(cmd *cobra.Command, args []string) error {
			return st.runOperation(cmd.Context(), operation)
		},
	}
}

// init loads config (if given), wires the provider registry, constructs the
// shared Engine, and — if --index-file points at an existing file — loads a
// persisted vector index into it.
func (st *cliState) init() error {
	cfg := &config.Config{}
	if st.configPath != "" {
		loaded, err := config.Load(st.configPath)
		if err != nil {
			return &invocationError{fmt.Errorf("load config: %w", err)}
		}
		cfg = loaded
	}
	st.cfg = cfg
	slog.SetDefault(newLogger(cfg.Server.LogLevel))

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	llmProvider, hydeProvider, embedProvider, err := buildProviders(cfg, reg)
	if err != nil {
		return &invocationError{fmt.Errorf("build providers: %w", err)}
	}

	instanceBase := cfg.Graph.InstanceBase
	if instanceBase == "" {
		instanceBase = "https://kgweave.dev/instance"
	}
	nsReg := rdf.NewRegistry(instanceBase)

	econf := engine.DefaultConfig()
	if cfg.Vector.Dimension > 0 {
		econf.VectorDimension = cfg.Vector.Dimension
	}
	econf.EntityDedupThreshold = cfg.Graph.EntityDedupThreshold

	var opts []engine.Option
	if st.indexFile != "" {
		if f, err := os.Open(st.indexFile); err == nil {
			idx, err := vector.Load(f)
			f.Close()
			if err != nil {
				return &invocationError{fmt.Errorf("load index file %q: %w", st.indexFile, err)}
			}
			opts = append(opts, engine.WithVectorIndex(idx))
			slog.Info("loaded vector index", "file", st.indexFile)
		} else if !os.IsNotExist(err) {
			return &invocationError{fmt.Errorf("open index file %q: %w", st.indexFile, err)}
		}
	}

	eng, err := engine.New(econf, nsReg, llmProvider, hydeProvider, embedProvider, opts...)
	if err != nil {
		return &invocationError{fmt.Errorf("construct engine: %w", err)}
	}
	st.eng = eng
	return nil
}

func (st *cliState) runOperation(ctx context.Context, operation string) error {
	params, err := st.readParams()
	if err != nil {
		return &invocationError{err}
	}

	resp, err := st.eng.Execute(ctx, operation, params)
	if err != nil {
		return &invocationError{err}
	}

	if err := writeJSON(os.Stdout, resp); err != nil {
		return &invocationError{err}
	}

	if resp.Success {
		st.exitCode = 0
	} else {
		st.exitCode = 1
	}

	if st.storeDSN != "" && isMutatingOperation(operation) {
		if err := persistToStore(ctx, st.storeDSN, st.eng); err != nil {
			slog.Error("persist to store failed", "err", err)
		}
	}

	if st.indexFile != "" {
		if err := saveIndex(st.eng, st.indexFile); err != nil {
			slog.Error("save index file failed", "err", err)
		}
	}

	return nil
}

func isMutatingOperation(op string) bool {
	switch op {
	case "decompose", "enrich", "hyde-generate", "pipeline":
		return true
	default:
		return false
	}
}

// persistToStore merges the engine's current dataset into a Postgres-backed
// Endpoint. The engine owns no persistent storage itself; this is the CLI
// acting as the collaborator that persists what the engine emits.
func persistToStore(ctx context.Context, dsn string, eng *engine.Engine) error {
	dim := eng.Config().VectorDimension
	if dim <= 0 {
		dim = 1
	}
	ep, err := postgres.NewEndpoint(ctx, dsn, dim)
	if err != nil {
		return fmt.Errorf("connect store: %w", err)
	}
	defer ep.Close()

	return ep.InsertQuads(ctx, eng.Dataset().All())
}

func saveIndex(eng *engine.Engine, path string) error {
	idx := eng.VectorIndex()
	if idx == nil {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return idx.Save(f)
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// readParams resolves a subcommand's operation parameters from, in order of
// precedence: --params (inline JSON), --params-file, or stdin. An empty
// result is valid for parameter-less operations such as "stats".
func (st *cliState) readParams() (json.RawMessage, error) {
	switch {
	case st.paramsInline != "":
		return json.RawMessage(st.paramsInline), nil
	case st.paramsFile != "":
		b, err := os.ReadFile(st.paramsFile)
		if err != nil {
			return nil, fmt.Errorf("read params file %q: %w", st.paramsFile, err)
		}
		return json.RawMessage(b), nil
	default:
		stat, err := os.Stdin.Stat()
		if err != nil || (stat.Mode()&os.ModeCharDevice) != 0 {
			// No piped stdin (interactive terminal) — treat as empty params.
			return nil, nil
		}
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin params: %w", err)
		}
		if len(b) == 0 {
			return nil, nil
		}
		return json.RawMessage(b), nil
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newLogger builds a slog.Logger from the config's log_level string,
// grounded on the donor's cmd/glyphoxa/main.go newLogger (same level
// switch, same stderr text handler) adapted for config.ServerConfig's plain
// string field rather than a dedicated LogLevel enum type.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

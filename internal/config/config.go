// Package config loads tagstate settings from CUE.
//
// The embedded schema declares every field with its constraints and default.
// A user file only states what it overrides; it is unified with the closed
// schema, so unknown fields and out-of-range values are rejected with the
// position of the offending line.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaSource []byte

// Chain holds ledger rules.
type Chain struct {
	CashoutWindow     int64  `json:"cashout_window"`
	MaxCommentDepth   int    `json:"max_comment_depth"`
	MaxPermlinkLength int    `json:"max_permlink_length"`
	ContentConstant   uint64 `json:"content_constant"`
	MaxUndoHistory    int    `json:"max_undo_history"`
}

// Tags holds tag selection and promotion settings.
type Tags struct {
	TagLimit      int    `json:"tag_limit"`
	MaxTagLength  int    `json:"max_tag_length"`
	NullAccount   string `json:"null_account"`
	PromoteSymbol string `json:"promote_symbol"`
}

// Score holds the divisors of the decay scores.
type Score struct {
	RsharesDivisor  int64 `json:"rshares_divisor"`
	HotDivisor      int64 `json:"hot_divisor"`
	TrendingDivisor int64 `json:"trending_divisor"`
}

type Query struct {
	MaxLimit int `json:"max_limit"`
}

type Log struct {
	Level string `json:"level"`
}

type Metrics struct {
	Namespace string `json:"namespace"`
}

// Config is the decoded, fully defaulted configuration.
type Config struct {
	Chain   Chain   `json:"chain"`
	Tags    Tags    `json:"tags"`
	Score   Score   `json:"score"`
	Query   Query   `json:"query"`
	Log     Log     `json:"log"`
	Metrics Metrics `json:"metrics"`
}

// Error reports an invalid configuration source.
type Error struct {
	File    string
	Line    int
	Column  int
	Message string
}

func (e *Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Message)
	}
	if e.File != "" {
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	}
	return e.Message
}

// Default returns the schema defaults.
func Default() Config {
	cfg, err := Parse("", nil)
	if err != nil {
		panic(fmt.Sprintf("config: embedded schema: %v", err))
	}
	return cfg
}

// Load reads and validates the CUE file at path. An empty path yields the
// defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(path, data)
}

// Parse unifies src with the schema and decodes the result. filename is only
// used in error positions.
func Parse(filename string, src []byte) (Config, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, convert("schema.cue", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	value := def
	if len(src) > 0 {
		user := ctx.CompileBytes(src, cue.Filename(filename))
		if err := user.Err(); err != nil {
			return Config{}, convert(filename, err)
		}
		value = def.Unify(user)
	}
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return Config{}, convert(filename, err)
	}

	var cfg Config
	if err := value.Decode(&cfg); err != nil {
		return Config{}, convert(filename, err)
	}
	return cfg, nil
}

// convert keeps the first CUE error and its position.
func convert(filename string, err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &Error{File: filename, Message: err.Error()}
	}
	first := errs[0]
	out := &Error{File: filename, Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 && positions[0].IsValid() {
		out.File = positions[0].Filename()
		out.Line = positions[0].Line()
		out.Column = positions[0].Column()
	}
	return out
}

// SlogLevel maps the configured level name to a slog level.
func (c Config) SlogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

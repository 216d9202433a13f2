package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hsterling/chronoview/pkg/config"
	"github.com/hsterling/chronoview/pkg/cq4"
	"github.com/hsterling/chronoview/pkg/decode"
	"github.com/hsterling/chronoview/pkg/schema"
	"github.com/hsterling/chronoview/pkg/service"
	"github.com/hsterling/chronoview/pkg/wire"
)

// Exit codes for tools wrapping the decoder core.
const (
	exitOK     = 0
	exitIO     = 2
	exitDecode = 3
	exitSchema = 4
	exitConfig = 5
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "chronoview",
	Short: "chronoview - Chronicle Queue file inspector",
	Long: `chronoview decodes Chronicle Queue (.cq4) data files into structured
messages: self-describing wire payloads out of the box, SBE and compact
tagged payloads when a class-definition schema is supplied.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and maps errors onto process exit codes.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to a chronoview.yaml config file")
	flags.String("schema", "", "Class-definition source/class file or directory")
	flags.String("encoding", "", "Force an encoding: auto, self_describing, sbe, compact_tagged")
	flags.Int("max-depth", 0, "Maximum document nesting depth")
	flags.Bool("strict", false, "Fail on unknown type codes and field ids")
	flags.Bool("include-metadata", false, "Include queue metadata excerpts")
	flags.String("cache-dir", "", "Directory for the persistent offset cache")
}

// resolveConfig merges the optional config file with command-line flags;
// flags win.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, &configError{err}
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("schema") {
		cfg.Schema.Path, _ = flags.GetString("schema")
	}
	if flags.Changed("encoding") {
		cfg.EncodingOverride, _ = flags.GetString("encoding")
	}
	if flags.Changed("max-depth") {
		cfg.MaxNestingDepth, _ = flags.GetInt("max-depth")
	}
	if flags.Changed("strict") {
		cfg.Strict, _ = flags.GetBool("strict")
	}
	if flags.Changed("include-metadata") {
		cfg.IncludeMetadata, _ = flags.GetBool("include-metadata")
	}
	if flags.Changed("cache-dir") {
		cfg.Cache.Dir, _ = flags.GetString("cache-dir")
	}

	if err := cfg.Validate(); err != nil {
		return nil, &configError{err}
	}
	return cfg, nil
}

// buildRegistry loads and freezes the schema registry named by the config,
// or returns nil when no schema is configured.
func buildRegistry(cfg *config.Config) (*schema.Registry, error) {
	if cfg.Schema.Path == "" {
		return nil, nil
	}
	registry := schema.NewRegistry()
	if err := registry.Load(cfg.Schema.Path, cfg.Encoding()); err != nil {
		return nil, err
	}
	if err := registry.Freeze(); err != nil {
		return nil, err
	}
	return registry, nil
}

// openService wires a message service for the queue path using the
// resolved configuration.
func openService(cfg *config.Config, queuePath string) (*service.Service, error) {
	registry, err := buildRegistry(cfg)
	if err != nil {
		return nil, err
	}
	return service.New(registry, service.Config{
		QueuePath:       queuePath,
		IncludeMetadata: cfg.IncludeMetadata,
		Strict:          cfg.Strict,
		MaxDepth:        cfg.MaxNestingDepth,
		Override:        cfg.Encoding(),
		CacheDir:        cfg.Cache.Dir,
	})
}

// configError marks configuration problems for exit-code mapping.
type configError struct {
	err error
}

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

// exitCode classifies an error into the documented exit codes: 2 for file
// access, 3 for decode/format failures, 4 for schema problems, 5 for
// configuration.
func exitCode(err error) int {
	var cfgErr *configError
	if errors.As(err, &cfgErr) {
		return exitConfig
	}

	var pathErr *fs.PathError
	if errors.As(err, &pathErr) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return exitIO
	}

	switch {
	case errors.Is(err, schema.ErrFrozen),
		errors.Is(err, schema.ErrNotFrozen),
		errors.Is(err, schema.ErrDuplicateClass),
		errors.Is(err, schema.ErrUnresolvedFieldID):
		return exitSchema
	}
	var missingClass *decode.MissingClassError
	if errors.As(err, &missingClass) {
		return exitSchema
	}
	if errors.Is(err, decode.ErrNoSchema) {
		return exitSchema
	}

	switch {
	case errors.Is(err, cq4.ErrUnreadableHeader),
		errors.Is(err, cq4.ErrMisalignedExcerpt),
		errors.Is(err, cq4.ErrTruncated),
		errors.Is(err, cq4.ErrSessionClosed),
		errors.Is(err, cq4.ErrDirtyPadding),
		errors.Is(err, wire.ErrTruncated),
		errors.Is(err, wire.ErrDepthExceeded),
		errors.Is(err, wire.ErrInvalidUTF8),
		errors.Is(err, wire.ErrTimestampOverflow),
		errors.Is(err, decode.ErrTruncated),
		errors.Is(err, decode.ErrMalformedHeader):
		return exitDecode
	}
	var unknownCode *wire.UnknownTypeCodeError
	var unknownRef *wire.UnknownFieldRefError
	var unknownID *decode.UnknownFieldIDError
	var unknownTpl *decode.UnknownTemplateError
	var short *decode.PayloadTooShortError
	var badUTF8 *decode.InvalidUTF8Error
	if errors.As(err, &unknownCode) || errors.As(err, &unknownRef) ||
		errors.As(err, &unknownID) || errors.As(err, &unknownTpl) ||
		errors.As(err, &short) || errors.As(err, &badUTF8) {
		return exitDecode
	}

	// Schema loaders prefix their own parse failures.
	if strings.HasPrefix(err.Error(), "schema:") {
		return exitSchema
	}
	return 1
}

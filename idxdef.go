package idxdef

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/k0kubun/pp/v3"
	"github.com/sqldef/idxdef/database"
	"github.com/sqldef/idxdef/schema"
)

type Options struct {
	DesiredFiles []string
	CurrentFile  string
	OutputFile   string
	DryRun       bool
	Export       bool
	Check        bool
	Debug        bool
	Config       database.GeneratorConfig
	Logger       database.Logger
}

var flywayScriptName = regexp.MustCompile(`^(R|[VU]\d+\.\d+\.\d+)__[A-Za-z0-9_]+\.sql$`)

type scriptValidator interface {
	Validate(script string) error
}

// Main function shared by all modes of the command. db is nil when the script
// is only generated.
func Run(ctx context.Context, generatorMode schema.GeneratorMode, db database.Database, sqlParser database.Parser, options *Options) error {
	logger := options.Logger
	if logger == nil {
		logger = database.StdoutLogger{}
	}

	if options.Export {
		if db == nil {
			return errors.New("--export needs a database")
		}
		indexes, err := db.ExportIndexes(ctx, options.Config.TargetTables)
		if err != nil {
			return fmt.Errorf("failed to export indexes: %w", err)
		}
		if len(indexes) == 0 {
			logger.Println("-- No index exists --")
			return nil
		}
		var buf strings.Builder
		if err := WriteManifest(&buf, indexes); err != nil {
			return err
		}
		logger.Print(buf.String())
		return nil
	}

	manifest, err := LoadManifests(options.DesiredFiles)
	if err != nil {
		return err
	}
	specs, err := manifest.IndexSpecs()
	if err != nil {
		return err
	}
	if options.Debug {
		pp.Fprintln(os.Stderr, specs)
	}

	if len(options.CurrentFile) > 0 {
		return showPlan(ctx, generatorMode, db, specs, options, logger)
	}

	script, err := schema.GenerateScript(generatorMode, specs, options.Config)
	if err != nil {
		return err
	}

	if options.Check {
		if err := checkScript(script, sqlParser); err != nil {
			return err
		}
	}

	if db == nil {
		return writeScript(script, options.OutputFile, logger)
	}

	if options.DryRun {
		dryRun, err := database.NewDryRunDatabase(db)
		if err != nil {
			return err
		}
		defer dryRun.Close()
		db = dryRun
		logger.Println("-- dry run --")
	}
	return database.RunScript(ctx, db, script.Statements(), logger)
}

func showPlan(ctx context.Context, generatorMode schema.GeneratorMode, db database.Database, specs []schema.IndexSpec, options *Options, logger database.Logger) error {
	catalog, err := db.ExportIndexes(ctx, options.Config.TargetTables)
	if err != nil {
		return err
	}
	results, _, err := schema.Plan(generatorMode, specs, catalog, options.Config)
	if err != nil {
		return err
	}
	for _, result := range results {
		logger.Println(result.Message)
	}
	return nil
}

// checkScript makes sure the rendered text splits back into exactly the
// statements the script is made of, and lets a parser that understands the
// dialect validate it further.
func checkScript(script *schema.Script, sqlParser database.Parser) error {
	text := script.String()
	stmts, err := sqlParser.Split(text)
	if err != nil {
		return fmt.Errorf("generated script does not parse: %w", err)
	}
	if expected := len(script.Statements()); len(stmts) != expected {
		return fmt.Errorf("generated script splits into %d statements, expected %d", len(stmts), expected)
	}
	if v, ok := sqlParser.(scriptValidator); ok {
		if err := v.Validate(text); err != nil {
			return fmt.Errorf("generated script is invalid: %w", err)
		}
	}
	return nil
}

func writeScript(script *schema.Script, outputFile string, logger database.Logger) error {
	if outputFile == "" || outputFile == "-" {
		logger.Print(script.String())
		return nil
	}
	if !IsFlywayScriptName(outputFile) {
		slog.Warn("Output file name is not a Flyway migration name, expected R__<description>.sql", "file", outputFile)
	}
	return os.WriteFile(outputFile, []byte(script.String()), 0o644)
}

// IsFlywayScriptName reports whether the base name of path is a repeatable
// (R__name.sql), versioned (V1.2.3__name.sql) or undo (U1.2.3__name.sql)
// Flyway migration.
func IsFlywayScriptName(path string) bool {
	return flywayScriptName.MatchString(filepath.Base(path))
}

// ReadFile reads filepath, or stdin when filepath is "-".
func ReadFile(filepath string) (string, error) {
	var err error
	var buf []byte

	if filepath == "-" {
		buf, err = readPiped(os.Stdin)
	} else {
		buf, err = os.ReadFile(filepath)
	}

	if err != nil {
		return "", err
	}
	return string(buf), nil
}

func readPiped(f *os.File) ([]byte, error) {
	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", f.Name(), err)
	}
	if (stat.Mode() & os.ModeCharDevice) != 0 {
		return nil, fmt.Errorf("stdin is not piped")
	}
	return io.ReadAll(f)
}

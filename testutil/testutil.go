package testutil

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/goccy/go-yaml"
	"github.com/sqldef/idxdef"
	"github.com/sqldef/idxdef/database"
	"github.com/sqldef/idxdef/schema"
	"github.com/sqldef/idxdef/util"
	"github.com/stretchr/testify/assert"
)

var stripHeredocRegex = regexp.MustCompilePOSIX("^\t*")

type TestCase struct {
	Dialect string  // default: mysql
	Current string  // manifest of existing indexes, default: none
	Desired string  // manifest of desired indexes
	Output  *string // expected status lines of the first run
	Error   *string // default: nil
	Config  struct {
		MaxColumns             int    `yaml:"max_columns"`
		PostgresExistenceCheck string `yaml:"postgres_existence_check"`
	} `yaml:"config"`
}

func init() {
	util.InitSlog()

	// In test environments, suppress INFO-level logs to prevent them from contaminating test output comparisons.
	// Users can still see DEBUG/INFO logs by setting LOG_LEVEL=debug or LOG_LEVEL=info environment variable.
	if os.Getenv("LOG_LEVEL") == "" {
		opts := &slog.HandlerOptions{
			Level: slog.LevelWarn,
		}
		handler := slog.NewTextHandler(os.Stderr, opts)
		slog.SetDefault(slog.New(handler))
	}
}

func ReadTests(pattern string) (map[string]TestCase, error) {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}

	ret := map[string]TestCase{}
	// Track which file each test case came from for better error messages
	testFileMap := map[string]string{}

	for _, file := range files {
		var tests map[string]*TestCase

		buf, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}

		dec := yaml.NewDecoder(bytes.NewReader(buf), yaml.DisallowUnknownField())
		err = dec.Decode(&tests)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}

		for name, test := range tests {
			if test.Output == nil && test.Error == nil {
				return nil, fmt.Errorf("%s: test case '%s': either 'output' or 'error' must be specified", file, name)
			}
			if test.Dialect == "" {
				test.Dialect = "mysql"
			}
			if existingFile, ok := testFileMap[name]; ok {
				return nil, fmt.Errorf("duplicate test case name '%s': defined in both '%s' and '%s'", name, existingFile, file)
			}
			testFileMap[name] = file
			ret[name] = *test
		}
	}

	return ret, nil
}

// RunPlanTest plans Desired against Current, compares the status lines with
// Output, and then checks that a second run over the result only skips.
func RunPlanTest(t *testing.T, test TestCase) {
	t.Helper()

	mode, err := schema.ParseGeneratorMode(test.Dialect)
	if err != nil {
		t.Fatal(err)
	}
	config := database.GeneratorConfig{
		MaxColumns:             test.Config.MaxColumns,
		PostgresExistenceCheck: test.Config.PostgresExistenceCheck,
	}

	specs, catalog, err := parseTestManifests(mode, test)
	if err == nil {
		var results []schema.PlanResult
		results, catalog, err = schema.Plan(mode, specs, catalog, config)
		if err == nil {
			assertPlanOutput(t, test, results)
		}
	}

	if test.Error != nil {
		if err == nil {
			t.Errorf("expected error: %s, but got no error", *test.Error)
		} else if err.Error() != *test.Error {
			t.Errorf("expected error: %s, but got: %s", *test.Error, err.Error())
		}
		return
	}
	if err != nil {
		t.Fatal(err)
	}

	// Idempotency check: the converged catalog must satisfy every index that
	// did not fail.
	results, _, err := schema.Plan(mode, specs, catalog, config)
	if err != nil {
		t.Fatal(err)
	}
	for _, result := range results {
		if result.Status == schema.PlanCreated {
			t.Errorf("Desired indexes are not idempotent. Expected SKIPPED on the second run, but got:\n%s", result.Message)
		}
	}
}

func parseTestManifests(mode schema.GeneratorMode, test TestCase) ([]schema.IndexSpec, []database.Index, error) {
	desired, err := idxdef.ParseManifest([]byte(test.Desired))
	if err != nil {
		return nil, nil, err
	}
	specs, err := desired.IndexSpecs()
	if err != nil {
		return nil, nil, err
	}

	var catalog []database.Index
	if test.Current != "" {
		current, err := idxdef.ParseManifest([]byte(test.Current))
		if err != nil {
			return nil, nil, err
		}
		catalog, err = current.CatalogIndexes(mode)
		if err != nil {
			return nil, nil, err
		}
	}
	return specs, catalog, nil
}

func assertPlanOutput(t *testing.T, test TestCase, results []schema.PlanResult) {
	t.Helper()
	if test.Output == nil {
		return
	}

	var lines []string
	for _, result := range results {
		lines = append(lines, result.Message)
	}
	assert.Equal(t, strings.TrimSpace(*test.Output), strings.Join(lines, "\n"))
}

func StripHeredoc(heredoc string) string {
	heredoc = strings.TrimPrefix(heredoc, "\n")
	return stripHeredocRegex.ReplaceAllLiteralString(heredoc, "")
}

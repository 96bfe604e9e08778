package idxdef

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
	"github.com/sqldef/idxdef/database"
	"github.com/sqldef/idxdef/schema"
)

// Manifest is the YAML document listing indexes:
//
//	indexes:
//	  - table: orders
//	    name: idx_user_created
//	    columns: [user_id, created_at DESC]
//	    type: INDEX
type Manifest struct {
	Indexes []ManifestIndex `yaml:"indexes" validate:"dive"`
}

type ManifestIndex struct {
	Table   string   `yaml:"table" validate:"required"`
	Name    string   `yaml:"name" validate:"required"`
	Columns []string `yaml:"columns" validate:"required,min=1,dive,required"`
	// INDEX or UNIQUE in any case, checked by IndexSpecs.
	Type string `yaml:"type,omitempty"`
	// Only meaningful for manifests describing existing indexes.
	Primary bool `yaml:"primary,omitempty"`
}

var validate = validator.New()

func ParseManifest(buf []byte) (*Manifest, error) {
	var manifest Manifest
	dec := yaml.NewDecoder(bytes.NewReader(buf), yaml.DisallowUnknownField())
	if err := dec.Decode(&manifest); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	if err := validate.Struct(&manifest); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			var messages []string
			for _, e := range validationErrs {
				messages = append(messages, fmt.Sprintf("%s failed on '%s'", e.Namespace(), e.Tag()))
			}
			return nil, fmt.Errorf("invalid manifest: %s", strings.Join(messages, ", "))
		}
		return nil, err
	}
	return &manifest, nil
}

// LoadManifest reads a manifest from path. "-" means stdin.
func LoadManifest(path string) (*Manifest, error) {
	buf, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	manifest, err := ParseManifest([]byte(buf))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return manifest, nil
}

// LoadManifests concatenates the indexes of every file in order.
func LoadManifests(paths []string) (*Manifest, error) {
	merged := &Manifest{}
	for _, path := range paths {
		manifest, err := LoadManifest(path)
		if err != nil {
			return nil, err
		}
		merged.Indexes = append(merged.Indexes, manifest.Indexes...)
	}
	return merged, nil
}

// IndexSpecs converts the manifest into generator input. Each entry of columns
// is one column, optionally followed by ASC or DESC.
func (m *Manifest) IndexSpecs() ([]schema.IndexSpec, error) {
	var specs []schema.IndexSpec
	for i, index := range m.Indexes {
		indexType, err := schema.ParseIndexType(index.Type)
		if err != nil {
			return nil, &schema.ConfigurationError{Position: i, Field: "type", Message: err.Error()}
		}

		spec := schema.IndexSpec{
			TableName: index.Table,
			IndexName: index.Name,
			Type:      indexType,
		}
		for _, text := range index.Columns {
			columns, err := schema.ParseColumnText(text)
			if err != nil {
				return nil, &schema.ConfigurationError{Position: i, Field: "columns", Message: err.Error()}
			}
			if len(columns) != 1 {
				return nil, &schema.ConfigurationError{Position: i, Field: "columns", Message: fmt.Sprintf("%q must name exactly one column", text)}
			}
			spec.Columns = append(spec.Columns, columns[0])
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// CatalogIndexes reads the manifest as a description of existing indexes.
func (m *Manifest) CatalogIndexes(mode schema.GeneratorMode) ([]database.Index, error) {
	specs, err := m.IndexSpecs()
	if err != nil {
		return nil, err
	}

	var indexes []database.Index
	for i, spec := range specs {
		index := schema.CatalogIndex(mode, spec)
		index.Primary = m.Indexes[i].Primary
		indexes = append(indexes, index)
	}
	return indexes, nil
}

// WriteManifest writes indexes in manifest format. Primary keys are left out;
// partial and expression indexes cannot be expressed and are skipped with a
// warning.
func WriteManifest(w io.Writer, indexes []database.Index) error {
	manifest := Manifest{Indexes: []ManifestIndex{}}
	for _, index := range indexes {
		if index.Primary {
			continue
		}
		if !isPlainIndex(index) {
			slog.Warn("Skipping index that is not a plain column list", "table", index.Table, "index", index.Name)
			continue
		}

		entry := ManifestIndex{
			Table: index.Table,
			Name:  index.Name,
			Type:  schema.IndexTypeIndex.String(),
		}
		if index.Unique {
			entry.Type = schema.IndexTypeUnique.String()
		}
		for _, column := range index.Columns {
			if column.Descending {
				entry.Columns = append(entry.Columns, column.Name+" DESC")
			} else {
				entry.Columns = append(entry.Columns, column.Name)
			}
		}
		manifest.Indexes = append(manifest.Indexes, entry)
	}

	buf, err := yaml.Marshal(&manifest)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

func isPlainIndex(index database.Index) bool {
	if index.Partial || len(index.Columns) == 0 {
		return false
	}
	for _, column := range index.Columns {
		if column.Expression || column.Name == "" {
			return false
		}
	}
	return true
}

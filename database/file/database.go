package file

import (
	"context"
	"database/sql"

	"github.com/sqldef/idxdef"
	"github.com/sqldef/idxdef/database"
	"github.com/sqldef/idxdef/schema"
)

// Pseudo database whose indexes come from a manifest file
type FileDatabase struct {
	file string
	mode schema.GeneratorMode
}

func NewDatabase(mode schema.GeneratorMode, file string) *FileDatabase {
	return &FileDatabase{
		file: file,
		mode: mode,
	}
}

func (f *FileDatabase) ExportIndexes(ctx context.Context, tables []string) ([]database.Index, error) {
	manifest, err := idxdef.LoadManifest(f.file)
	if err != nil {
		return nil, err
	}
	indexes, err := manifest.CatalogIndexes(f.mode)
	if err != nil {
		return nil, err
	}
	return database.FilterIndexes(indexes, tables), nil
}

func (f *FileDatabase) DB() *sql.DB {
	return nil
}

func (f *FileDatabase) GetConfig() database.Config {
	return database.Config{}
}

func (f *FileDatabase) Close() error {
	return nil
}

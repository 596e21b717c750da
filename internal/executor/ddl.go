package executor

import (
	"context"

	dberrors "github.com/leengari/cardinaldb/internal/domain/errors"
	"github.com/leengari/cardinaldb/internal/domain/schema"
	"github.com/leengari/cardinaldb/internal/parser/ast"
)

func (e *Executor) createTable(ds string, stmt *ast.CreateTableStatement) (*Result, error) {
	table := stmt.TableName.Value
	s := schema.New(table)

	var primary string
	setPrimary := func(name string) error {
		if primary != "" && primary != name {
			return dberrors.New(dberrors.OperationNotSupported, "composite primary keys are not supported")
		}
		primary = name
		return nil
	}

	for _, def := range stmt.Columns {
		t, err := schema.ParseFieldType(def.Type)
		if err != nil {
			return nil, dberrors.Wrap(dberrors.InvalidQuery, err, "invalid type for column %s", def.Name)
		}
		if def.Name == schema.PrimaryKeyColumn {
			// redeclaring the default key only changes its type
			c, _ := s.Column(schema.PrimaryKeyColumn)
			c.Type = t
		} else {
			col := &schema.Column{Name: def.Name, Type: t}
			if def.Unique {
				col.Index = schema.IndexUnique
			}
			if err := s.AddColumn(col); err != nil {
				return nil, dberrors.Wrap(dberrors.InvalidQuery, err, "invalid table definition")
			}
		}
		if def.PrimaryKey {
			if err := setPrimary(def.Name); err != nil {
				return nil, err
			}
		}
	}

	if len(stmt.PrimaryKey) > 1 {
		return nil, dberrors.New(dberrors.OperationNotSupported, "composite primary keys are not supported")
	}
	if len(stmt.PrimaryKey) == 1 {
		if err := setPrimary(stmt.PrimaryKey[0]); err != nil {
			return nil, err
		}
	}
	for _, cols := range stmt.Unique {
		if len(cols) != 1 {
			return nil, dberrors.New(dberrors.OperationNotSupported, "multi-column UNIQUE constraints are not supported")
		}
		c, ok := s.Column(cols[0])
		if !ok {
			return nil, dberrors.New(dberrors.UnknownColumn, "column %s does not exist in %s", cols[0], table)
		}
		c.Index = schema.IndexUnique
	}
	if primary != "" {
		if err := s.SetPrimary(primary); err != nil {
			return nil, dberrors.Wrap(dberrors.UnknownColumn, err, "invalid primary key")
		}
	}

	if err := e.data.CreateTable(ds, s); err != nil {
		return nil, err
	}
	e.logger.Info("table created", "ds", ds, "table", table, "primary", s.Primary, "columns", len(s.Columns))
	return Ack("Table created"), nil
}

func (e *Executor) alterTable(ctx context.Context, ds string, stmt *ast.AlterTableStatement) (*Result, error) {
	table := stmt.TableName.Value
	s, err := e.data.Schema(ds, table)
	if err != nil {
		return nil, err
	}
	defer e.data.InvalidateTable(ds, table)

	switch stmt.Action {
	case ast.AlterAddColumn:
		def := stmt.Column
		if def.PrimaryKey {
			return nil, dberrors.New(dberrors.OperationNotSupported, "adding a primary key column is not supported")
		}
		t, err := schema.ParseFieldType(def.Type)
		if err != nil {
			return nil, dberrors.Wrap(dberrors.InvalidQuery, err, "invalid type for column %s", def.Name)
		}
		if err := e.data.Catalog().AddColumn(ds, table, &schema.Column{Name: def.Name, Type: t}); err != nil {
			return nil, err
		}
		if def.Unique {
			if err := e.data.Indexes().Index(ctx, ds, table, def.Name, schema.IndexUnique); err != nil {
				return nil, err
			}
		}
		return Ack("Column added"), nil

	case ast.AlterDropColumn:
		name := stmt.Columns[0]
		c, ok := s.Column(name)
		if !ok {
			return nil, dberrors.New(dberrors.UnknownColumn, "column %s does not exist in %s", name, table)
		}
		if s.IsPrimary(name) {
			return nil, dberrors.New(dberrors.OperationNotSupported, "primary key column %s cannot be dropped", name)
		}
		if c.Indexed() {
			if err := e.data.Indexes().DropIndex(ds, table, name); err != nil {
				return nil, err
			}
		}
		if err := e.data.Catalog().DropColumn(ds, table, name); err != nil {
			return nil, err
		}
		return Ack("Column dropped"), nil

	case ast.AlterAddUnique:
		if len(stmt.Columns) != 1 {
			return nil, dberrors.New(dberrors.OperationNotSupported, "multi-column UNIQUE constraints are not supported")
		}
		name := stmt.Columns[0]
		c, ok := s.Column(name)
		if !ok {
			return nil, dberrors.New(dberrors.UnknownColumn, "column %s does not exist in %s", name, table)
		}
		if c.Index == schema.IndexUnique || s.IsPrimary(name) {
			return Ack("Constraint added"), nil
		}
		if c.Indexed() {
			if err := e.data.Indexes().DropIndex(ds, table, name); err != nil {
				return nil, err
			}
		}
		if err := e.data.Indexes().Index(ctx, ds, table, name, schema.IndexUnique); err != nil {
			return nil, err
		}
		return Ack("Constraint added"), nil

	case ast.AlterAddPrimaryKey:
		return nil, dberrors.New(dberrors.OperationNotSupported, "changing the primary key of an existing table is not supported")
	}
	return nil, dberrors.New(dberrors.OperationNotSupported, "unsupported ALTER TABLE action")
}

func (e *Executor) dropTable(ds string, stmt *ast.DropTableStatement) (*Result, error) {
	if err := e.data.DropTable(ds, stmt.TableName.Value); err != nil {
		return nil, err
	}
	return Ack("Table dropped"), nil
}

func (e *Executor) createIndex(ctx context.Context, ds string, stmt *ast.CreateIndexStatement) (*Result, error) {
	if len(stmt.Columns) != 1 {
		return nil, dberrors.New(dberrors.OperationNotSupported, "composite indexes are not supported")
	}
	kind := schema.IndexBTree
	if stmt.Unique {
		kind = schema.IndexUnique
	}
	if stmt.Using != "" {
		using, err := schema.ParseIndexType(stmt.Using)
		if err != nil {
			return nil, dberrors.Wrap(dberrors.InvalidQuery, err, "invalid index type")
		}
		if stmt.Unique && using != schema.IndexUnique {
			return nil, dberrors.New(dberrors.InvalidQuery, "CREATE UNIQUE INDEX cannot use %s", using)
		}
		kind = using
	}

	if err := e.data.Indexes().Index(ctx, ds, stmt.TableName.Value, stmt.Columns[0], kind); err != nil {
		return nil, err
	}
	return Ack("Index created"), nil
}

func (e *Executor) dropIndex(ds string, stmt *ast.DropIndexStatement) (*Result, error) {
	if err := e.data.Indexes().DropIndex(ds, stmt.TableName.Value, stmt.Column); err != nil {
		return nil, err
	}
	return Ack("Index dropped"), nil
}

func (e *Executor) createDatabase(stmt *ast.CreateDatabaseStatement) (*Result, error) {
	if err := e.data.CreateDatastore(stmt.Name); err != nil {
		return nil, err
	}
	return Ack("Datastore created"), nil
}

func (e *Executor) dropDatabase(stmt *ast.DropDatabaseStatement) (*Result, error) {
	if err := e.data.DropDatastore(stmt.Name); err != nil {
		return nil, err
	}
	return Ack("Datastore dropped"), nil
}

// Command starphoenix renders the split statements of Solr-described tables
// and applies them to a configured database.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"

	"github.com/rzpsarthak13/starphoenix/internal/core"
	"github.com/rzpsarthak13/starphoenix/internal/schema"
	"github.com/rzpsarthak13/starphoenix/internal/sequel"
	"github.com/rzpsarthak13/starphoenix/internal/types"
	"github.com/rzpsarthak13/starphoenix/pkg/starphoenix"
)

const version = "0.1.0"

// CLI defines the command-line interface for starphoenix.
var CLI struct {
	Create  CreateCmd  `cmd:"" help:"Print the CREATE statements of a table"`
	Upsert  UpsertCmd  `cmd:"" help:"Print the UPSERT statements of one record"`
	Select  SelectCmd  `cmd:"" help:"Print the SELECT statements of a query"`
	Delete  DeleteCmd  `cmd:"" help:"Print the DELETE statements of a predicate"`
	Apply   ApplyCmd   `cmd:"" help:"Register definitions and create their tables"`
	Tables  TablesCmd  `cmd:"" help:"List the tables in the catalog"`
	Drain   DrainCmd   `cmd:"" help:"Replay the write-ahead log into the database"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

var (
	primaryColor = color.New(color.FgCyan, color.Bold)
	sideColor    = color.New(color.FgYellow)
	okColor      = color.New(color.FgGreen)
)

// SchemaArgs selects one table from a definition file.
type SchemaArgs struct {
	Schema string `arg:"" help:"Definition file (.yaml, .yml, .json or Solr .xml)" type:"existingfile"`
	Table  string `short:"t" help:"Table to use; required when the file defines more than one"`
}

// load returns the table the arguments select.
func (a SchemaArgs) load(ctx context.Context, registry *types.Registry) (*sequel.Table, error) {
	source := schema.NewFileSource(a.Schema)
	source.TableName = a.Table
	schemas, err := source.Load(ctx)
	if err != nil {
		return nil, err
	}

	var picked *core.Schema
	switch {
	case a.Table != "":
		for _, s := range schemas {
			if s.TableName == a.Table {
				picked = s
			}
		}
		if picked == nil {
			return nil, fmt.Errorf("table %q is not defined in %s", a.Table, a.Schema)
		}
	case len(schemas) == 1:
		picked = schemas[0]
	default:
		return nil, fmt.Errorf("%s defines %d tables; pick one with --table", a.Schema, len(schemas))
	}

	if err := schema.ValidateSchema(picked, registry); err != nil {
		return nil, err
	}
	return schema.Build(picked, registry)
}

// CreateCmd prints the CREATE statements of a table.
type CreateCmd struct {
	SchemaArgs
}

func (c *CreateCmd) Run() error {
	registry := types.NewRegistry()
	table, err := c.load(context.Background(), registry)
	if err != nil {
		return err
	}
	return printSplit(color.Output, sequel.NewCreate(table))
}

// UpsertCmd prints the UPSERT statements of one record.
type UpsertCmd struct {
	SchemaArgs
	Set []string `short:"s" help:"Field value as name=value" required:""`
}

func (c *UpsertCmd) Run() error {
	registry := types.NewRegistry()
	table, err := c.load(context.Background(), registry)
	if err != nil {
		return err
	}

	record := make(map[string]interface{}, len(c.Set))
	for _, pair := range c.Set {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("invalid --set %q: expected name=value", pair)
		}
		record[strings.TrimSpace(name)] = parseValue(value)
	}

	upsert, err := schema.NewTranslator(registry).RecordToUpsert(record, table)
	if err != nil {
		return err
	}
	return printSplit(color.Output, upsert)
}

// SelectCmd prints the SELECT statements of a query.
type SelectCmd struct {
	SchemaArgs
	Field []string `short:"f" help:"Field to select; all fields when omitted"`
	Where []string `short:"w" help:"Condition as \"field op value\", joined with AND"`
}

func (c *SelectCmd) Run() error {
	registry := types.NewRegistry()
	table, err := c.load(context.Background(), registry)
	if err != nil {
		return err
	}

	sel := sequel.NewSelect(table)
	if err := sel.AddField(c.Field...); err != nil {
		return err
	}
	if err := addConditions(c.Where, sel.ValueCondition, sel.Where()); err != nil {
		return err
	}
	return printSplit(color.Output, sel)
}

// DeleteCmd prints the DELETE statements of a predicate.
type DeleteCmd struct {
	SchemaArgs
	Where []string `short:"w" help:"Condition as \"field op value\", joined with AND"`
}

func (c *DeleteCmd) Run() error {
	registry := types.NewRegistry()
	table, err := c.load(context.Background(), registry)
	if err != nil {
		return err
	}

	del := sequel.NewDelete(table)
	if err := addConditions(c.Where, del.ValueCondition, del.Where()); err != nil {
		return err
	}
	return printSplit(color.Output, del)
}

// ConfigArgs locates the runtime configuration.
type ConfigArgs struct {
	Config string `short:"c" help:"Configuration file (.yaml, .yml or .json)" type:"existingfile"`
}

// connect opens a client from the configuration, or the defaults.
func (a ConfigArgs) connect(ctx context.Context) (starphoenix.Client, error) {
	config := starphoenix.DefaultConfig()
	if a.Config != "" {
		loaded, err := starphoenix.LoadConfig(a.Config)
		if err != nil {
			return nil, err
		}
		config = loaded
	}
	return starphoenix.NewClient(ctx, config)
}

// ApplyCmd registers definitions and creates their tables.
type ApplyCmd struct {
	ConfigArgs
	Schemas []string `arg:"" help:"Definition files" type:"existingfile"`
}

func (c *ApplyCmd) Run() error {
	ctx := context.Background()
	client, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	for _, path := range c.Schemas {
		tables, err := client.RegisterFile(ctx, path)
		if err != nil {
			return err
		}
		for _, t := range tables {
			if err := t.Define(ctx); err != nil {
				return err
			}
			okColor.Printf("✓ %s\n", t.Name())
		}
	}
	return nil
}

// TablesCmd lists the tables in the catalog.
type TablesCmd struct {
	ConfigArgs
}

func (c *TablesCmd) Run() error {
	ctx := context.Background()
	client, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.LoadSchemas(ctx); err != nil {
		return err
	}
	for _, name := range client.Tables() {
		fmt.Println(name)
	}
	return nil
}

// DrainCmd replays the write-ahead log and writes every queued operation.
type DrainCmd struct {
	ConfigArgs
}

func (c *DrainCmd) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.LoadSchemas(ctx); err != nil {
		return err
	}
	if err := client.Start(ctx); err != nil {
		return err
	}
	if err := client.Stop(); err != nil {
		return err
	}
	written, err := client.Flush(ctx)
	if err != nil {
		return err
	}
	okColor.Printf("✓ drained %d operation(s)\n", written)
	return nil
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("starphoenix version %s\n", version)
	return nil
}

// printSplit writes a statement's physical decomposition to w, primary first.
func printSplit(w io.Writer, stmt sequel.Statement) error {
	split, err := stmt.Split()
	if err != nil {
		return err
	}
	for i, s := range split {
		rendered, err := s.Render()
		if err != nil {
			return err
		}
		if i == 0 {
			primaryColor.Fprintf(w, "%s;\n", rendered)
		} else {
			sideColor.Fprintf(w, "%s;\n", rendered)
		}
	}
	return nil
}

type conditionFunc func(left, operator string, raw interface{}) (*sequel.Condition, error)

// addConditions parses "field op value" expressions and ANDs them into where.
func addConditions(exprs []string, build conditionFunc, where *sequel.Where) error {
	for _, expr := range exprs {
		parts := strings.Fields(expr)
		if len(parts) < 3 {
			return fmt.Errorf("invalid condition %q: expected \"field op value\"", expr)
		}
		value := strings.Join(parts[2:], " ")
		cond, err := build(parts[0], parts[1], parseValue(value))
		if err != nil {
			return err
		}
		where.AddCondition(cond, sequel.And)
	}
	return nil
}

// parseValue unquotes a command-line value. Booleans become bools; anything
// else stays a string for the field's type to coerce.
func parseValue(s string) interface{} {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("starphoenix"),
		kong.Description("Split Solr-described tables into relational statements"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}

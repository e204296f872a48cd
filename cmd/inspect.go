package cmd

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/javalab/jl-assistant/internal"
	"github.com/javalab/jl-assistant/internal/store"
	"github.com/spf13/cobra"
)

var (
	inspectFormat     string
	inspectSampleRows int
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect [database-path]",
	Short: "Inspect the SQLite conversation store",
	Long: `Inspect the schema and contents of a SQLite conversation store.

This command provides detailed information about:
  • Database schema (tables, columns, types)
  • Row counts per table
  • Sample rows from each table

The database is opened read-only. Without a path the configured store is used.

Examples:
  jl-assistant inspect                              # Inspect the configured store
  jl-assistant inspect ./chat.db --sample 5         # Inspect a specific file
  jl-assistant inspect --format json                # JSON output`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath := cfg.Store.DSN
		if len(args) > 0 {
			dbPath = args[0]
		} else if d := strings.ToLower(cfg.Store.Driver); d != "" && d != store.DriverSQLite {
			return fmt.Errorf("inspect works on SQLite stores only; pass a database path")
		}

		switch inspectFormat {
		case "text", "json":
		default:
			return fmt.Errorf("unsupported format: %s (supported: text, json)", inspectFormat)
		}

		report, err := inspectDatabase(dbPath, inspectSampleRows)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if inspectFormat == "json" {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
		printReport(out, report)
		return nil
	},
}

// ColumnInfo describes one table column
type ColumnInfo struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	NotNull    bool   `json:"not_null"`
	PrimaryKey bool   `json:"primary_key"`
}

// TableReport is the inspection result for one table
type TableReport struct {
	Name    string              `json:"name"`
	Rows    int                 `json:"rows"`
	Columns []ColumnInfo        `json:"columns"`
	Sample  []map[string]string `json:"sample,omitempty"`
}

// DatabaseReport is the inspection result for a database file
type DatabaseReport struct {
	Path   string        `json:"path"`
	Tables []TableReport `json:"tables"`
}

func inspectDatabase(dbPath string, sample int) (*DatabaseReport, error) {
	db, err := internal.OpenDatabaseReadOnly(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	tables, err := getTables(db)
	if err != nil {
		return nil, fmt.Errorf("failed to get tables: %w", err)
	}

	report := &DatabaseReport{Path: dbPath, Tables: make([]TableReport, 0, len(tables))}
	for _, name := range tables {
		t, err := inspectTable(db, name, sample)
		if err != nil {
			internal.LogWarn("Error inspecting table %s: %v", name, err)
			continue
		}
		report.Tables = append(report.Tables, t)
	}
	return report, nil
}

func getTables(db *sql.DB) ([]string, error) {
	rows, err := db.Query(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func inspectTable(db *sql.DB, name string, sample int) (TableReport, error) {
	t := TableReport{Name: name}
	quoted := quoteSQLiteIdent(name)

	if err := db.QueryRow("SELECT COUNT(*) FROM " + quoted).Scan(&t.Rows); err != nil {
		return t, fmt.Errorf("failed to get row count: %w", err)
	}

	columns, err := getTableSchema(db, quoted)
	if err != nil {
		return t, fmt.Errorf("failed to get schema: %w", err)
	}
	t.Columns = columns

	if t.Rows > 0 && sample > 0 {
		t.Sample, err = sampleRows(db, quoted, columns, sample)
		if err != nil {
			return t, fmt.Errorf("failed to read sample rows: %w", err)
		}
	}
	return t, nil
}

func getTableSchema(db *sql.DB, quotedTable string) ([]ColumnInfo, error) {
	rows, err := db.Query("PRAGMA table_info(" + quotedTable + ")")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var columns []ColumnInfo
	for rows.Next() {
		var col ColumnInfo
		var cid, notNull, pk int
		var defaultValue sql.NullString

		if err := rows.Scan(&cid, &col.Name, &col.Type, &notNull, &defaultValue, &pk); err != nil {
			return nil, err
		}
		col.NotNull = notNull == 1
		col.PrimaryKey = pk > 0
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

func sampleRows(db *sql.DB, quotedTable string, columns []ColumnInfo, limit int) ([]map[string]string, error) {
	if len(columns) == 0 {
		return nil, nil
	}

	colNames := make([]string, len(columns))
	for i, col := range columns {
		colNames[i] = quoteSQLiteIdent(col.Name)
	}

	rows, err := db.Query(fmt.Sprintf("SELECT %s FROM %s LIMIT %d", strings.Join(colNames, ", "), quotedTable, limit))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var sample []map[string]string
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		row := make(map[string]string, len(columns))
		for i, col := range columns {
			row[col.Name] = formatValue(values[i])
		}
		sample = append(sample, row)
	}
	return sample, rows.Err()
}

// formatValue shortens a column value for display: first line only, at most 200 bytes
func formatValue(v interface{}) string {
	if v == nil {
		return "<NULL>"
	}
	var s string
	if b, ok := v.([]byte); ok {
		s = string(b)
	} else {
		s = fmt.Sprintf("%v", v)
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i] + "..."
	}
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

func quoteSQLiteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func printReport(out io.Writer, report *DatabaseReport) {
	if len(report.Tables) == 0 {
		fmt.Fprintln(out, "⚠️  No tables found in database")
		return
	}

	fmt.Fprintf(out, "📋 Database: %s\n", report.Path)
	fmt.Fprintf(out, "📊 Found %d table(s)\n\n", len(report.Tables))

	for _, t := range report.Tables {
		fmt.Fprintf(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
		fmt.Fprintf(out, "📦 Table: %s\n", t.Name)
		fmt.Fprintf(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
		fmt.Fprintf(out, "📊 Rows: %d\n\n", t.Rows)

		fmt.Fprintf(out, "📐 Schema:\n")
		for _, col := range t.Columns {
			pk := ""
			if col.PrimaryKey {
				pk = " [PRIMARY KEY]"
			}
			notNull := ""
			if col.NotNull {
				notNull = " NOT NULL"
			}
			fmt.Fprintf(out, "  • %s: %s%s%s\n", col.Name, col.Type, notNull, pk)
		}
		fmt.Fprintln(out)

		if len(t.Sample) > 0 {
			fmt.Fprintf(out, "📄 Sample Data (first %d rows):\n", len(t.Sample))
			for i, row := range t.Sample {
				fmt.Fprintf(out, "\n  Row %d:\n", i+1)
				for _, col := range t.Columns {
					fmt.Fprintf(out, "    %s: %s\n", col.Name, row[col.Name])
				}
			}
			fmt.Fprintln(out)
		}
		fmt.Fprintln(out)
	}
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringVar(&inspectFormat, "format", "text", "Output format (text, json)")
	inspectCmd.Flags().IntVar(&inspectSampleRows, "sample", 3, "Number of sample rows to show")
}

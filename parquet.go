package fiscal

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

// parquetRowGroupSize keeps every artifact in a single row group.
const parquetRowGroupSize = 128 * 1024 * 1024

// entityRow is the on-disk schema of the entities artifact.
type entityRow struct {
	Key       string `parquet:"name=key, type=BYTE_ARRAY, convertedtype=UTF8"`
	Kind      string `parquet:"name=kind, type=BYTE_ARRAY, convertedtype=UTF8"`
	Code      string `parquet:"name=code, type=BYTE_ARRAY, convertedtype=UTF8"`
	Name      string `parquet:"name=name, type=BYTE_ARRAY, convertedtype=UTF8"`
	ParentKey string `parquet:"name=parent_key, type=BYTE_ARRAY, convertedtype=UTF8"`
	Depth     int32  `parquet:"name=depth, type=INT32"`
	FundType  string `parquet:"name=fund_type, type=BYTE_ARRAY, convertedtype=UTF8"`
	DeptGroup string `parquet:"name=department_group, type=BYTE_ARRAY, convertedtype=UTF8"`
	District  string `parquet:"name=district, type=BYTE_ARRAY, convertedtype=UTF8"`
	Aliases   int32  `parquet:"name=alias_count, type=INT32"`
}

// factRow is the on-disk schema of the facts artifact. Absent amounts are
// nulls, never zeros.
type factRow struct {
	Year      int32    `parquet:"name=fiscal_year, type=INT32"`
	EntityKey string   `parquet:"name=entity_key, type=BYTE_ARRAY, convertedtype=UTF8"`
	Kind      string   `parquet:"name=kind, type=BYTE_ARRAY, convertedtype=UTF8"`
	Category  string   `parquet:"name=category, type=BYTE_ARRAY, convertedtype=UTF8"`
	Budgeted  *float64 `parquet:"name=budgeted, type=DOUBLE, repetitiontype=OPTIONAL"`
	Actual    *float64 `parquet:"name=actual, type=DOUBLE, repetitiontype=OPTIONAL"`
	Variance  *float64 `parquet:"name=variance, type=DOUBLE, repetitiontype=OPTIONAL"`
	Class     string   `parquet:"name=classification, type=BYTE_ARRAY, convertedtype=UTF8"`
	Leaf      bool     `parquet:"name=leaf, type=BOOLEAN"`
}

func entityRowOf(t *Tree, e *Entity) entityRow {
	parent := ""
	if e.Parent != uuid.Nil {
		parent = e.Parent.String()
	}
	return entityRow{
		Key:       e.Key.String(),
		Kind:      e.Kind.String(),
		Code:      e.Code,
		Name:      e.Name,
		ParentKey: parent,
		Depth:     int32(t.Depth(e.Key)),
		FundType:  e.FundType,
		DeptGroup: e.DeptGroup,
		District:  e.District,
		Aliases:   int32(len(e.Aliases)),
	}
}

func factRowOf(f Fact) factRow {
	variance, hasVariance := f.Variance()
	return factRow{
		Year:      int32(f.Year),
		EntityKey: f.Entity.String(),
		Kind:      f.Kind.String(),
		Category:  f.Category.String(),
		Budgeted:  amountPtr(f.Budgeted, f.HasBudgeted),
		Actual:    amountPtr(f.Actual, f.HasActual),
		Variance:  amountPtr(variance, hasVariance),
		Class:     f.Class.String(),
		Leaf:      f.Leaf,
	}
}

func amountPtr(a Amount, ok bool) *float64 {
	if !ok {
		return nil
	}
	v := a.Float()
	return &v
}

// WriteEntitiesParquet writes the hierarchy artifact in the tree's
// depth-first order. It returns the row count.
func WriteEntitiesParquet(path string, tree *Tree) (int, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("could not create %q: %w", path, err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(entityRow), 1)
	if err != nil {
		file.Close()
		return 0, fmt.Errorf("parquet schema for %q: %w", path, err)
	}
	pw.RowGroupSize = parquetRowGroupSize
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	rows := 0
	for e := range tree.All() {
		if err := pw.Write(entityRowOf(tree, e)); err != nil {
			pw.WriteStop()
			file.Close()
			return 0, fmt.Errorf("parquet write %q: %w", path, err)
		}
		rows++
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return 0, fmt.Errorf("parquet flush %q: %w", path, err)
	}
	return rows, syncClose(file)
}

// WriteFactsParquet writes the reconciled facts artifact. Facts must already
// be in their canonical order.
func WriteFactsParquet(path string, facts []Fact) (int, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("could not create %q: %w", path, err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(factRow), 1)
	if err != nil {
		file.Close()
		return 0, fmt.Errorf("parquet schema for %q: %w", path, err)
	}
	pw.RowGroupSize = parquetRowGroupSize
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, f := range facts {
		if err := pw.Write(factRowOf(f)); err != nil {
			pw.WriteStop()
			file.Close()
			return 0, fmt.Errorf("parquet write %q: %w", path, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return 0, fmt.Errorf("parquet flush %q: %w", path, err)
	}
	return len(facts), syncClose(file)
}

// viewMetadata declares a view's parquet schema: dimension columns first,
// then measures, then coverage counts.
func viewMetadata(spec ViewSpec) []string {
	md := make([]string, 0, len(spec.Dimensions)+6)
	for _, d := range spec.Dimensions {
		md = append(md, fmt.Sprintf("name=%s, type=BYTE_ARRAY, convertedtype=UTF8", d))
	}
	md = append(md,
		"name=budgeted, type=DOUBLE, repetitiontype=OPTIONAL",
		"name=actual, type=DOUBLE, repetitiontype=OPTIONAL",
		"name=variance, type=DOUBLE, repetitiontype=OPTIONAL",
		"name=facts, type=INT32",
		"name=budgeted_facts, type=INT32",
		"name=actual_facts, type=INT32",
	)
	return md
}

// WriteViewParquet writes one AggregateView. Each view carries its own
// schema, so the writer is built from metadata instead of a tagged struct.
func WriteViewParquet(path string, v View) (int, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("could not create %q: %w", path, err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewCSVWriter(viewMetadata(v.Spec), fw, 1)
	if err != nil {
		file.Close()
		return 0, fmt.Errorf("parquet schema for %q: %w", path, err)
	}
	pw.RowGroupSize = parquetRowGroupSize
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range v.Rows {
		rec := make([]interface{}, 0, len(row.Dims)+6)
		for _, dv := range row.Dims {
			rec = append(rec, dv)
		}
		variance, hasVariance := row.Variance()
		rec = append(rec,
			nullableFloat(row.Budgeted, row.HasBudgeted()),
			nullableFloat(row.Actual, row.HasActual()),
			nullableFloat(variance, hasVariance),
			int32(row.Facts),
			int32(row.BudgetedFacts),
			int32(row.ActualFacts),
		)
		if err := pw.Write(rec); err != nil {
			pw.WriteStop()
			file.Close()
			return 0, fmt.Errorf("parquet write %q: %w", path, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return 0, fmt.Errorf("parquet flush %q: %w", path, err)
	}
	return len(v.Rows), syncClose(file)
}

func nullableFloat(a Amount, ok bool) interface{} {
	if !ok {
		return nil
	}
	return a.Float()
}

// syncClose flushes the file to stable storage before closing, so a later
// rename publishes fully written bytes.
func syncClose(f *os.File) error {
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteEntitiesCSV writes the CSV sibling of the entities artifact.
func WriteEntitiesCSV(path string, tree *Tree) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create %q: %w", path, err)
	}
	defer file.Close()
	w := csv.NewWriter(file)
	header := []string{"key", "kind", "code", "name", "parent_key", "depth", "fund_type", "department_group", "district", "alias_count"}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("csv header %q: %w", path, err)
	}
	for e := range tree.All() {
		r := entityRowOf(tree, e)
		rec := []string{
			r.Key, r.Kind, r.Code, r.Name, r.ParentKey,
			strconv.Itoa(int(r.Depth)),
			r.FundType, r.DeptGroup, r.District,
			strconv.Itoa(int(r.Aliases)),
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("csv row %q: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("csv flush %q: %w", path, err)
	}
	return file.Sync()
}

// WriteFactsCSV writes the CSV sibling of the facts artifact. Absent amounts
// are empty cells.
func WriteFactsCSV(path string, facts []Fact) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create %q: %w", path, err)
	}
	defer file.Close()
	w := csv.NewWriter(file)
	header := []string{"fiscal_year", "entity_key", "kind", "category", "budgeted", "actual", "variance", "classification", "leaf"}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("csv header %q: %w", path, err)
	}
	for _, f := range facts {
		variance, hasVariance := f.Variance()
		rec := []string{
			strconv.Itoa(int(f.Year)),
			f.Entity.String(),
			f.Kind.String(),
			f.Category.String(),
			csvAmount(f.Budgeted, f.HasBudgeted),
			csvAmount(f.Actual, f.HasActual),
			csvAmount(variance, hasVariance),
			f.Class.String(),
			strconv.FormatBool(f.Leaf),
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("csv row %q: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("csv flush %q: %w", path, err)
	}
	return file.Sync()
}

// WriteViewCSV writes the CSV sibling of one view artifact.
func WriteViewCSV(path string, v View) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create %q: %w", path, err)
	}
	defer file.Close()
	w := csv.NewWriter(file)
	header := append(v.Spec.DimensionNames(), "budgeted", "actual", "variance", "facts", "budgeted_facts", "actual_facts")
	if err := w.Write(header); err != nil {
		return fmt.Errorf("csv header %q: %w", path, err)
	}
	for _, row := range v.Rows {
		variance, hasVariance := row.Variance()
		rec := append(append([]string{}, row.Dims...),
			csvAmount(row.Budgeted, row.HasBudgeted()),
			csvAmount(row.Actual, row.HasActual()),
			csvAmount(variance, hasVariance),
			strconv.Itoa(row.Facts),
			strconv.Itoa(row.BudgetedFacts),
			strconv.Itoa(row.ActualFacts),
		)
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("csv row %q: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("csv flush %q: %w", path, err)
	}
	return file.Sync()
}

func csvAmount(a Amount, ok bool) string {
	if !ok {
		return ""
	}
	return fmt.Sprintf("%.2f", a.Float())
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"giftbackend/internal/export"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/glue"
)

// settlement-report prints per-brand settlement totals from the exported
// Parquet lake for one period.
func main() {
	period := flag.String("period", "", "settlement period YYYY-MM (required)")
	database := flag.String("database", os.Getenv("ATHENA_DATABASE"), "Glue/Athena database")
	table := flag.String("table", os.Getenv("ATHENA_TABLE"), "settlement lake table")
	workgroup := flag.String("workgroup", os.Getenv("ATHENA_WORKGROUP"), "Athena workgroup")
	output := flag.String("output", os.Getenv("ATHENA_OUTPUT"), "Athena result location (s3://...)")
	flag.Parse()

	if *period == "" || len(*period) != 7 || (*period)[4] != '-' {
		fmt.Fprintln(os.Stderr, "settlement-report: -period is required in format YYYY-MM")
		os.Exit(1)
	}
	if *database == "" || *table == "" || *output == "" {
		fmt.Fprintln(os.Stderr, "settlement-report: database, table and output are required (flags or ATHENA_* env)")
		os.Exit(1)
	}

	ctx := context.Background()

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "settlement-report: load aws config: %v\n", err)
		os.Exit(1)
	}

	schema, err := export.LoadTableSchema(ctx, glue.NewFromConfig(cfg), *database, *table)
	if err != nil {
		fmt.Fprintf(os.Stderr, "settlement-report: %v\n", err)
		os.Exit(1)
	}
	if !hasColumn(schema, "redeemed_amount") || !hasColumn(schema, "brand_id") {
		fmt.Fprintf(os.Stderr, "settlement-report: table %s.%s does not look like a settlement lake\n", *database, *table)
		os.Exit(1)
	}

	sql := fmt.Sprintf(`SELECT brand_id,
       sum(redeemed_amount)    AS redeemed_amount,
       sum(outstanding_amount) AS outstanding_amount,
       sum(total_redeemed)     AS total_redeemed,
       sum(outstanding)        AS outstanding
FROM %s
WHERE period = '%s'
GROUP BY brand_id
ORDER BY redeemed_amount DESC`, *table, *period)

	res, err := export.RunQuery(ctx, athena.NewFromConfig(cfg), sql, export.QueryOptions{
		Database:       *database,
		Workgroup:      *workgroup,
		OutputLocation: *output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "settlement-report: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("settlements for %s (%d brands, %d bytes scanned)\n\n", *period, len(res.Rows), res.ScannedBytes)
	fmt.Println(strings.Join(res.Columns, "\t"))
	for _, row := range res.Rows {
		fmt.Println(strings.Join(row, "\t"))
	}
}

func hasColumn(schema *export.TableSchema, name string) bool {
	for _, c := range schema.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

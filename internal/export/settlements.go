package export

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"giftbackend/internal/db"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/writer"
)

// SettlementRow matches the Glue table columns of the settlement lake.
type SettlementRow struct {
	BrandID           string  `parquet:"name=brand_id, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Period            string  `parquet:"name=period, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"` // YYYY-MM
	RedeemedAmount    float64 `parquet:"name=redeemed_amount, type=DOUBLE"`
	OutstandingAmount float64 `parquet:"name=outstanding_amount, type=DOUBLE"`
	TotalRedeemed     int64   `parquet:"name=total_redeemed, type=INT64"`
	Outstanding       int64   `parquet:"name=outstanding, type=INT64"`
	UpdatedAt         string  `parquet:"name=updated_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

type SettlementExport struct {
	ddb *dynamodb.Client
	s3  *s3.Client
	ath *athena.Client
}

func NewSettlementExport(cfg aws.Config) *SettlementExport {
	return &SettlementExport{
		ddb: dynamodb.NewFromConfig(cfg),
		s3:  s3.NewFromConfig(cfg),
		ath: athena.NewFromConfig(cfg),
	}
}

// Handle is triggered by an EventBridge schedule.
//
// Behavior:
// - For each settlement period in the backfill window, collect every
//   settlement row from SETTLEMENTS_TABLE
// - Write one Parquet file per period under:
//     settlements/period=YYYY-MM/part-<rand>.parquet
// - Repair Athena partitions when an Athena target is configured
//
// Env:
// - SETTLEMENTS_TABLE (required)
// - SETTLEMENT_BUCKET (required)
// - SETTLEMENT_PREFIX (default "settlements/")
// - EXPORT_PERIODS_BACK (default "1")  // number of months including current
// - ATHENA_DATABASE / ATHENA_TABLE / ATHENA_WORKGROUP / ATHENA_OUTPUT (optional)
func (h *SettlementExport) Handle(ctx context.Context, _ events.CloudWatchEvent) (map[string]any, error) {
	table := strings.TrimSpace(db.SettlementsTableName())
	if table == "" {
		return nil, fmt.Errorf("missing env SETTLEMENTS_TABLE")
	}

	bucket := strings.TrimSpace(os.Getenv("SETTLEMENT_BUCKET"))
	if bucket == "" {
		return nil, fmt.Errorf("missing env SETTLEMENT_BUCKET")
	}

	prefix := strings.TrimSpace(os.Getenv("SETTLEMENT_PREFIX"))
	if prefix == "" {
		prefix = "settlements/"
	}

	periodsBack := 1
	if v := strings.TrimSpace(os.Getenv("EXPORT_PERIODS_BACK")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 24 {
			periodsBack = n
		}
	}

	now := time.Now().UTC()
	written := 0
	rowsTotal := 0

	for i := 0; i < periodsBack; i++ {
		period := now.AddDate(0, -i, 0).Format("2006-01")

		rows, err := h.listSettlementsForPeriod(ctx, table, period)
		if err != nil {
			return nil, fmt.Errorf("list settlements for %s: %w", period, err)
		}
		if len(rows) == 0 {
			continue
		}

		key := fmt.Sprintf("%speriod=%s/part-%s.parquet",
			ensureTrailingSlash(prefix), period, randHex(8))

		if err := h.writeParquetToS3(ctx, bucket, key, rows); err != nil {
			return nil, fmt.Errorf("write parquet for %s: %w", period, err)
		}

		written++
		rowsTotal += len(rows)
	}

	out := map[string]any{
		"ok":           true,
		"periods_back": periodsBack,
		"files":        written,
		"rows":         rowsTotal,
		"bucket":       bucket,
		"prefix":       prefix,
	}

	// New period partitions only become queryable after a repair.
	if athDB := strings.TrimSpace(os.Getenv("ATHENA_DATABASE")); athDB != "" && written > 0 {
		qid, err := RepairPartitions(ctx, h.ath,
			athDB,
			strings.TrimSpace(os.Getenv("ATHENA_TABLE")),
			strings.TrimSpace(os.Getenv("ATHENA_WORKGROUP")),
			strings.TrimSpace(os.Getenv("ATHENA_OUTPUT")))
		if err != nil {
			return nil, fmt.Errorf("repair partitions: %w", err)
		}
		out["repair_query_id"] = qid
	}

	return out, nil
}

func (h *SettlementExport) listSettlementsForPeriod(ctx context.Context, table, period string) ([]SettlementRow, error) {
	var rows []SettlementRow

	var startKey map[string]ddbtypes.AttributeValue
	for {
		out, err := h.ddb.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(table),
			ExclusiveStartKey: startKey,
			FilterExpression:  aws.String("SK = :sk"),
			ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
				":sk": &ddbtypes.AttributeValueMemberS{Value: "PERIOD#" + period},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("dynamodb scan %s: %w", table, err)
		}

		for _, it := range out.Items {
			row := SettlementRow{Period: period}
			if v, ok := it["PK"].(*ddbtypes.AttributeValueMemberS); ok {
				row.BrandID = strings.TrimPrefix(v.Value, "BRAND#")
			}
			if row.BrandID == "" {
				continue
			}
			row.RedeemedAmount = numAttr(it, "RedeemedAmount")
			row.OutstandingAmount = numAttr(it, "OutstandingAmount")
			row.TotalRedeemed = int64(numAttr(it, "TotalRedeemed"))
			row.Outstanding = int64(numAttr(it, "Outstanding"))
			if v, ok := it["UpdatedAt"].(*ddbtypes.AttributeValueMemberS); ok {
				row.UpdatedAt = v.Value
			}
			rows = append(rows, row)
		}

		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}

	return rows, nil
}

func numAttr(item map[string]ddbtypes.AttributeValue, name string) float64 {
	if v, ok := item[name].(*ddbtypes.AttributeValueMemberN); ok {
		f, _ := strconv.ParseFloat(v.Value, 64)
		return f
	}
	return 0
}

func (h *SettlementExport) writeParquetToS3(ctx context.Context, bucket, key string, rows []SettlementRow) error {
	localPath := filepath.Join(os.TempDir(), "settlements_"+randHex(8)+".parquet")

	fw, err := local.NewLocalFileWriter(localPath)
	if err != nil {
		return fmt.Errorf("parquet file writer: %w", err)
	}

	pw, err := writer.NewParquetWriter(fw, new(SettlementRow), 1)
	if err != nil {
		_ = fw.Close()
		return fmt.Errorf("parquet writer: %w", err)
	}
	pw.RowGroupSize = 128 * 1024 * 1024
	pw.PageSize = 8 * 1024
	pw.CompressionType = 0

	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			_ = pw.WriteStop()
			_ = fw.Close()
			return fmt.Errorf("parquet write row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = fw.Close()
		return fmt.Errorf("parquet write stop: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("parquet close: %w", err)
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("read parquet tmp: %w", err)
	}
	defer func() { _ = os.Remove(localPath) }()

	_, err = h.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		ACL:         s3types.ObjectCannedACLPrivate,
	})
	if err != nil {
		return fmt.Errorf("s3 putobject failed: %w", err)
	}
	return nil
}

func ensureTrailingSlash(s string) string {
	if s == "" || strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}

func randHex(nBytes int) string {
	b := make([]byte, nBytes)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

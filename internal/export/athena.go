package export

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	athenatypes "github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/rs/zerolog/log"
)

type AthenaClient interface {
	StartQueryExecution(ctx context.Context, params *athena.StartQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error)
	GetQueryExecution(ctx context.Context, params *athena.GetQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error)
	GetQueryResults(ctx context.Context, params *athena.GetQueryResultsInput, optFns ...func(*athena.Options)) (*athena.GetQueryResultsOutput, error)
}

type QueryOptions struct {
	Database       string
	Workgroup      string
	OutputLocation string // s3://.../athena-results/
	MaxWait        time.Duration
	PollInterval   time.Duration
	MaxResultRows  int
}

type QueryResult struct {
	QueryExecutionID string
	Columns          []string
	Rows             [][]string
	ScannedBytes     int64
	ExecutionMs      int64
}

// RunQuery starts one Athena query, waits for it and collects up to
// MaxResultRows rows. The first result row Athena returns is the header and
// is folded into Columns.
func RunQuery(ctx context.Context, c AthenaClient, sql string, opt QueryOptions) (*QueryResult, error) {
	if strings.TrimSpace(opt.Database) == "" {
		return nil, fmt.Errorf("missing athena database")
	}
	if strings.TrimSpace(opt.OutputLocation) == "" {
		return nil, fmt.Errorf("missing athena output location")
	}
	if strings.TrimSpace(opt.Workgroup) == "" {
		opt.Workgroup = "primary"
	}
	if opt.MaxWait == 0 {
		opt.MaxWait = 60 * time.Second
	}
	if opt.PollInterval == 0 {
		opt.PollInterval = 700 * time.Millisecond
	}
	if opt.MaxResultRows == 0 {
		opt.MaxResultRows = 500
	}

	startOut, err := c.StartQueryExecution(ctx, &athena.StartQueryExecutionInput{
		QueryString: aws.String(sql),
		QueryExecutionContext: &athenatypes.QueryExecutionContext{
			Database: aws.String(opt.Database),
		},
		ResultConfiguration: &athenatypes.ResultConfiguration{
			OutputLocation: aws.String(opt.OutputLocation),
		},
		WorkGroup: aws.String(opt.Workgroup),
	})
	if err != nil {
		return nil, fmt.Errorf("StartQueryExecution: %w", err)
	}
	qid := aws.ToString(startOut.QueryExecutionId)

	res := &QueryResult{QueryExecutionID: qid}

	deadline := time.Now().Add(opt.MaxWait)
	for {
		st, err := c.GetQueryExecution(ctx, &athena.GetQueryExecutionInput{
			QueryExecutionId: aws.String(qid),
		})
		if err != nil {
			return nil, fmt.Errorf("GetQueryExecution: %w", err)
		}

		state := st.QueryExecution.Status.State
		if state == athenatypes.QueryExecutionStateSucceeded {
			if stats := st.QueryExecution.Statistics; stats != nil {
				res.ScannedBytes = aws.ToInt64(stats.DataScannedInBytes)
				res.ExecutionMs = aws.ToInt64(stats.TotalExecutionTimeInMillis)
			}
			break
		}
		if state == athenatypes.QueryExecutionStateFailed || state == athenatypes.QueryExecutionStateCancelled {
			reason := ""
			if st.QueryExecution.Status.StateChangeReason != nil {
				reason = *st.QueryExecution.Status.StateChangeReason
			}
			return nil, fmt.Errorf("athena %s: %s (qid=%s)", state, reason, qid)
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("athena query timed out waiting for qid=%s", qid)
		}
		time.Sleep(opt.PollInterval)
	}

	qr, err := c.GetQueryResults(ctx, &athena.GetQueryResultsInput{
		QueryExecutionId: aws.String(qid),
		MaxResults:       aws.Int32(int32(opt.MaxResultRows + 1)), // +1 header
	})
	if err != nil {
		return nil, fmt.Errorf("GetQueryResults: %w", err)
	}

	for i, row := range qr.ResultSet.Rows {
		vals := make([]string, 0, len(row.Data))
		for _, d := range row.Data {
			vals = append(vals, aws.ToString(d.VarCharValue))
		}
		if i == 0 {
			res.Columns = vals
			continue
		}
		res.Rows = append(res.Rows, vals)
		if len(res.Rows) >= opt.MaxResultRows {
			break
		}
	}

	return res, nil
}

// RepairPartitions runs MSCK REPAIR TABLE so freshly exported period
// partitions become queryable, and waits for it to finish.
func RepairPartitions(ctx context.Context, c AthenaClient, database, table, workgroup, output string) (string, error) {
	if database == "" || table == "" || output == "" {
		return "", fmt.Errorf("missing athena database/table/output")
	}
	if !strings.HasPrefix(output, "s3://") {
		return "", fmt.Errorf("athena output must start with s3://")
	}
	if workgroup == "" {
		workgroup = "primary"
	}

	startOut, err := c.StartQueryExecution(ctx, &athena.StartQueryExecutionInput{
		QueryString: aws.String(fmt.Sprintf("MSCK REPAIR TABLE %s;", table)),
		QueryExecutionContext: &athenatypes.QueryExecutionContext{
			Database: aws.String(database),
		},
		WorkGroup: aws.String(workgroup),
		ResultConfiguration: &athenatypes.ResultConfiguration{
			OutputLocation: aws.String(output),
		},
	})
	if err != nil {
		return "", fmt.Errorf("StartQueryExecution: %w", err)
	}

	qid := aws.ToString(startOut.QueryExecutionId)
	log.Info().Str("qid", qid).Str("table", table).Msg("export: partition repair started")

	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		st, err := c.GetQueryExecution(ctx, &athena.GetQueryExecutionInput{
			QueryExecutionId: aws.String(qid),
		})
		if err != nil {
			return qid, fmt.Errorf("GetQueryExecution: %w", err)
		}
		switch st.QueryExecution.Status.State {
		case athenatypes.QueryExecutionStateSucceeded:
			return qid, nil
		case athenatypes.QueryExecutionStateFailed, athenatypes.QueryExecutionStateCancelled:
			reason := ""
			if st.QueryExecution.Status.StateChangeReason != nil {
				reason = *st.QueryExecution.Status.StateChangeReason
			}
			return qid, fmt.Errorf("repair %s: %s", st.QueryExecution.Status.State, reason)
		}
		time.Sleep(2 * time.Second)
	}

	return qid, fmt.Errorf("repair timed out waiting for qid=%s", qid)
}

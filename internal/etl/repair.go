package etl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	athenatypes "github.com/aws/aws-sdk-go-v2/service/athena/types"
)

type QueryRunner interface {
	StartQueryExecution(ctx context.Context, params *athena.StartQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error)
	GetQueryExecution(ctx context.Context, params *athena.GetQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error)
}

type RepairConfig struct {
	Database     string
	Table        string
	Workgroup    string
	Output       string // s3://bucket/prefix/
	PollInterval time.Duration
	Timeout      time.Duration
}

type RepairResult struct {
	Ok        bool   `json:"ok"`
	QueryID   string `json:"query_id,omitempty"`
	State     string `json:"state,omitempty"`
	Database  string `json:"database,omitempty"`
	Table     string `json:"table,omitempty"`
	Workgroup string `json:"workgroup,omitempty"`
	Output    string `json:"output,omitempty"`
}

// RepairPartitions runs MSCK REPAIR TABLE so Athena picks up any dt=
// prefixes the ETL wrote without a Glue partition, and waits for it.
func RepairPartitions(ctx context.Context, ath QueryRunner, cfg RepairConfig) (RepairResult, error) {
	if cfg.Database == "" || cfg.Table == "" || cfg.Output == "" {
		return RepairResult{}, errors.New("missing env: GLUE_DATABASE, GLUE_TABLE, ATHENA_OUTPUT are required")
	}
	if !strings.HasPrefix(cfg.Output, "s3://") {
		return RepairResult{}, errors.New("ATHENA_OUTPUT must start with s3://")
	}
	if cfg.Workgroup == "" {
		cfg.Workgroup = "primary"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	startOut, err := ath.StartQueryExecution(ctx, &athena.StartQueryExecutionInput{
		QueryString: aws.String(fmt.Sprintf("MSCK REPAIR TABLE %s;", cfg.Table)),
		QueryExecutionContext: &athenatypes.QueryExecutionContext{
			Database: aws.String(cfg.Database),
		},
		WorkGroup: aws.String(cfg.Workgroup),
		ResultConfiguration: &athenatypes.ResultConfiguration{
			OutputLocation: aws.String(cfg.Output),
		},
	})
	if err != nil {
		return RepairResult{}, fmt.Errorf("StartQueryExecution: %w", err)
	}
	qid := aws.ToString(startOut.QueryExecutionId)

	deadline := time.Now().Add(cfg.Timeout)
	for time.Now().Before(deadline) {
		st, err := ath.GetQueryExecution(ctx, &athena.GetQueryExecutionInput{
			QueryExecutionId: aws.String(qid),
		})
		if err != nil {
			return RepairResult{QueryID: qid}, fmt.Errorf("GetQueryExecution: %w", err)
		}
		var state athenatypes.QueryExecutionState
		var reason string
		if st.QueryExecution != nil && st.QueryExecution.Status != nil {
			state = st.QueryExecution.Status.State
			reason = aws.ToString(st.QueryExecution.Status.StateChangeReason)
		}
		switch state {
		case athenatypes.QueryExecutionStateSucceeded:
			return RepairResult{
				Ok:        true,
				QueryID:   qid,
				State:     string(state),
				Database:  cfg.Database,
				Table:     cfg.Table,
				Workgroup: cfg.Workgroup,
				Output:    cfg.Output,
			}, nil
		case athenatypes.QueryExecutionStateFailed, athenatypes.QueryExecutionStateCancelled:
			return RepairResult{QueryID: qid, State: string(state)}, fmt.Errorf("repair %s: %s", state, reason)
		}

		select {
		case <-ctx.Done():
			return RepairResult{QueryID: qid, State: string(state)}, ctx.Err()
		case <-time.After(cfg.PollInterval):
		}
	}
	return RepairResult{QueryID: qid, State: "TIMEOUT"}, fmt.Errorf("repair timed out waiting for qid=%s", qid)
}

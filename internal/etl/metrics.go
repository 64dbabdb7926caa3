package etl

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	gluetypes "github.com/aws/aws-sdk-go-v2/service/glue/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/ledger"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/logger"
)

// VerificationMetricsRow matches the Glue table columns. The dt partition
// column lives in the object key, not the file.
type VerificationMetricsRow struct {
	Shop            string `parquet:"name=shop, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	MetricDate      string `parquet:"name=metric_date, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"` // YYYY-MM-DD
	Enrolled        int64  `parquet:"name=enrolled, type=INT64"`
	Verified        int64  `parquet:"name=verified, type=INT64"`
	Flagged         int64  `parquet:"name=flagged, type=INT64"`
	RemindersSent   int64  `parquet:"name=reminders_sent, type=INT64"`
	OpenEnrolled    int64  `parquet:"name=open_enrolled, type=INT64"`
	VerifiedSameDay int64  `parquet:"name=verified_same_day, type=INT64"`
}

type LedgerScanner interface {
	ScanAll(ctx context.Context) ([]ledger.Entry, error)
}

type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Catalog interface {
	GetTable(ctx context.Context, params *glue.GetTableInput, optFns ...func(*glue.Options)) (*glue.GetTableOutput, error)
	CreatePartition(ctx context.Context, params *glue.CreatePartitionInput, optFns ...func(*glue.Options)) (*glue.CreatePartitionOutput, error)
}

type MetricsConfig struct {
	Bucket       string
	Prefix       string
	GlueDatabase string
	GlueTable    string
	Location     *time.Location
	DaysBack     int
}

type VerificationMetricsETL struct {
	Ledger  LedgerScanner
	S3      ObjectPutter
	Catalog Catalog // optional; without it partitions are left to RepairPartitions
	Cfg     MetricsConfig
	Log     *slog.Logger
	Now     func() time.Time
}

type RunReport struct {
	Entries    int      `json:"entries"`
	Days       []string `json:"days"`
	Rows       int      `json:"rows"`
	Objects    []string `json:"objects"`
	Partitions int      `json:"partitions_added"`
}

// Run aggregates the ledger into one Parquet object per day of the
// backfill window under <prefix>dt=YYYY-MM-DD/ and registers the partition.
func (e *VerificationMetricsETL) Run(ctx context.Context) (*RunReport, error) {
	if strings.TrimSpace(e.Cfg.Bucket) == "" {
		return nil, errors.New("missing env ANALYTICS_BUCKET")
	}
	loc := e.Cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	daysBack := e.Cfg.DaysBack
	if daysBack <= 0 {
		daysBack = 1
	}
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	log := e.Log
	if log == nil {
		log = logger.Discard()
	}

	entries, err := e.Ledger.ScanAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan ledger: %w", err)
	}

	today := now().In(loc)
	days := make([]string, 0, daysBack)
	for i := 0; i < daysBack; i++ {
		days = append(days, today.AddDate(0, 0, -i).Format("2006-01-02"))
	}

	byDay := Bucket(entries, loc, days)
	rep := &RunReport{Entries: len(entries), Days: days}

	for _, dt := range days {
		rows := byDay[dt]
		if len(rows) == 0 {
			continue
		}
		key := fmt.Sprintf("%sdt=%s/part-%s.parquet", e.Cfg.Prefix, dt, randHex(8))
		if err := e.writeParquetToS3(ctx, key, rows); err != nil {
			return rep, fmt.Errorf("write parquet dt=%s: %w", dt, err)
		}
		rep.Rows += len(rows)
		rep.Objects = append(rep.Objects, key)
		log.Info("metrics written", "dt", dt, "rows", len(rows), "key", key)

		if e.Catalog != nil && e.Cfg.GlueDatabase != "" {
			added, err := e.addPartition(ctx, dt)
			if err != nil {
				return rep, fmt.Errorf("glue partition dt=%s: %w", dt, err)
			}
			if added {
				rep.Partitions++
			}
		}
	}
	return rep, nil
}

// Bucket counts ledger events per shop for each requested day. Timestamps
// are converted to loc before taking the date. Days with no activity for a
// shop produce no row.
func Bucket(entries []ledger.Entry, loc *time.Location, days []string) map[string][]VerificationMetricsRow {
	want := make(map[string]bool, len(days))
	for _, d := range days {
		want[d] = true
	}
	type key struct{ day, shop string }
	acc := map[key]*VerificationMetricsRow{}
	row := func(day, shop string) *VerificationMetricsRow {
		k := key{day, shop}
		r, ok := acc[k]
		if !ok {
			r = &VerificationMetricsRow{Shop: shop, MetricDate: day}
			acc[k] = r
		}
		return r
	}
	dayOf := func(ts string) (string, bool) {
		if ts == "" {
			return "", false
		}
		t, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return "", false
		}
		d := t.In(loc).Format("2006-01-02")
		return d, want[d]
	}

	for _, en := range entries {
		shop := strings.ToLower(strings.TrimSpace(en.Shop))
		enrolledDay, enrolledOK := dayOf(en.EnrolledAt)
		if enrolledOK {
			r := row(enrolledDay, shop)
			r.Enrolled++
			if en.Status == "enrolled" {
				r.OpenEnrolled++
			}
		}
		if d, ok := dayOf(en.VerifiedAt); ok {
			r := row(d, shop)
			r.Verified++
			if enrolledOK && d == enrolledDay {
				r.VerifiedSameDay++
			}
		}
		if d, ok := dayOf(en.FlaggedAt); ok {
			row(d, shop).Flagged++
		}
		if d, ok := dayOf(en.FollowupSentAt); ok {
			row(d, shop).RemindersSent++
		}
	}

	out := map[string][]VerificationMetricsRow{}
	for k, r := range acc {
		out[k.day] = append(out[k.day], *r)
	}
	for d := range out {
		sort.Slice(out[d], func(i, j int) bool { return out[d][i].Shop < out[d][j].Shop })
	}
	return out
}

func (e *VerificationMetricsETL) writeParquetToS3(ctx context.Context, key string, rows []VerificationMetricsRow) error {
	localPath := filepath.Join(os.TempDir(), "verification_metrics_"+randHex(8)+".parquet")
	defer func() { _ = os.Remove(localPath) }()

	fw, err := local.NewLocalFileWriter(localPath)
	if err != nil {
		return fmt.Errorf("parquet file writer: %w", err)
	}

	pw, err := writer.NewParquetWriter(fw, new(VerificationMetricsRow), 1)
	if err != nil {
		_ = fw.Close()
		return fmt.Errorf("parquet writer: %w", err)
	}
	pw.RowGroupSize = 128 * 1024 * 1024
	pw.PageSize = 8 * 1024
	pw.CompressionType = 0

	for _, r := range rows {
		if err := pw.Write(r); err != nil {
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

	_, err = e.S3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.Cfg.Bucket),
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

// addPartition registers dt with the table's storage descriptor pointed at
// the day's prefix. An existing partition is not an error.
func (e *VerificationMetricsETL) addPartition(ctx context.Context, dt string) (bool, error) {
	tbl, err := e.Catalog.GetTable(ctx, &glue.GetTableInput{
		DatabaseName: aws.String(e.Cfg.GlueDatabase),
		Name:         aws.String(e.Cfg.GlueTable),
	})
	if err != nil {
		return false, fmt.Errorf("glue get table: %w", err)
	}

	sd := gluetypes.StorageDescriptor{}
	if tbl.Table != nil && tbl.Table.StorageDescriptor != nil {
		sd = *tbl.Table.StorageDescriptor
	}
	sd.Location = aws.String(fmt.Sprintf("s3://%s/%sdt=%s/", e.Cfg.Bucket, e.Cfg.Prefix, dt))

	_, err = e.Catalog.CreatePartition(ctx, &glue.CreatePartitionInput{
		DatabaseName: aws.String(e.Cfg.GlueDatabase),
		TableName:    aws.String(e.Cfg.GlueTable),
		PartitionInput: &gluetypes.PartitionInput{
			Values:            []string{dt},
			StorageDescriptor: &sd,
		},
	})
	if err != nil {
		var exists *gluetypes.AlreadyExistsException
		if errors.As(err, &exists) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func randHex(nBytes int) string {
	b := make([]byte, nBytes)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

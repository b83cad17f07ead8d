/*
Package archive writes stored calculations and their audit traces to an
S3-compatible bucket as immutable JSON documents.

PURPOSE:
  The calculation store is the system of record. The archive is a second,
  write-once copy a regulator or auditor can read without database access.
  Objects are created with If-None-Match so an existing trace is never
  overwritten.

LAYOUT:
  traces/<JURISDICTION>/<calculation id>.json

ENVIRONMENT:
  EPR_ARCHIVE_BUCKET=<bucket>      (archive disabled when empty)
  EPR_ARCHIVE_REGION=<region>      (default us-east-1)
  EPR_ARCHIVE_ENDPOINT=<url>       (optional, e.g. MinIO; enables path style)
  AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY / AWS_SESSION_TOKEN (optional)
*/
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/warp/epr-engine/engine"
)

// ErrAlreadyArchived is returned when a trace object already exists.
var ErrAlreadyArchived = errors.New("trace already archived")

// ObjectClient is the subset of *s3.Client the archive uses.
type ObjectClient interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	PathStyle       bool
}

// Document is the archived form of one calculation.
type Document struct {
	Calculation *engine.FeeCalculation `json:"calculation"`
	Steps       []engine.TraceStep     `json:"steps"`
}

type S3Archive struct {
	client ObjectClient
	bucket string
}

var _ engine.TraceArchiver = (*S3Archive)(nil)

// New builds an archive backed by the default AWS credential chain, or by
// static credentials when cfg carries them.
func New(ctx context.Context, cfg Config) (*S3Archive, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
	})
	return NewWithClient(client, cfg.Bucket), nil
}

func NewWithClient(client ObjectClient, bucket string) *S3Archive {
	return &S3Archive{client: client, bucket: bucket}
}

// Key returns the object key for a calculation.
func Key(jurisdiction engine.JurisdictionCode, id engine.CalculationID) string {
	return fmt.Sprintf("traces/%s/%s.json", jurisdiction, id)
}

// ArchiveTrace writes the calculation and its trace. The calculation must
// already carry the id assigned by the ledger.
func (a *S3Archive) ArchiveTrace(ctx context.Context, calc *engine.FeeCalculation) error {
	if calc.ID == "" {
		return fmt.Errorf("archive: calculation has no id")
	}
	body, err := json.Marshal(Document{Calculation: calc, Steps: calc.Trace})
	if err != nil {
		return fmt.Errorf("archive: encode %s: %w", calc.ID, err)
	}

	key := Key(calc.Jurisdiction.Code, calc.ID)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		IfNoneMatch: aws.String("*"),
		Metadata: map[string]string{
			"jurisdiction":     string(calc.Jurisdiction.Code),
			"rule-set-version": calc.RuleSetVersion,
			"total-fee":        calc.TotalFee.String(),
		},
	})
	if err != nil {
		if isPreconditionFailed(err) {
			return fmt.Errorf("%w: %s", ErrAlreadyArchived, key)
		}
		return fmt.Errorf("archive: put %s: %w", key, err)
	}
	return nil
}

// Fetch reads an archived document back.
func (a *S3Archive) Fetch(ctx context.Context, jurisdiction engine.JurisdictionCode, id engine.CalculationID) (*Document, error) {
	key := Key(jurisdiction, id)
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("archive: get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("archive: read %s: %w", key, err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("archive: decode %s: %w", key, err)
	}
	if doc.Calculation != nil {
		doc.Calculation.Trace = doc.Steps
	}
	return &doc, nil
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "PreconditionFailed"
	}
	return false
}

package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/debemdeboas/markedit/internal/model"
	"github.com/debemdeboas/markedit/internal/util"
)

// S3API is the subset of the S3 client the repository calls.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

type S3Options struct {
	Bucket   string
	Prefix   string
	Endpoint string
	Region   string

	AccessKeyID     string
	AccessKeySecret string
}

// S3DocumentRepository stores each document as a JSON object under Prefix.
type S3DocumentRepository struct { // implements DocumentRepository
	client S3API
	bucket string
	prefix string

	now Clock
}

func NewS3DocumentRepository(ctx context.Context, opts S3Options) (*S3DocumentRepository, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.AccessKeySecret, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing S3 client: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3DocumentRepositoryWithClient(client, opts.Bucket, opts.Prefix), nil
}

func NewS3DocumentRepositoryWithClient(client S3API, bucket, prefix string) *S3DocumentRepository {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3DocumentRepository{
		client: client,
		bucket: bucket,
		prefix: prefix,
		now:    utcNow,
	}
}

func (r *S3DocumentRepository) WithClock(now Clock) *S3DocumentRepository {
	r.now = now
	return r
}

func (r *S3DocumentRepository) key(id model.DocumentID) (string, error) {
	name, err := objectName(id)
	if err != nil {
		return "", err
	}
	return r.prefix + name, nil
}

func isS3NotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}

func (r *S3DocumentRepository) put(ctx context.Context, doc *model.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("error encoding document: %w", err)
	}
	key, err := r.key(doc.ID)
	if err != nil {
		return err
	}
	_, err = r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("error writing object %s: %w", key, err)
	}
	return nil
}

func (r *S3DocumentRepository) get(ctx context.Context, key string) (*model.Document, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if isS3NotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error reading object %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading object %s: %w", key, err)
	}
	var doc model.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("error decoding object %s: %w", key, err)
	}
	return &doc, nil
}

func (r *S3DocumentRepository) exists(ctx context.Context, id model.DocumentID) error {
	key, err := r.key(id)
	if err != nil {
		return err
	}
	_, err = r.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if isS3NotFound(err) {
		return ErrNotFound
	}
	return err
}

func (r *S3DocumentRepository) Create(ctx context.Context) (*model.Document, error) {
	doc := model.NewDocument(r.now())
	if err := r.put(ctx, doc); err != nil {
		return nil, fmt.Errorf("error creating document: %w", err)
	}
	return doc, nil
}

func (r *S3DocumentRepository) Load(ctx context.Context, id model.DocumentID) (*model.Document, error) {
	key, err := r.key(id)
	if err != nil {
		return nil, err
	}
	return r.get(ctx, key)
}

func (r *S3DocumentRepository) Save(ctx context.Context, doc *model.Document) error {
	if err := r.exists(ctx, doc.ID); err != nil {
		return err
	}

	saved := *doc
	saved.UpdatedAt = r.now()
	if err := r.put(ctx, &saved); err != nil {
		return fmt.Errorf("error saving document: %w", err)
	}
	doc.UpdatedAt = saved.UpdatedAt
	return nil
}

func (r *S3DocumentRepository) Rename(ctx context.Context, id model.DocumentID, title string) error {
	doc, err := r.Load(ctx, id)
	if err != nil {
		return err
	}
	doc.Title = model.NormalizeTitle(title)
	doc.UpdatedAt = r.now()
	return r.put(ctx, doc)
}

func (r *S3DocumentRepository) Delete(ctx context.Context, id model.DocumentID) error {
	if err := r.exists(ctx, id); err != nil {
		return err
	}
	key, _ := r.key(id)
	_, err := r.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("error deleting object %s: %w", key, err)
	}
	return nil
}

func (r *S3DocumentRepository) all(ctx context.Context) ([]*model.Document, error) {
	paginator := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.bucket),
		Prefix: aws.String(r.prefix),
	})

	var docs []*model.Document
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("error listing objects: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, documentExt) {
				continue
			}
			doc, err := r.get(ctx, key)
			if err != nil {
				repoLogger.Warn().Err(err).Str("key", key).Msg("Skipping unreadable document")
				continue
			}
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func (r *S3DocumentRepository) List(ctx context.Context) ([]model.DocumentSummary, error) {
	docs, err := r.all(ctx)
	if err != nil {
		return nil, err
	}
	list := make([]model.DocumentSummary, 0, len(docs))
	for _, doc := range docs {
		list = append(list, doc.Summary())
	}
	sortSummaries(list)
	return list, nil
}

func (r *S3DocumentRepository) FindBySourcePath(ctx context.Context, path string) (*model.Document, error) {
	key := util.NormalizePath(path)
	if key == "" {
		return nil, ErrNotFound
	}
	docs, err := r.all(ctx)
	if err != nil {
		return nil, err
	}
	var found *model.Document
	for _, doc := range docs {
		if util.NormalizePath(doc.SourcePath) == key && (found == nil || doc.UpdatedAt.After(found.UpdatedAt)) {
			found = doc
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

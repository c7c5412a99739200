// Package s3 implements mediastore.Provider on an S3-compatible bucket.
// Each storage backend maps to one bucket (one credential set);
// namespace containers are key prefixes marked by a zero-byte marker
// object, and the account quota is the configured bucket budget probed
// against the summed object sizes.
package s3

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/artreg/mediastore/pkg/mediastore"
)

// markerName is the zero-byte object that marks a container prefix as
// existing.
const markerName = ".container"

// Config options for the S3 provider
type Config struct {
	BackendID       string // Backend id this credential set belongs to
	Region          string // AWS region
	Bucket          string // S3 bucket name
	AccessKeyID     string // AWS access key ID
	SecretAccessKey string // AWS secret access key
	Endpoint        string // Optional custom endpoint for S3-compatible services
	UsePathStyle    bool   // Use path-style addressing (default: false)

	// TotalBytes is the bucket's configured capacity budget. Zero means
	// no explicit limit; the capacity monitor substitutes its fallback.
	TotalBytes int64

	// PublicBaseURL overrides the base URL embedded in retrieval links.
	// Defaults to the virtual-hosted bucket URL, or <endpoint>/<bucket>
	// when a custom endpoint is set.
	PublicBaseURL string
}

// Provider is an S3-compatible implementation of the
// mediastore.Provider interface
type Provider struct {
	client  *s3.Client
	bucket  string
	baseURL string
	config  Config
}

// New creates a new S3-compatible storage provider
func New(config Config) (*Provider, error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}

	if config.Region == "" {
		config.Region = "us-east-1"
	}

	var awsCfg aws.Config
	var err error

	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(config.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				config.AccessKeyID,
				config.SecretAccessKey,
				"",
			)),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(config.Region),
		)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Options []func(*s3.Options)
	if config.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = config.UsePathStyle
		})
	}

	baseURL := config.PublicBaseURL
	if baseURL == "" {
		if config.Endpoint != "" {
			baseURL = strings.TrimSuffix(config.Endpoint, "/") + "/" + config.Bucket
		} else {
			baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", config.Bucket, config.Region)
		}
	}

	return &Provider{
		client:  s3.NewFromConfig(awsCfg, s3Options...),
		bucket:  config.Bucket,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		config:  config,
	}, nil
}

func (p *Provider) markerKey(parentID, name string) string {
	prefix := name
	if parentID != "" {
		prefix = parentID + "/" + name
	}
	return prefix + "/" + markerName
}

// FindContainer checks for the container's marker object under the
// parent prefix.
func (p *Provider) FindContainer(ctx context.Context, parentID, name string) (string, error) {
	_, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.markerKey(parentID, name)),
	})
	if err != nil {
		if isNotFound(err) {
			return "", mediastore.ErrContainerNotFound
		}
		return "", fmt.Errorf("failed to look up container: %w", err)
	}

	if parentID == "" {
		return name, nil
	}
	return parentID + "/" + name, nil
}

// CreateContainer writes the marker object for the prefix. Writing the
// marker twice is harmless, so a lost race degrades to a no-op.
func (p *Provider) CreateContainer(ctx context.Context, parentID, name string) (string, error) {
	_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.markerKey(parentID, name)),
		Body:   strings.NewReader(""),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}

	if parentID == "" {
		return name, nil
	}
	return parentID + "/" + name, nil
}

// Upload streams the object under the container prefix. The provider
// object id is the full key; a random component keeps display names
// from colliding.
func (p *Provider) Upload(ctx context.Context, params mediastore.UploadParams) (*mediastore.ProviderObject, error) {
	key := params.ContainerID + "/" + uuid.NewString() + "_" + sanitizeName(params.Name)

	uploader := manager.NewUploader(p.client)

	input := &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
		Body:   params.Reader,
	}
	if params.MimeType != "" {
		input.ContentType = aws.String(params.MimeType)
	}

	if _, err := uploader.Upload(ctx, input); err != nil {
		return nil, fmt.Errorf("failed to upload to S3: %w", err)
	}

	// S3 does not echo the object size on upload; the caller falls back
	// to the declared size.
	return &mediastore.ProviderObject{
		ID:   key,
		Link: p.baseURL + "/" + escapeKey(key),
	}, nil
}

// allUsersGrant is the grantee string for the S3 AllUsers group, the
// ACL form of "anyone with the link".
const allUsersGrant = `uri="http://acs.amazonaws.com/groups/global/AllUsers"`

// GrantAccess applies the grant set via the object's ACL. PutObjectAcl
// replaces the whole ACL document, so all grants are composed into one
// write: a public reader becomes an AllUsers group read grant and an
// account writer becomes full control for that canonical account id.
func (p *Provider) GrantAccess(ctx context.Context, objectID string, grants []mediastore.AccessGrant) error {
	if len(grants) == 0 {
		return nil
	}

	input := &s3.PutObjectAclInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(objectID),
	}

	for _, grant := range grants {
		switch {
		case grant.Public && grant.Role == mediastore.GrantRoleReader:
			input.GrantRead = aws.String(allUsersGrant)
		case grant.Role == mediastore.GrantRoleWriter && grant.Account != "":
			input.GrantFullControl = aws.String("id=" + grant.Account)
		default:
			return fmt.Errorf("unsupported access grant: role %s", grant.Role)
		}
	}

	if _, err := p.client.PutObjectAcl(ctx, input); err != nil {
		if isNotFound(err) {
			return mediastore.ErrObjectNotFound
		}
		return fmt.Errorf("failed to apply object ACL: %w", err)
	}
	return nil
}

// Delete removes the object. S3 reports success for keys that no longer
// exist, which matches the idempotence this interface asks for.
func (p *Provider) Delete(ctx context.Context, objectID string) error {
	_, err := p.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(objectID),
	})
	if err != nil {
		if isNotFound(err) {
			return mediastore.ErrObjectNotFound
		}
		return fmt.Errorf("failed to delete from S3: %w", err)
	}
	return nil
}

// Quota sums the stored object sizes; the total comes from the
// configured bucket budget. Zero total means no explicit limit.
func (p *Provider) Quota(ctx context.Context) (mediastore.QuotaInfo, error) {
	var used int64

	paginator := s3.NewListObjectsV2Paginator(p.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(p.bucket),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return mediastore.QuotaInfo{}, fmt.Errorf("failed to list bucket objects: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Size != nil {
				used += *obj.Size
			}
		}
	}

	return mediastore.QuotaInfo{UsedBytes: used, TotalBytes: p.config.TotalBytes}, nil
}

// ObjectIDFromLink recovers the object key from a retrieval link issued
// by this provider.
func (p *Provider) ObjectIDFromLink(link string) (string, error) {
	if !strings.HasPrefix(link, p.baseURL+"/") {
		return "", mediastore.ErrUnparseableLink
	}

	rest := strings.TrimPrefix(link, p.baseURL+"/")
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}

	key, err := url.PathUnescape(rest)
	if err != nil || key == "" {
		return "", mediastore.ErrUnparseableLink
	}
	return key, nil
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

func sanitizeName(name string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", " ", "_", "#", "_", "?", "_")
	return replacer.Replace(name)
}

func escapeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}

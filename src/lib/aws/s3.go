package aws

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var s3Client *s3.Client

func GetS3Client() *s3.Client {
	if s3Client != nil {
		return s3Client
	}
	cfg, err := awsconfig.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Printf("Could not load default config: %s\n", err.Error())
		return nil
	}
	svc := s3.NewFromConfig(cfg)
	s3Client = svc
	return svc
}

func NewS3Client(c *s3.Client) {
	s3Client = c
}

// S3UploadObject writes data under the given key in the assets bucket and
// returns the public URL of the object. The caller owns key uniqueness.
func S3UploadObject(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	assetsBucket := os.Getenv("S3_ASSETS_BUCKET")
	client := GetS3Client()
	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(assetsBucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		log.Printf("Could not put object to S3 bucket: %s\n", err.Error())
		return "", err
	}
	log.Printf("Added object '%s' to bucket '%s'", key, assetsBucket)
	base := strings.TrimSuffix(os.Getenv("S3_PUBLIC_BASE_URL"), "/")
	if base == "" {
		base = fmt.Sprintf("https://%s.s3.amazonaws.com", assetsBucket)
	}
	return fmt.Sprintf("%s/%s", base, key), nil
}

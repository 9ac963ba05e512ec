package services

import (
	"bytes"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"lead-console/config"
	"lead-console/internal/models"
	"lead-console/internal/utils"
)

type S3Service struct {
	s3Client *s3.S3
	config   *config.S3Config
}

func NewS3Service(config *config.S3Config) (*S3Service, error) {
	region := config.Region
	if region == "" {
		region = "us-east-1"
	}
	awsConfig := &aws.Config{
		Region:      aws.String(region),
		Credentials: credentials.NewStaticCredentials(config.AccessKey, config.SecretKey, ""),
	}
	if config.ServiceUrl != "" {
		awsConfig.Endpoint = aws.String(config.ServiceUrl)
		awsConfig.S3ForcePathStyle = aws.Bool(config.PathStyle)
	}
	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("error creating S3 session: %v", err)
	}

	return &S3Service{
		s3Client: s3.New(sess),
		config:   config,
	}, nil
}

func (s *S3Service) UploadBytes(data []byte, fileName string, contentType string) (string, error) {
	params := &s3.PutObjectInput{
		Bucket:      aws.String(s.config.BucketName),
		Key:         aws.String(fileName),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	}

	_, err := s.s3Client.PutObject(params)
	if err != nil {
		return "", fmt.Errorf("error uploading to S3: %v", err)
	}

	fileUrl := fmt.Sprintf("%s/%s", s.config.BucketUrl, fileName)
	return fileUrl, nil
}

// UploadExport stores an export document under exports/ and returns its URL.
func (s *S3Service) UploadExport(doc *models.Document) (string, error) {
	key := fmt.Sprintf("exports/%d_%s", time.Now().UnixNano(), doc.FileName)
	utils.LogInfo("Uploading export to S3: %s", key)

	url, err := s.UploadBytes(doc.Data, key, doc.ContentType)
	if err != nil {
		return "", err
	}
	utils.LogInfo("Export uploaded: %s", url)
	return url, nil
}

// Пакет storage — S3-совместимое объектное хранилище (MinIO): presigned URL
// для загрузки и скачивания, удаление объектов, формат ключей.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// Config — параметры подключения к хранилищу.
type Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	// Timeout ограничивает каждую операцию с хранилищем
	Timeout time.Duration
}

// loadAWSConfig подменяется в тестах.
var loadAWSConfig = awsconfig.LoadDefaultConfig

// S3Store — клиент бакета гостевой книги.
type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	timeout time.Duration
	logger  *slog.Logger
}

// NewS3Store создаёт клиент хранилища. Сетевых запросов не выполняет.
// Используется path-style адресация: MinIO не поддерживает virtual-host.
func NewS3Store(ctx context.Context, cfg Config, logger *slog.Logger) (*S3Store, error) {
	awsCfg, err := loadAWSConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey, cfg.SecretKey, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации S3: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &S3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		timeout: timeout,
		logger:  logger.With(slog.String("component", "s3_store")),
	}, nil
}

// PresignPut возвращает URL для одной загрузки PUT с заданным Content-Type.
// Content-Type входит в подпись: PUT с другим типом хранилище отклонит.
func (s *S3Store) PresignPut(ctx context.Context, key, contentType string, expires time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(expires), signHeader("Content-Type", contentType))
	if err != nil {
		return "", fmt.Errorf("ошибка подписи PUT %s: %w", key, err)
	}
	return req.URL, nil
}

// signHeader добавляет заголовок в запрос до подписи.
// Presign-клиент сам не подписывает Content-Type из PutObjectInput.
func signHeader(name, value string) func(*s3.PresignOptions) {
	return func(po *s3.PresignOptions) {
		po.ClientOptions = append(po.ClientOptions, func(o *s3.Options) {
			o.APIOptions = append(o.APIOptions, smithyhttp.SetHeaderValue(name, value))
		})
	}
}

// PresignGet возвращает URL для скачивания объекта.
func (s *S3Store) PresignGet(ctx context.Context, key string, expires time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", fmt.Errorf("ошибка подписи GET %s: %w", key, err)
	}
	return req.URL, nil
}

// Delete удаляет объект. Отсутствующий объект ошибкой не считается.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("ошибка удаления объекта %s: %w", key, err)
	}
	s.logger.Debug("Объект удалён", slog.String("key", key))
	return nil
}

// CheckReady проверяет доступность бакета через HeadBucket.
func (s *S3Store) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return "fail", fmt.Sprintf("S3 бакет %s недоступен: %v", s.bucket, err)
	}
	return "ok", fmt.Sprintf("бакет %s доступен", s.bucket)
}

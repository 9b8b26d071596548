// Package artifact — выгрузка крупных результатов шагов в object storage.
//
// Результаты шагов хранятся inline в step_runs как JSONB. Рендеры,
// аудио и прочие крупные payload'ы раздувают строки и выгружаются
// в S3-совместимое хранилище; в записи остаётся только ResultRef.
package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// DefaultInlineLimit — максимальный размер результата, хранимого inline.
const DefaultInlineLimit = 256 * 1024 // 256 KB

// Store — хранилище артефактов поверх S3-совместимого API.
type Store struct {
	client      *minio.Client
	bucket      string
	inlineLimit int
}

// Config — конфигурация Store.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool

	// InlineLimit — порог выгрузки в байтах (default: DefaultInlineLimit).
	InlineLimit int
}

// NewStore создаёт Store и гарантирует существование bucket.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("artifact store: endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("artifact store: bucket is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("new minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("make bucket: %w", err)
		}
	}

	inlineLimit := cfg.InlineLimit
	if inlineLimit <= 0 {
		inlineLimit = DefaultInlineLimit
	}

	return &Store{
		client:      client,
		bucket:      cfg.Bucket,
		inlineLimit: inlineLimit,
	}, nil
}

// NewStoreFromEnv создаёт Store из переменных окружения
// (S3_ENDPOINT, S3_ACCESS_KEY, S3_SECRET_KEY, S3_BUCKET, S3_USE_SSL).
// Возвращает (nil, nil), если S3_ENDPOINT не задан: выгрузка артефактов
// опциональна, без неё все результаты хранятся inline.
func NewStoreFromEnv(ctx context.Context) (*Store, error) {
	endpoint := os.Getenv("S3_ENDPOINT")
	if endpoint == "" {
		return nil, nil
	}

	bucket := os.Getenv("S3_BUCKET")
	if bucket == "" {
		bucket = "montage-artifacts"
	}

	return NewStore(ctx, Config{
		Endpoint:  endpoint,
		AccessKey: os.Getenv("S3_ACCESS_KEY"),
		SecretKey: os.Getenv("S3_SECRET_KEY"),
		Bucket:    bucket,
		UseSSL:    os.Getenv("S3_USE_SSL") == "true",
	})
}

// MaybeOffload выгружает результат шага, если он больше inline-порога.
// Возвращает (результат для inline-хранения, ref). Если выгрузка не
// нужна, результат возвращается как есть с пустым ref.
func (s *Store) MaybeOffload(ctx context.Context, projectID uuid.UUID, position int, result map[string]any) (map[string]any, string, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, "", fmt.Errorf("marshal result: %w", err)
	}
	if len(payload) <= s.inlineLimit {
		return result, "", nil
	}

	key := fmt.Sprintf("results/%s/%d/%s.json", projectID, position, uuid.New())
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return nil, "", fmt.Errorf("put artifact: %w", err)
	}

	// Inline остаётся только указатель: downstream шаги при сборке
	// входов получают полный payload через Fetch.
	stub := map[string]any{"_artifact_ref": key}
	return stub, key, nil
}

// Fetch загружает выгруженный результат по ref.
func (s *Store) Fetch(ctx context.Context, ref string) (map[string]any, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, ref, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get artifact: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("unmarshal artifact: %w", err)
	}
	return result, nil
}

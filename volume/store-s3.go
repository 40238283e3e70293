/*
Copyright (C) 2026  voxcp Contributors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package volume

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// S3Backend fetches .vxb containers from S3 or S3-compatible storage
// (MinIO etc). Objects are spooled into Settings.SpoolPath; the spool
// file is keyed by a hash of the remote path so repeated loads of the
// same object reuse the download.
type S3Backend struct {
	Prefix          string // mount prefix, e.g. "s3://volumes/"
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Endpoint        string // custom endpoint for S3-compatible storage
	Bucket          string
	ForcePathStyle  bool // path-style URLs (required for MinIO)

	mu     sync.Mutex
	client *s3.Client
}

func NewS3Backend(cfg BackendConfig) *S3Backend {
	return &S3Backend{
		Prefix:          cfg.Prefix,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		Region:          cfg.Region,
		Endpoint:        cfg.Endpoint,
		Bucket:          cfg.Bucket,
		ForcePathStyle:  cfg.ForcePathStyle,
	}
}

func (b *S3Backend) ensureOpen() *s3.Client {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != nil {
		return b.client
	}

	ctx := context.Background()
	var opts []func(*config.LoadOptions) error
	if b.Region != "" {
		opts = append(opts, config.WithRegion(b.Region))
	}
	if b.AccessKeyID != "" && b.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(b.AccessKeyID, b.SecretAccessKey, ""),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		panic(fmt.Sprintf("S3Backend: failed to load AWS config: %v", err))
	}

	var s3Opts []func(*s3.Options)
	if b.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(b.Endpoint)
		})
	}
	if b.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	b.client = s3.NewFromConfig(cfg, s3Opts...)
	return b.client
}

func (b *S3Backend) key(path string) string {
	return strings.TrimPrefix(path, b.Prefix)
}

func (b *S3Backend) Exists(path string) bool {
	client := b.ensureOpen()
	_, err := client.HeadObject(context.Background(), &s3.HeadObjectInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(b.key(path)),
	})
	return err == nil
}

func (b *S3Backend) Fetch(path string) (string, error) {
	sum := blake3.Sum256([]byte(path))
	spooled := filepath.Join(Settings.SpoolPath, fmt.Sprintf("%x.vxb", sum[:16]))
	if stat, err := os.Stat(spooled); err == nil && stat.Size() > 0 {
		return spooled, nil
	}

	client := b.ensureOpen()
	resp, err := client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(b.key(path)),
	})
	if err != nil {
		return "", fmt.Errorf("s3 fetch %s: %v", path, err)
	}
	defer resp.Body.Close()

	// download into a uniquely named partial first, then rename, so a
	// concurrent Fetch of the same object never reads a half spool
	os.MkdirAll(Settings.SpoolPath, 0750)
	partial := filepath.Join(Settings.SpoolPath, uuid.NewString()+".partial")
	f, err := os.Create(partial)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(partial)
		return "", fmt.Errorf("s3 fetch %s: %v", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(partial)
		return "", err
	}
	if err := os.Rename(partial, spooled); err != nil {
		os.Remove(partial)
		return "", err
	}
	return spooled, nil
}

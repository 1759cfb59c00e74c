// Copyright © 2018 One Concern

// Package sthree stores blocks as objects in an S3 bucket.
package sthree

import (
	"bytes"
	"context"
	"io"
	"path"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/oneconcern/cryptfs/pkg/blockstore"
)

// Option configures the S3 block store
type Option func(*s3Store)

// Bucket sets the target bucket
func Bucket(bucket string) Option {
	return func(s *s3Store) {
		s.bucket = bucket
	}
}

// Prefix places all blocks under some common prefix in the bucket
func Prefix(prefix string) Option {
	return func(s *s3Store) {
		s.prefix = prefix
	}
}

// AWSConfig sets the configuration used to build the S3 client
func AWSConfig(cfg *aws.Config) Option {
	return func(s *s3Store) {
		s.awsConfig = cfg
	}
}

// Client injects a ready-made S3 client
func Client(client s3iface.S3API) Option {
	return func(s *s3Store) {
		s.s3 = client
	}
}

// New S3 block store
func New(option Option, options ...Option) (blockstore.BlockStore, error) {
	s := new(s3Store)
	option(s)
	for _, apply := range options {
		apply(s)
	}

	if s.s3 == nil {
		sess, err := session.NewSession(s.awsConfig)
		if err != nil {
			return nil, err
		}
		s.s3 = s3.New(sess)
	}
	return s, nil
}

type s3Store struct {
	bucket    string
	prefix    string
	awsConfig *aws.Config
	s3        s3iface.S3API

	// S3 has no conditional put: exclusive creations are serialized within this process only
	createMx sync.Mutex
}

func (s *s3Store) objectKey(key blockstore.Key) string {
	return path.Join(s.prefix, key.String())
}

func (s *s3Store) Exists(ctx context.Context, key blockstore.Key) (bool, error) {
	_, err := s.s3.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		if isNotExists(err) {
			return false, nil
		}
		return false, toSentinelErrors(err)
	}
	return true, nil
}

func (s *s3Store) Create(ctx context.Context, data []byte) (blockstore.Key, error) {
	return blockstore.CreateWithRandomKey(ctx, s, data)
}

func (s *s3Store) TryCreate(ctx context.Context, key blockstore.Key, data []byte) (bool, error) {
	s.createMx.Lock()
	defer s.createMx.Unlock()

	has, err := s.Exists(ctx, key)
	if err != nil || has {
		return false, err
	}
	return true, s.Store(ctx, key, data)
}

func (s *s3Store) Store(ctx context.Context, key blockstore.Key, data []byte) error {
	_, err := s.s3.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
		Body:   bytes.NewReader(data),
	})
	return toSentinelErrors(err)
}

func (s *s3Store) Load(ctx context.Context, key blockstore.Key) ([]byte, bool, error) {
	obj, err := s.s3.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		if isNotExists(err) {
			return nil, false, nil
		}
		return nil, false, toSentinelErrors(err)
	}
	defer obj.Body.Close()

	data, err := io.ReadAll(obj.Body)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (s *s3Store) Remove(ctx context.Context, key blockstore.Key) (bool, error) {
	has, err := s.Exists(ctx, key)
	if err != nil || !has {
		return false, err
	}
	_, err = s.s3.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return false, toSentinelErrors(err)
	}
	return true, nil
}

func (s *s3Store) NumBlocks(ctx context.Context) (uint64, error) {
	var count uint64
	params := &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket)}
	if s.prefix != "" {
		params.Prefix = aws.String(s.prefix + "/")
	}
	err := s.s3.ListObjectsV2PagesWithContext(ctx, params, func(page *s3.ListObjectsV2Output, _ bool) bool {
		count += uint64(len(page.Contents))
		return true
	})
	if err != nil {
		return 0, toSentinelErrors(err)
	}
	return count, nil
}

func (s *s3Store) BlockSizeFromPhysicalBlockSize(blockSize uint64) uint64 {
	return blockSize
}

func (s *s3Store) Close() error {
	return nil
}

func (s *s3Store) String() string {
	return "s3@" + path.Join(s.bucket, s.prefix)
}

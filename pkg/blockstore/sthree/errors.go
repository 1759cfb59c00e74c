// Copyright © 2018 One Concern

package sthree

import (
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/oneconcern/cryptfs/pkg/blockstore/status"
)

// isNotExists tells if an S3 error reports a missing object
func isNotExists(err error) bool {
	rerr, ok := err.(awserr.RequestFailure)
	if !ok {
		return false
	}
	if rerr.StatusCode() != 404 {
		return false
	}
	switch rerr.Code() {
	case "NoSuchBucket":
		return false
	default:
		// NoSuchKey, NotFound (HEAD requests and minio)
		return true
	}
}

func apiErrors(err awserr.RequestFailure) error {
	// handle S3 API errors
	// https://docs.aws.amazon.com/sdk-for-go/api/aws/awserr/#RequestFailure
	switch err.StatusCode() {
	case 400:
		if err.Code() == "InvalidBucketName" {
			return status.ErrInvalidResource.Wrap(err)
		}
		return status.ErrStorageAPI.Wrap(err)
	case 401:
		return status.ErrUnauthorized.Wrap(err)
	case 403:
		return status.ErrForbidden.Wrap(err)
	case 404:
		if err.Code() == "NoSuchBucket" {
			return status.ErrInvalidResource.Wrap(err)
		}
		return status.ErrStorageAPI.Wrap(err)
	default:
		return status.ErrStorageAPI.Wrap(err)
	}
}

func toSentinelErrors(err error) error {
	// return sentinel errors defined by the status package
	// see: https://docs.aws.amazon.com/AmazonS3/latest/API/ErrorResponses.html#ErrorCodeList
	if err == nil {
		return nil
	}
	if awsErr, isAWS := err.(awserr.RequestFailure); isAWS {
		return apiErrors(awsErr)
	}
	return err
}

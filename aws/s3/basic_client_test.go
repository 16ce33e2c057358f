package s3_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	awss3 "github.com/aws/aws-sdk-go/service/s3"
	"github.com/golang/mock/gomock"
	"github.com/relloyd/stagesync/aws/s3"
	"github.com/relloyd/stagesync/aws/s3/mocks"
)

func TestBasicClient_Exists(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	api := mocks.NewMockObjectAPI(ctrl)
	c := s3.NewBasicClientWithAPI("bucket", "raw/", api)
	ctx := context.Background()

	api.EXPECT().HeadObjectWithContext(ctx, &awss3.HeadObjectInput{Bucket: aws.String("bucket"), Key: aws.String("raw/a.json")}).
		Return(&awss3.HeadObjectOutput{}, nil)
	ok, err := c.Exists(ctx, "a.json")
	if err != nil || !ok {
		t.Fatalf("expected existing key, got %v, %v", ok, err)
	}

	api.EXPECT().HeadObjectWithContext(ctx, gomock.Any()).Return(nil, awserr.New("NotFound", "not found", nil))
	ok, err = c.Exists(ctx, "b.json")
	if err != nil || ok {
		t.Fatalf("expected missing key without error, got %v, %v", ok, err)
	}

	api.EXPECT().HeadObjectWithContext(ctx, gomock.Any()).Return(nil, errors.New("boom"))
	if _, err = c.Exists(ctx, "c.json"); err == nil {
		t.Fatal("expected error")
	}
}

func TestBasicClient_PutUsesPrefix(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	api := mocks.NewMockObjectAPI(ctrl)
	c := s3.NewBasicClientWithAPI("bucket", "", api)
	api.EXPECT().PutObjectWithContext(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, in *awss3.PutObjectInput, _ ...interface{}) (*awss3.PutObjectOutput, error) {
			if *in.Key != "x.json" || *in.Bucket != "bucket" {
				t.Fatalf("unexpected input %v", in)
			}
			return &awss3.PutObjectOutput{}, nil
		})
	if err := c.Put(context.Background(), "x.json", []byte("[]")); err != nil {
		t.Fatal(err)
	}
}

func TestParseDSN(t *testing.T) {
	cases := []struct {
		in      string
		region  string
		want    s3.AwsS3Bucket
		wantErr bool
	}{
		{"s3://bucket/raw/json/", "eu-west-1", s3.AwsS3Bucket{Name: "bucket", Prefix: "raw/json", Region: "eu-west-1"}, false},
		{"bucket", "eu-west-1", s3.AwsS3Bucket{Name: "bucket", Region: "eu-west-1"}, false},
		{"gs://bucket", "eu-west-1", s3.AwsS3Bucket{}, true},
		{"s3://bucket", "", s3.AwsS3Bucket{}, true},
	}
	for _, c := range cases {
		got, err := s3.ParseDSN(c.in, c.region)
		if (err != nil) != c.wantErr {
			t.Fatalf("ParseDSN(%q) error = %v", c.in, err)
		}
		if !c.wantErr && got != c.want {
			t.Fatalf("ParseDSN(%q) = %+v; want %+v", c.in, got, c.want)
		}
	}
}

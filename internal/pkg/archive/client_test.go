package archive

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/outflo/outflo/app/models"
)

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	if params.Body != nil {
		f.body, _ = io.ReadAll(params.Body)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestObjectKey(t *testing.T) {
	cfg := &Config{Prefix: "/inbound/"}
	assert.Equal(t, "inbound/resend/2025/03/em_123.json", cfg.ObjectKey("resend", "em_123", 2025, 3))
	assert.Equal(t, "inbound/resend/2025/11/a_b_.._c.json", cfg.ObjectKey("resend", "a/b/../c", 2025, 11))

	cfg.Prefix = ""
	assert.Equal(t, "_/2024/01/_.json", cfg.ObjectKey(" ", "", 2024, 1))
}

func TestArchive_PutsRawPayload(t *testing.T) {
	putter := &fakePutter{}
	client := NewClientWithPutter(putter, &Config{BucketName: "outflo-archive", Prefix: "inbound"})

	event := &models.InboundEvent{
		ID:         "row-1",
		Provider:   models.ProviderResend,
		EventID:    "em_1",
		ReceivedAt: time.Date(2025, 3, 14, 23, 0, 0, 0, time.FixedZone("CET", -3600)),
		Raw:        datatypes.JSON(`{"id":"em_1"}`),
	}
	require.NoError(t, client.Archive(context.Background(), event))

	require.NotNil(t, putter.input)
	assert.Equal(t, "outflo-archive", aws.ToString(putter.input.Bucket))
	assert.Equal(t, "inbound/resend/2025/03/em_1.json", aws.ToString(putter.input.Key))
	assert.Equal(t, "application/json", aws.ToString(putter.input.ContentType))
	assert.Equal(t, int64(len(`{"id":"em_1"}`)), aws.ToInt64(putter.input.ContentLength))
	assert.Equal(t, "row-1", putter.input.Metadata["event-row-id"])
	assert.JSONEq(t, `{"id":"em_1"}`, string(putter.body))
}

func TestArchive_EmptyRawAndErrors(t *testing.T) {
	putter := &fakePutter{err: errors.New("access denied")}
	client := NewClientWithPutter(putter, &Config{BucketName: "b"})

	err := client.Archive(context.Background(), &models.InboundEvent{ID: "x", Provider: "resend", EventID: "e"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
	assert.Equal(t, "{}", string(putter.body))
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("ARCHIVE_ENABLED", "false")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "inbound", cfg.Prefix)

	_, err = NewClient(context.Background(), cfg)
	assert.Error(t, err)

	t.Setenv("ARCHIVE_ENABLED", "true")
	t.Setenv("S3_ACCESS_KEY_ID", "key")
	t.Setenv("S3_SECRET_ACCESS_KEY", "")
	_, err = LoadConfig()
	assert.ErrorContains(t, err, "S3_SECRET_ACCESS_KEY")
}

package utils_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tourney-service/models"
	"tourney-service/utils"
)

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = in
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = body
	return &s3.PutObjectOutput{}, nil
}

func TestR2Archive_ArchiveResult(t *testing.T) {
	putter := &fakePutter{}
	archive := &utils.R2Archive{Client: putter, Bucket: "results", CDNBaseURL: "https://cdn.example.test"}
	game := &models.GameInstance{ID: "g1", TournamentID: "t1", JoinCode: "NA0001-1", MatchID: "77"}

	url, err := archive.ArchiveResult(context.Background(), game, []byte(`{"gameId":77}`))
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.example.test/results/t1/g1.json", url)
	require.NotNil(t, putter.input)
	assert.Equal(t, "results", aws.ToString(putter.input.Bucket))
	assert.Equal(t, "results/t1/g1.json", aws.ToString(putter.input.Key))
	assert.Equal(t, "application/json", aws.ToString(putter.input.ContentType))
	assert.Equal(t, "77", putter.input.Metadata["match-id"])
	assert.JSONEq(t, `{"gameId":77}`, string(putter.body))
}

func TestR2Archive_UploadFailure(t *testing.T) {
	archive := &utils.R2Archive{Client: &fakePutter{err: errors.New("access denied")}, Bucket: "results"}

	_, err := archive.ArchiveResult(context.Background(), &models.GameInstance{ID: "g1"}, []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

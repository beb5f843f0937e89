package minio

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/koustreak/dbbrowse/internal/errs"
	"github.com/koustreak/dbbrowse/internal/filestore"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind errs.ErrKind
		code string
	}{
		{"deadline", context.DeadlineExceeded, errs.ErrKindTimeout, ""},
		{"no such key", miniogo.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound}, errs.ErrKindNotFound, "NoSuchKey"},
		{"access denied", miniogo.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}, errs.ErrKindPermissionDenied, "AccessDenied"},
		{"slow down", miniogo.ErrorResponse{Code: "SlowDown", StatusCode: http.StatusServiceUnavailable}, errs.ErrKindTimeout, "SlowDown"},
		{"bare 404", miniogo.ErrorResponse{StatusCode: http.StatusNotFound}, errs.ErrKindNotFound, ""},
		{"server error", miniogo.ErrorResponse{Code: "InternalError", StatusCode: http.StatusInternalServerError}, errs.ErrKindQueryFailed, "InternalError"},
		{"wrapped", fmt.Errorf("get: %w", miniogo.ErrorResponse{Code: "NoSuchBucket"}), errs.ErrKindNotFound, "NoSuchBucket"},
		{"transport", errors.New("dial tcp: connection refused"), errs.ErrKindConnectionFailed, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err, "op")
			require.NotNil(t, got)
			assert.Equal(t, tt.kind, got.Kind)
			assert.Equal(t, tt.code, got.Code)
			assert.Equal(t, tt.err, got.Cause)
		})
	}
	assert.Nil(t, mapError(nil, "op"))
}

func TestNormalizePrefix(t *testing.T) {
	assert.Equal(t, "", normalizePrefix(""))
	assert.Equal(t, "", normalizePrefix("/"))
	assert.Equal(t, "alice/", normalizePrefix("alice"))
	assert.Equal(t, "alice/work/", normalizePrefix("/alice//work/"))
}

func TestKey(t *testing.T) {
	d := &Driver{bucket: "b", prefix: normalizePrefix("team")}
	assert.Equal(t, "team/connections.json", d.key("connections.json"))
}

func TestNew_RequiresBucket(t *testing.T) {
	_, err := New(context.Background(), &filestore.Config{Provider: filestore.ProviderMinIO, Endpoint: "localhost:9000"})
	assert.True(t, errs.IsInvalidInput(err))
}

package lode

import (
	"errors"
	"os"
	"testing"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name     string
		errMsg   string
		wantKind error
	}{
		{name: "context deadline exceeded", errMsg: "context deadline exceeded", wantKind: ErrTimeout},
		{name: "AccessDenied response", errMsg: "AccessDenied: you do not have access", wantKind: ErrAccessDenied},
		{name: "HTTP 403", errMsg: "received status 403", wantKind: ErrAccessDenied},
		{name: "permission denied", errMsg: "open /var/cache/uadp/pub-1-7-1-0.meta: permission denied", wantKind: ErrPermissionDenied},
		{name: "no such file", errMsg: "open /var/cache/uadp/x.meta: no such file or directory", wantKind: ErrNotFound},
		{name: "S3 NoSuchKey", errMsg: "operation error S3: GetObject, NoSuchKey", wantKind: ErrNotFound},
		{name: "disk full", errMsg: "write /var/cache/uadp: no space left on device", wantKind: ErrDiskFull},
		{name: "SlowDown", errMsg: "SlowDown: Please reduce your request rate", wantKind: ErrThrottled},
		{name: "expired token", errMsg: "ExpiredToken: the security token has expired", wantKind: ErrAuth},
		{name: "connection refused", errMsg: "dial tcp 127.0.0.1:9000: connection refused", wantKind: ErrNetwork},
		{name: "unrecognized error", errMsg: "something completely unexpected happened", wantKind: ErrStorage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyError(errors.New(tt.errMsg))
			if !errors.Is(got, tt.wantKind) {
				t.Errorf("classifyError(%q) = %v, want %v", tt.errMsg, got, tt.wantKind)
			}
		})
	}
}

func TestClassifyError_Nil(t *testing.T) {
	if got := classifyError(nil); got != nil {
		t.Errorf("classifyError(nil) = %v, want nil", got)
	}
}

func TestWrapError(t *testing.T) {
	err := WrapError(os.ErrNotExist, "get", "pub-1-7-1-0.meta")

	var storageErr *StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("expected *StorageError, got %T", err)
	}
	if storageErr.Op != "get" || storageErr.Path != "pub-1-7-1-0.meta" {
		t.Errorf("Op/Path = %q/%q", storageErr.Op, storageErr.Path)
	}
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected errors.Is(err, ErrNotFound), got kind %v", storageErr.Kind)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Error("underlying error lost from chain")
	}

	// Already classified errors pass through unchanged.
	if again := WrapError(err, "put", "other"); again != err {
		t.Errorf("WrapError re-wrapped a StorageError: %v", again)
	}
	if WrapError(nil, "put", "x") != nil {
		t.Error("WrapError(nil) should be nil")
	}
}

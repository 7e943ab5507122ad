package utils

import (
	"context"
	"testing"
)

func TestContextHelpers(t *testing.T) {
	ctx := SetBusinessIdInContext(context.Background(), "biz-1")
	ctx = SetUserIdInContext(ctx, 42)
	ctx = SetUserNameInContext(ctx, "mgmg")

	if v, ok := GetBusinessIdFromContext(ctx); !ok || v != "biz-1" {
		t.Fatalf("business id = %q %v", v, ok)
	}
	if v, ok := GetUserIdFromContext(ctx); !ok || v != 42 {
		t.Fatalf("user id = %d %v", v, ok)
	}
	if v, ok := GetUserNameFromContext(ctx); !ok || v != "mgmg" {
		t.Fatalf("user name = %q %v", v, ok)
	}
	if _, ok := GetUserNameFromContext(context.Background()); ok {
		t.Fatalf("user name found in empty context")
	}
}

package config

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/inventory_backend/appctx"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"gorm.io/gorm"
)

func TestDatabaseDSN(t *testing.T) {
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_PASSWORD", "pw")
	t.Setenv("DB_HOST", "10.0.0.5")
	t.Setenv("DB_PORT", "3306")
	t.Setenv("DB_NAME", "inventory")
	if got, want := DatabaseDSN(), "app:pw@tcp(10.0.0.5:3306)/inventory?parseTime=true&loc=UTC"; got != want {
		t.Fatalf("DatabaseDSN() = %q, want %q", got, want)
	}

	t.Setenv("DB_HOST", "/cloudsql/proj:region:db")
	if got, want := DatabaseDSN(), "app:pw@unix(/cloudsql/proj:region:db)/inventory?parseTime=true&loc=UTC"; got != want {
		t.Fatalf("DatabaseDSN() = %q, want %q", got, want)
	}
}

func TestRetryDelay(t *testing.T) {
	cases := map[int]time.Duration{
		1:  2 * time.Second,
		2:  4 * time.Second,
		4:  16 * time.Second,
		5:  30 * time.Second,
		40: 30 * time.Second,
	}
	for attempt, want := range cases {
		if got := retryDelay(attempt); got != want {
			t.Fatalf("retryDelay(%d) = %s, want %s", attempt, got, want)
		}
	}
}

func TestLogLevelFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	if logLevelFromEnv() != logrus.ErrorLevel {
		t.Fatal("default level should be error")
	}
	t.Setenv("LOG_LEVEL", "debug")
	if logLevelFromEnv() != logrus.DebugLevel {
		t.Fatal("LOG_LEVEL=debug not honoured")
	}
	t.Setenv("LOG_LEVEL", "loud")
	if logLevelFromEnv() != logrus.ErrorLevel {
		t.Fatal("unknown level should fall back to error")
	}
}

func TestFeatureFlags(t *testing.T) {
	for _, v := range []string{"1", "true", "TRUE", " yes ", "y"} {
		t.Setenv("STOCK_EVENT_OUTBOX", v)
		if !StockEventOutboxEnabled() {
			t.Fatalf("STOCK_EVENT_OUTBOX=%q should enable", v)
		}
	}
	for _, v := range []string{"", "0", "false", "off"} {
		t.Setenv("STRICT_PICK_UP_SLIP_LINES", v)
		if StrictPickUpSlipLines() {
			t.Fatalf("STRICT_PICK_UP_SLIP_LINES=%q should disable", v)
		}
	}
}

func TestRedisHelpersWithoutClient(t *testing.T) {
	if GetRedisDB() != nil {
		t.Skip("redis connected")
	}
	isMember, cached, err := IsRedisSetMember(context.Background(), "ProductSkuSet:biz", "SKU-1")
	if err != nil || isMember || cached {
		t.Fatalf("IsRedisSetMember = %v, %v, %v", isMember, cached, err)
	}
	if err := AddRedisSet(context.Background(), "ProductSkuSet:biz", time.Minute, "SKU-1"); err != nil {
		t.Fatalf("AddRedisSet: %v", err)
	}
	if err := RemoveRedisKey(context.Background(), "ProductSkuSet:biz"); err != nil {
		t.Fatalf("RemoveRedisKey: %v", err)
	}
}

func TestLogErrorCtxAddsRequestFields(t *testing.T) {
	logger, hook := test.NewNullLogger()
	ctx := appctx.Set(context.Background(), appctx.ContextKeyCorrelationId, "cid-1")
	ctx = appctx.Set(ctx, appctx.ContextKeyUserName, "mgmg")

	LogErrorCtx(ctx, logger, "documentTransaction.go", "CreateDocument", "SO-0001", errors.New("boom"))

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatalf("no entry logged")
	}
	if entry.Level != logrus.ErrorLevel || entry.Message != "boom" {
		t.Fatalf("entry = %v %q", entry.Level, entry.Message)
	}
	if entry.Data["correlation_id"] != "cid-1" || entry.Data["user_name"] != "mgmg" || entry.Data["data"] != "SO-0001" {
		t.Fatalf("fields = %v", entry.Data)
	}

	hook.Reset()
	LogErrorCtx(context.Background(), logger, "m", "f", nil, errors.New("plain"))
	if _, ok := hook.LastEntry().Data["user_name"]; ok {
		t.Fatalf("user_name set without a user in context")
	}
}

func TestHandlesSwapWhileRead(t *testing.T) {
	t.Cleanup(func() {
		SetDB(nil)
		SetRedisDB(nil)
	})
	conn := &gorm.DB{}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			SetDB(conn)
			SetRedisDB(nil)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			if got := GetDB(); got != nil && got != conn {
				t.Errorf("GetDB() = %p", got)
			}
			_ = GetRedisLock()
		}
	}()
	wg.Wait()
	if GetDB() != conn {
		t.Fatal("SetDB not visible")
	}
}

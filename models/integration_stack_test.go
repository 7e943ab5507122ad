package models_test

import (
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/inventory_backend/config"
	"bitbucket.org/mmdatafocus/inventory_backend/models"
)

const (
	testMySQLPassword = "testpw"
	testMySQLDatabase = "inventory_test"
)

// container is one throwaway dependency of the integration suite.
type container struct {
	kind      string
	image     string
	port      string
	env       []string
	args      []string
	readiness []string
	wait      time.Duration
}

var (
	mysqlContainer = container{
		kind:  "mysql",
		image: "mysql:8.0",
		port:  "3306/tcp",
		env: []string{
			"MYSQL_ROOT_PASSWORD=" + testMySQLPassword,
			"MYSQL_DATABASE=" + testMySQLDatabase,
		},
		args:      []string{"--default-authentication-plugin=mysql_native_password"},
		readiness: []string{"mysqladmin", "ping", "-h", "127.0.0.1", "-p" + testMySQLPassword, "--silent"},
		wait:      120 * time.Second,
	}
	redisContainer = container{
		kind:      "redis",
		image:     "redis:7-alpine",
		port:      "6379/tcp",
		readiness: []string{"redis-cli", "ping"},
		wait:      60 * time.Second,
	}
)

var hostPortPattern = regexp.MustCompile(`:(\d+)\s*$`)

// setUpInventoryStack starts MySQL and redis, points config at them, connects and migrates.
// Containers are removed when t finishes.
func setUpInventoryStack(t *testing.T) {
	t.Helper()
	mysqlPort := startContainer(t, mysqlContainer)
	redisPort := startContainer(t, redisContainer)

	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", testMySQLPassword)
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", testMySQLDatabase)
	t.Setenv("REDIS_ADDRESS", "127.0.0.1:"+redisPort)
	t.Setenv("STOCK_EVENT_OUTBOX", "")
	t.Setenv("STRICT_PICK_UP_SLIP_LINES", "")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	t.Cleanup(func() {
		if sqlDB, err := config.GetDB().DB(); err == nil {
			_ = sqlDB.Close()
		}
		if rdb := config.GetRedisDB(); rdb != nil {
			_ = rdb.Close()
		}
		config.SetDB(nil)
		config.SetRedisDB(nil)
	})
	models.MigrateTable()
}

// startContainer runs c on a random loopback port and waits for its readiness command.
func startContainer(t *testing.T, c container) string {
	t.Helper()
	name := fmt.Sprintf("inventory-test-%s-%d", c.kind, time.Now().UnixNano())
	args := []string{"run", "-d", "--name", name, "-p", "127.0.0.1:0:" + strings.TrimSuffix(c.port, "/tcp")}
	for _, e := range c.env {
		args = append(args, "-e", e)
	}
	args = append(args, c.image)
	args = append(args, c.args...)
	if out, err := docker(args...); err != nil {
		t.Fatalf("start %s: %v\n%s", c.kind, err, out)
	}
	t.Cleanup(func() { _, _ = docker("rm", "-f", name) })

	out, err := docker("port", name, c.port)
	if err != nil {
		t.Fatalf("%s port: %v\n%s", c.kind, err, out)
	}
	// "127.0.0.1:49154"
	m := hostPortPattern.FindStringSubmatch(strings.TrimSpace(out))
	if m == nil {
		t.Fatalf("%s port: unexpected output %q", c.kind, out)
	}

	deadline := time.Now().Add(c.wait)
	for time.Now().Before(deadline) {
		if _, err := docker(append([]string{"exec", name}, c.readiness...)...); err == nil {
			return m[1]
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("%s did not become ready within %s", c.kind, c.wait)
	return ""
}

func docker(args ...string) (string, error) {
	b, err := exec.Command("docker", args...).CombinedOutput()
	return string(b), err
}

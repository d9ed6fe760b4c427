package mediscan_test

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/mediscan/pkg/mediscansdk"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

/*
 * Container setup and shared helpers for the MediScan end-to-end tests.
 * The image is built once in TestMain; every test gets its own container
 * and therefore its own database.
 */

const (
	testImageName = "mediscan-test:latest"

	bootstrapToken = "test-bootstrap-token-12345"
	adminEmail     = "admin@mediscan.test"
	adminPassword  = "Admin123!"
	userPassword   = "User123!pass"
)

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	fmt.Fprintf(os.Stdout, "Building MediScan Docker image...")
	if err := buildDockerImage(); err != nil {
		fmt.Fprintf(os.Stderr, "\nFailed to build Docker image: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, " done\n")

	exitCode := m.Run()

	fmt.Fprintf(os.Stdout, "Cleaning up MediScan Docker image...")
	cleanupDockerImage()
	fmt.Fprintf(os.Stdout, " done\n")

	os.Exit(exitCode)
}

func buildDockerImage() error {
	cmd := exec.CommandContext(context.Background(), "docker", "build",
		"-t", testImageName,
		"-f", "../../../cmd/mediscan/Dockerfile",
		"../../../")
	cmd.Stdout = os.Stdout
	return cmd.Run()
}

func cleanupDockerImage() {
	cmd := exec.CommandContext(context.Background(), "docker", "rmi", "-f", testImageName)
	_ = cmd.Run() // the image may already be gone
}

// baseEnv is the container environment shared by every test. Rate limits
// are raised so ordinary tests never trip them.
func baseEnv() map[string]string {
	return map[string]string{
		"ENV":                  "test",
		"LOG_LEVEL":            "info",
		"LOG_FORMAT":           "json",
		"BOOTSTRAP_TOKEN":      bootstrapToken,
		"ACCESS_TOKEN_SECRET":  strings.Repeat("a", 48),
		"REFRESH_TOKEN_SECRET": strings.Repeat("r", 48),

		"RATELIMIT_STRICT_REQUESTS":   "1000",
		"RATELIMIT_STRICT_BURST":      "1000",
		"RATELIMIT_LOGIN_REQUESTS":    "1000",
		"RATELIMIT_LOGIN_BURST":       "1000",
		"RATELIMIT_MODERATE_REQUESTS": "1000",
		"RATELIMIT_MODERATE_BURST":    "1000",
		"RATELIMIT_LENIENT_REQUESTS":  "1000",
		"RATELIMIT_LENIENT_BURST":     "1000",
	}
}

// setupContainer starts MediScan and returns its base URL. overrides are
// merged over baseEnv; an empty value removes the variable.
func setupContainer(t *testing.T, overrides map[string]string) string {
	t.Helper()
	if testing.Short() {
		t.Skip("e2e tests need docker")
	}
	ctx := context.Background()

	env := baseEnv()
	for k, v := range overrides {
		if v == "" {
			delete(env, k)
			continue
		}
		env[k] = v
	}

	req := testcontainers.ContainerRequest{
		Image:        testImageName,
		ExposedPorts: []string{"5000/tcp"},
		Env:          env,
		WaitingFor: wait.ForHTTP("/health").
			WithPort("5000/tcp").
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	mappedPort, err := container.MappedPort(ctx, "5000")
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	return fmt.Sprintf("http://%s:%s", host, mappedPort.Port())
}

// registerUser creates an account on its own client so cookies stay apart.
func registerUser(t *testing.T, baseURL, email string) *mediscansdk.Session {
	t.Helper()

	sess, err := mediscansdk.NewClient(baseURL).Register(t.Context(), mediscansdk.RegisterRequest{
		Email:     email,
		Password:  userPassword,
		FirstName: "Test",
		LastName:  "User",
	})
	require.NoError(t, err, "register %s", email)
	require.NotEmpty(t, sess.AccessToken())
	return sess
}

// bootstrapAdmin creates the first admin and signs in as them.
func bootstrapAdmin(t *testing.T, baseURL string) *mediscansdk.Session {
	t.Helper()
	client := mediscansdk.NewClient(baseURL)

	admin, err := client.Bootstrap(t.Context(), bootstrapToken, mediscansdk.BootstrapRequest{
		Email:     adminEmail,
		Password:  adminPassword,
		FirstName: "Site",
		LastName:  "Admin",
	})
	require.NoError(t, err, "bootstrap should succeed")
	require.Equal(t, "admin", admin.Role)

	sess, err := client.Login(t.Context(), adminEmail, adminPassword)
	require.NoError(t, err)
	return sess
}

func requireStatus(t *testing.T, err error, code int, msgAndArgs ...any) {
	t.Helper()
	require.Error(t, err, msgAndArgs...)
	require.True(t, mediscansdk.IsStatus(err, code), "want %d, got %v", code, err)
}

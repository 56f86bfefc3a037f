package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ssargent/dsusage/pkg/api"
	"github.com/ssargent/dsusage/pkg/config"
	"github.com/ssargent/dsusage/pkg/di"
	"github.com/ssargent/dsusage/pkg/storage"
	"github.com/ssargent/dsusage/pkg/transport"
)

const testState = `
settings:
  data_streams.failure_store.enabled: ["logs-*"]
data_streams:
  - name: logs-app
    indices: [a, b]
    failure_indices: [f1]
  - name: metrics-app
    indices: [c]
    failure_store:
      enabled: true
`

const (
	sampleJSON = `{"available":true,"enabled":true,"data_streams":10,"indices_count":25,` +
		`"failure_store":{"explicitly_enabled_count":3,"effectively_enabled_count":2,"failure_indices_count":7}}`
	stateJSON = `{"available":true,"enabled":true,"data_streams":2,"indices_count":3,` +
		`"failure_store":{"explicitly_enabled_count":1,"effectively_enabled_count":2,"failure_indices_count":1}}`
	envelopeHex = "0c646174615f73747265616d730101"
)

type testEnv struct {
	dir        string
	configPath string
	statePath  string
}

// newTestEnv writes a config and a cluster state file into a temp dir
func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()

	env := testEnv{
		dir:        dir,
		configPath: filepath.Join(dir, "config.yaml"),
		statePath:  filepath.Join(dir, "cluster-state.yaml"),
	}
	require.NoError(t, os.WriteFile(env.statePath, []byte(testState), 0600))

	cfg := config.DefaultConfig()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.Security.APIKey = "test-key"
	cfg.Cluster.StatePath = env.statePath
	require.NoError(t, config.SaveConfig(cfg, env.configPath))

	SetContainer(di.NewContainer())
	return env
}

func (e testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return e.runWithInput(t, "", args...)
}

// runWithInput executes the root command. Flags keep their values between runs,
// so callers pass every flag of the command they run.
func (e testEnv) runWithInput(t *testing.T, input string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(input))
	rootCmd.SetArgs(append([]string{"--config", e.configPath, "--log-level", "error"}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func encodeArgs(file, state, version string) []string {
	return []string{"encode", "--file", file, "--state", state, "--version", version, "--format", "hex"}
}

func decodeArgs(version string, rest ...string) []string {
	return append([]string{"decode", "--file", "", "--input", "hex", "--version", version, "-o", "json"}, rest...)
}

func TestEncodeCommand(t *testing.T) {
	env := newTestEnv(t)
	jsonPath := filepath.Join(env.dir, "usage.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(sampleJSON), 0600))

	t.Run("from json at current version", func(t *testing.T) {
		out, err := env.run(t, encodeArgs(jsonPath, "", "")...)
		require.NoError(t, err)
		assert.Equal(t, envelopeHex+"0a19030207\n", out)
	})

	t.Run("from json at older versions", func(t *testing.T) {
		out, err := env.run(t, encodeArgs(jsonPath, "", "8.15.0")...)
		require.NoError(t, err)
		assert.Equal(t, envelopeHex+"0a190307\n", out)

		out, err = env.run(t, encodeArgs(jsonPath, "", "8.14.0")...)
		require.NoError(t, err)
		assert.Equal(t, envelopeHex+"0a19\n", out)
	})

	t.Run("from stdin", func(t *testing.T) {
		out, err := env.runWithInput(t, sampleJSON, encodeArgs("-", "", "")...)
		require.NoError(t, err)
		assert.Equal(t, envelopeHex+"0a19030207\n", out)
	})

	t.Run("from cluster state", func(t *testing.T) {
		out, err := env.run(t, encodeArgs("", env.statePath, "")...)
		require.NoError(t, err)
		assert.Equal(t, envelopeHex+"0203010201\n", out)
	})

	t.Run("errors", func(t *testing.T) {
		_, err := env.run(t, encodeArgs(jsonPath, env.statePath, "")...)
		assert.Error(t, err)

		_, err = env.run(t, encodeArgs(jsonPath, "", "nope")...)
		assert.ErrorIs(t, err, transport.ErrInvalidVersion)

		_, err = env.runWithInput(t, `{"data_streams":-1,"indices_count":0}`, encodeArgs("-", "", "")...)
		assert.Error(t, err)
	})
}

func TestDecodeCommand(t *testing.T) {
	env := newTestEnv(t)

	t.Run("hex argument", func(t *testing.T) {
		out, err := env.run(t, decodeArgs("", envelopeHex+"0a19030207")...)
		require.NoError(t, err)
		assert.Equal(t, sampleJSON+"\n", out)
	})

	t.Run("older version yaml", func(t *testing.T) {
		args := []string{"decode", "--file", "", "--input", "hex", "--version", "8.15.0", "-o", "yaml", envelopeHex + "0a190307"}
		out, err := env.run(t, args...)
		require.NoError(t, err)
		assert.Contains(t, out, "failure_store:\n  explicitly_enabled_count: 3\n  effectively_enabled_count: 0\n  failure_indices_count: 7\n")
	})

	t.Run("raw file", func(t *testing.T) {
		rawPath := filepath.Join(env.dir, "usage.bin")
		data := append([]byte{0x0c}, []byte("data_streams")...)
		data = append(data, 0x01, 0x01, 0x0a, 0x19)
		require.NoError(t, os.WriteFile(rawPath, data, 0600))

		args := []string{"decode", "--file", rawPath, "--input", "raw", "--version", "8.14.0", "-o", "json"}
		out, err := env.run(t, args...)
		require.NoError(t, err)
		assert.Contains(t, out, `"data_streams":10,"indices_count":25`)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := env.run(t, decodeArgs("", envelopeHex+"0a19")...)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "malformed usage report")

		_, err = env.run(t, decodeArgs("", "zz")...)
		assert.Error(t, err)
	})

	t.Run("no input", func(t *testing.T) {
		_, err := env.run(t, decodeArgs("")...)
		assert.Error(t, err)
	})
}

func TestRenderCommand(t *testing.T) {
	env := newTestEnv(t)
	base := []string{"render", "--state", env.statePath, "--stats-only=false"}

	out, err := env.run(t, append(base, "--version", "", "-o", "json")...)
	require.NoError(t, err)
	assert.Equal(t, stateJSON+"\n", out)

	out, err = env.run(t, append(base, "--version", "8.14.0", "-o", "json")...)
	require.NoError(t, err)
	assert.Contains(t, out, `"failure_store":{"explicitly_enabled_count":0,"effectively_enabled_count":0,"failure_indices_count":0}`)

	out, err = env.run(t, "render", "--state", env.statePath, "--stats-only=true", "--version", "", "-o", "yaml")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "data_streams: 2\nindices_count: 3\n"), out)

	_, err = env.run(t, append(base, "--version", "", "-o", "xml")...)
	assert.Error(t, err)

	_, err = env.run(t, "render", "--state", filepath.Join(env.dir, "missing.yaml"), "--version", "", "-o", "json")
	assert.Error(t, err)
}

func TestInitCommand(t *testing.T) {
	dir := t.TempDir()
	env := testEnv{dir: dir, configPath: filepath.Join(dir, "nested", "config.yaml")}
	SetContainer(di.NewContainer())
	dataDir := filepath.Join(dir, "data")

	out, err := env.run(t, "init", "--data-dir", dataDir, "--force=false", "--print-key=true")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration created at")
	assert.Contains(t, out, "API key: ")
	assert.DirExists(t, dataDir)

	cfg, err := config.LoadConfig(env.configPath)
	require.NoError(t, err)
	assert.Equal(t, dataDir, cfg.DataDir)
	assert.NotEqual(t, "auto", cfg.Security.APIKey)

	out, err = env.run(t, "init", "--data-dir", dataDir, "--force=false", "--print-key=false")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")

	out, err = env.run(t, "init", "--data-dir", dataDir, "--force=true", "--print-key=false")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration created at")

	reloaded, err := config.LoadConfig(env.configPath)
	require.NoError(t, err)
	assert.NotEqual(t, cfg.Security.APIKey, reloaded.Security.APIKey)
}

func TestCollectAndHistoryCommands(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "history", "--limit", "10", "-o", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "No snapshots found")

	var lastID string
	for i := 0; i < 2; i++ {
		out, err := env.run(t, "collect", "--state", "", "-o", "json", "--no-store=false")
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, lines, 2)
		require.True(t, strings.HasPrefix(lines[0], "Snapshot "))
		lastID = strings.TrimPrefix(lines[0], "Snapshot ")
		assert.Equal(t, stateJSON, lines[1])
	}

	out, err = env.run(t, "collect", "--state", "", "-o", "json", "--no-store=true")
	require.NoError(t, err)
	assert.Equal(t, stateJSON+"\n", out)

	out, err = env.run(t, "history", "--limit", "10", "-o", "table")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.True(t, strings.HasPrefix(lines[1], lastID))
	assert.Contains(t, lines[1], transport.Current.String())

	out, err = env.run(t, "history", lastID, "--limit", "10", "-o", "json")
	require.NoError(t, err)
	assert.Equal(t, stateJSON+"\n", out)

	_, err = env.run(t, "history", "not-an-id", "--limit", "10", "-o", "json")
	assert.Error(t, err)

	_, err = env.run(t, "history", "--limit", "10", "-o", "json")
	assert.Error(t, err)
}

var errStopServe = errors.New("stop serving")

// reportingFactory hands out a server that stops as soon as a report exists
type reportingFactory struct {
	config api.ServerConfig
}

func (f *reportingFactory) CreateServer(
	rep api.IUsageReporter,
	_ api.ISnapshotStore,
	cfg api.ServerConfig,
	_ *api.Metrics,
	_ *zap.Logger,
) api.ServerStarter {
	f.config = cfg
	return &reportingStarter{reporter: rep}
}

type reportingStarter struct {
	reporter api.IUsageReporter
}

func (s *reportingStarter) Start(ctx context.Context) error {
	deadline := time.After(5 * time.Second)
	for {
		if _, ok := s.reporter.Latest(); ok {
			return errStopServe
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return errors.New("no report produced")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestServeCommand(t *testing.T) {
	env := newTestEnv(t)
	factory := &reportingFactory{}
	container.SetServerFactory(factory)

	_, err := env.run(t, "serve", "--port", "9555", "--bind", "127.0.0.1", "--api-key", "serve-key",
		"--state", env.statePath, "--watch=false")
	require.ErrorIs(t, err, errStopServe)

	assert.Equal(t, 9555, factory.config.Port)
	assert.Equal(t, "serve-key", factory.config.APIKey)
	require.NotNil(t, factory.config.Version)
	assert.True(t, factory.config.Version.Equal(transport.Current))

	store, err := storage.NewSnapshotStore(filepath.Join(env.dir, "data", "snapshots"), transport.Current)
	require.NoError(t, err)
	defer store.Close()

	latest, err := store.Latest()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), latest.Usage.Stats.TotalDataStreamCount)
}

func TestServeCommandWithWatcher(t *testing.T) {
	env := newTestEnv(t)
	container.SetServerFactory(&reportingFactory{})

	_, err := env.run(t, "serve", "--port", "9556", "--bind", "127.0.0.1", "--api-key", "serve-key",
		"--state", env.statePath, "--watch=true")
	assert.ErrorIs(t, err, errStopServe)
}

func TestServeRequiresAPIKey(t *testing.T) {
	env := newTestEnv(t)
	container.SetServerFactory(&reportingFactory{})

	_, err := env.run(t, "serve", "--port", "9557", "--bind", "127.0.0.1", "--api-key", "auto",
		"--state", env.statePath, "--watch=false")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no API key configured")
}

func TestInvalidConfigFails(t *testing.T) {
	dir := t.TempDir()
	env := testEnv{dir: dir, configPath: filepath.Join(dir, "config.yaml")}
	require.NoError(t, os.WriteFile(env.configPath, []byte("transport:\n  version: banana\n"), 0600))

	_, err := env.run(t, "render", "--state", "", "--version", "", "-o", "json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

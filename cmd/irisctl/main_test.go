package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	kongtoml "github.com/alecthomas/kong-toml"
	kongyaml "github.com/alecthomas/kong-yaml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morezero/iris-bridge/pkg/callbacks"
	"github.com/morezero/iris-bridge/pkg/client"
	"github.com/morezero/iris-bridge/pkg/command"
	"github.com/morezero/iris-bridge/pkg/dispatcher"
	"github.com/morezero/iris-bridge/pkg/hal"
	"github.com/morezero/iris-bridge/pkg/transport"
)

const testSubject = "iris.default.v1"

func parse(t *testing.T, args []string, opts ...kong.Option) (*CLI, *kong.Context) {
	t.Helper()
	var cli CLI
	opts = append([]kong.Option{kong.Name("irisctl"), kong.Exit(func(int) { t.Fatalf("irisctl:main_test - unexpected exit") })}, opts...)
	parser, err := kong.New(&cli, opts...)
	require.NoError(t, err)
	kctx, err := parser.Parse(args)
	require.NoError(t, err)
	return &cli, kctx
}

func TestCLI_ParseSet(t *testing.T) {
	cli, kctx := parse(t, []string{"--instance", "panel", "set", "1", "10", "20"})
	assert.Equal(t, "set <type> <values>", kctx.Command())
	assert.Equal(t, int32(1), cli.Set.Type)
	assert.Equal(t, []int32{10, 20}, cli.Set.Values)
	assert.Equal(t, "iris.panel.v1", cli.subject())
	assert.Equal(t, 5*time.Second, cli.Timeout)
}

func TestCLI_SubjectOverride(t *testing.T) {
	cli, _ := parse(t, []string{"--subject", "custom.iris", "version"})
	assert.Equal(t, "custom.iris", cli.subject())
}

func TestCLI_WatchDefaults(t *testing.T) {
	cli, _ := parse(t, []string{"watch"})
	assert.Equal(t, int64(-2138930830), cli.Watch.Cookie)
	assert.Equal(t, 0, cli.Watch.Count)
}

func TestCLI_ConfigFiles(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "irisctl.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("instance: from-yaml\ntimeout: 2s\n"), 0o644))
	tomlPath := filepath.Join(dir, "irisctl.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte("instance = \"from-toml\"\n"), 0o644))

	cli, _ := parse(t, []string{"version"}, kong.Configuration(kongyaml.Loader, yamlPath))
	assert.Equal(t, "from-yaml", cli.Instance)
	assert.Equal(t, 2*time.Second, cli.Timeout)

	cli, _ = parse(t, []string{"version"}, kong.Configuration(kongtoml.Loader, tomlPath))
	assert.Equal(t, "from-toml", cli.Instance)

	cli, _ = parse(t, []string{"--instance", "flag", "version"}, kong.Configuration(kongyaml.Loader, yamlPath))
	assert.Equal(t, "flag", cli.Instance, "flags override config files")
}

func TestConfigCandidatePaths(t *testing.T) {
	j, y, tm := configCandidatePaths("/etc/iris/ctl.yml")
	require.NotEmpty(t, y)
	assert.Equal(t, "/etc/iris/ctl.yml", y[0])
	assert.NotContains(t, j, "/etc/iris/ctl.yml")
	assert.NotEmpty(t, tm)

	j, _, _ = configCandidatePaths("/etc/iris/ctl.conf")
	assert.Equal(t, "/etc/iris/ctl.conf", j[0], "unknown extensions go to the JSON loader")
}

func TestFindUserConfig(t *testing.T) {
	t.Setenv("IRISCTL_CONFIG", "")
	assert.Equal(t, "a.yaml", findUserConfig([]string{"--config", "a.yaml", "get", "1"}))
	assert.Equal(t, "b.toml", findUserConfig([]string{"--config=b.toml"}))
	assert.Equal(t, "", findUserConfig([]string{"get", "1"}))

	t.Setenv("IRISCTL_CONFIG", "env.json")
	assert.Equal(t, "env.json", findUserConfig(nil))
}

type testService struct {
	lt       *transport.Local
	d        *dispatcher.Dispatcher
	registry *callbacks.Registry
}

func newTestSession(t *testing.T) (*session, *testService, *bytes.Buffer) {
	t.Helper()
	lt := transport.NewLocal()
	reg := callbacks.New(transport.Sender{T: lt}, nil)
	d := dispatcher.NewDispatcher(hal.NewMemory(&hal.MemoryOpts{Supported: []int32{1, 2, 258}}), reg, nil)
	_, err := lt.Serve(testSubject, d.Handler())
	require.NoError(t, err)

	var out bytes.Buffer
	s := newSession(lt, testSubject, "", time.Second, &out)
	t.Cleanup(func() {
		s.Close()
		_ = lt.Close()
	})
	return s, &testService{lt: lt, d: d, registry: reg}, &out
}

func TestCommands_SetGet(t *testing.T) {
	s, _, out := newTestSession(t)

	require.NoError(t, (&SetCmd{Type: 1, Values: []int32{10, 20}}).Run(s))
	require.NoError(t, (&GetCmd{Type: 1, Values: []int32{0}}).Run(s))
	require.NoError(t, (&GetCmd{Type: 7}).Run(s))
	assert.Equal(t, "type 1: status 0\ntype 1: [10 20]\ntype 7: unsupported\n", out.String())

	assert.Error(t, (&SetCmd{Type: 7, Values: []int32{1}}).Run(s), "unsupported type reports a non-zero status")
}

func TestCommands_Command(t *testing.T) {
	s, _, out := newTestSession(t)

	require.NoError(t, (&CommandCmd{Command: "258-1-0"}).Run(s))
	require.NoError(t, (&CommandCmd{Command: "258", Get: true}).Run(s))
	assert.Equal(t, "0\n1\n", out.String())

	assert.Error(t, (&CommandCmd{Command: "x-1"}).Run(s))
	assert.Error(t, (&CommandCmd{Command: "", Get: true}).Run(s))
}

func TestCommands_Version(t *testing.T) {
	s, _, out := newTestSession(t)

	require.NoError(t, (&VersionCmd{Require: "^1"}).Run(s))
	assert.Contains(t, out.String(), "version:  1")
	assert.Contains(t, out.String(), "chip:     1")
	assert.Error(t, (&VersionCmd{Require: ">=2"}).Run(s))
}

func TestCommands_Watch(t *testing.T) {
	s, svc, out := newTestSession(t)
	stop := make(chan struct{})
	s.stop = stop

	go func() {
		deadline := time.Now().Add(2 * time.Second)
		for svc.registry.Len() == 0 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		svc.d.NotifyFeatureChanged(context.Background(), 2, []int32{})
		svc.d.NotifyFeatureChanged(context.Background(), 2, []int32{4, 5})
	}()

	done := make(chan error, 1)
	go func() { done <- (&WatchCmd{Cookie: 1, Count: 1}).Run(s) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		close(stop)
		t.Fatalf("irisctl:main_test - watch did not return")
	}
	assert.Equal(t, "type 2: [4 5]\n", out.String(), "empty changes are dropped")
}

// capturingService hands out the registered callback so a test can keep
// raising changes after watch has returned.
type capturingService struct {
	cb chan client.Callback
}

func (c *capturingService) ConfigureGet(context.Context, int32, []int32) ([]int32, error) {
	return nil, nil
}

func (c *capturingService) ConfigureSet(context.Context, int32, []int32) (int32, error) {
	return 0, nil
}

func (c *capturingService) ChipFeature(context.Context) (int32, error) { return 1, nil }

func (c *capturingService) RegisterCallback(_ context.Context, _ int64, cb client.Callback) error {
	c.cb <- cb
	return nil
}

func TestCommands_WatchLateChangesDoNotBlock(t *testing.T) {
	var out bytes.Buffer
	svc := &capturingService{cb: make(chan client.Callback, 1)}
	s := &session{helper: command.NewHelper(svc, nil), timeout: time.Second, out: &out}

	done := make(chan error, 1)
	go func() { done <- (&WatchCmd{Cookie: 1, Count: 1}).Run(s) }()
	cb := <-svc.cb
	cb.OnFeatureChanged(3, []int32{1})
	require.NoError(t, <-done)

	// Nobody reads changes any more; delivery must still return.
	finished := make(chan struct{})
	go func() {
		for i := 0; i < 64; i++ {
			cb.OnFeatureChanged(3, []int32{int32(i)})
		}
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatalf("irisctl:main_test - callback blocked after watch returned")
	}
	assert.Equal(t, "type 3: [1]\n", out.String())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", parseLevel("debug").String())
	assert.Equal(t, "WARN", parseLevel("").String())
}

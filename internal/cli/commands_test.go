package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kcibridge/internal/channel"
	"github.com/roach88/kcibridge/internal/config"
	"github.com/roach88/kcibridge/internal/kcidb"
	"github.com/roach88/kcibridge/internal/node"
	"github.com/roach88/kcibridge/internal/store"
	"github.com/roach88/kcibridge/internal/testutil"
	"github.com/roach88/kcibridge/internal/tracker"
)

const trackerNodes = `
- _id: n1
  name: testA
  path: [p]
  group: g
  state: done
  result: pass
  created: "2023-01-01T00:00:00"
- _id: r1
  name: testA
  path: [p]
  group: g
  state: running
- _id: n2
  name: testA
  path: [p]
  group: g
  state: done
  result: fail
  created: "2023-01-02T00:00:00"
`

const checkoutNodes = `
- _id: c1
  name: checkout
  state: done
  result: pass
  created: "2023-01-01T00:00:00"
  revision:
    tree: mainline
    url: https://git.kernel.org/pub/scm/linux/kernel/git/torvalds/linux.git
    commit: 0123456789abcdef0123456789abcdef01234567
    branch: master
- _id: k1
  name: kunit
  state: done
  result: pass
- _id: c2
  name: checkout
  state: done
  result: pass
  created: "2023-01-01T00:00:00"
  revision:
    tree: mainline
    url: https://git.kernel.org/pub/scm/linux/kernel/git/torvalds/linux.git
    commit: not-a-commit
    branch: master
- _id: 7
  name: checkout
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func writeTestConfig(t *testing.T, dbType string) (cfgPath, dbPath string) {
	t.Helper()
	dbPath = filepath.Join(t.TempDir(), "regressions")
	cfgPath = writeFile(t, "kcibridge.yaml", fmt.Sprintf(`
db_configs:
  test:
    type: %s
    path: %s
channel:
  url: nats://127.0.0.1:1
logging:
  level: debug
`, dbType, dbPath))
	return cfgPath, dbPath
}

// newTestCommand returns a bare command whose output is captured.
func newTestCommand(ctx context.Context) (*cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	cmd := &cobra.Command{}
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetContext(ctx)
	return cmd, out, errOut
}

func TestRegressionTrackerReplaysFile(t *testing.T) {
	for _, backend := range []string{store.BackendSQLite, store.BackendBadger} {
		t.Run(backend, func(t *testing.T) {
			cfgPath, dbPath := writeTestConfig(t, backend)
			opts := &TrackerOptions{
				RootOptions: &RootOptions{ConfigPath: cfgPath, Format: "text"},
				DBConfig:    "test",
				Input:       writeFile(t, "nodes.yaml", trackerNodes),
				IDGenerator: tracker.NewFixedGenerator("reg-1"),
			}

			cmd, out, errOut := newTestCommand(context.Background())
			require.NoError(t, runRegressionTracker(opts, cmd))
			assert.Contains(t, out.String(), "Listening for events")
			assert.Contains(t, errOut.String(), "regression created")
			assert.Contains(t, errOut.String(), "regression extended")

			st, err := store.OpenBackend(backend, dbPath)
			require.NoError(t, err)
			defer st.Close()

			r, err := st.GetRegression(context.Background(), "reg-1")
			require.NoError(t, err)
			assert.Equal(t, "n2", r.Parent)
			require.Len(t, r.RegressionData, 2)
			assert.Equal(t, "n1", r.RegressionData[0].ID)
			assert.Equal(t, "n2", r.RegressionData[1].ID)
		})
	}
}

func TestRegressionTrackerResumesAcrossRuns(t *testing.T) {
	cfgPath, dbPath := writeTestConfig(t, store.BackendSQLite)
	first := writeFile(t, "first.yaml", `
- {_id: n1, name: testA, path: [p], group: g, state: done, result: pass}
`)
	second := writeFile(t, "second.yaml", `
- {_id: n2, name: testA, path: [p], group: g, state: done, result: fail}
- {_id: n2, name: testA, path: [p], group: g, state: done, result: fail}
`)

	for i, input := range []string{first, second} {
		opts := &TrackerOptions{
			RootOptions: &RootOptions{ConfigPath: cfgPath, Format: "text"},
			DBConfig:    "test",
			Input:       input,
			IDGenerator: tracker.NewFixedGenerator(fmt.Sprintf("reg-%d", i+1)),
		}
		cmd, _, _ := newTestCommand(context.Background())
		require.NoError(t, runRegressionTracker(opts, cmd))
	}

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	regs, err := st.ListRegressions(context.Background())
	require.NoError(t, err)
	require.Len(t, regs, 1)
	assert.Equal(t, "reg-1", regs[0].ID)
	assert.Len(t, regs[0].RegressionData, 2, "redelivered node must not be appended twice")
}

func TestRegressionTrackerUnknownDBConfig(t *testing.T) {
	cfgPath, _ := writeTestConfig(t, store.BackendSQLite)
	opts := &TrackerOptions{
		RootOptions: &RootOptions{ConfigPath: cfgPath, Format: "text"},
		DBConfig:    "production",
	}

	cmd, _, _ := newTestCommand(context.Background())
	err := runRegressionTracker(opts, cmd)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorIs(t, err, config.ErrUnknownDB)
}

func TestRegressionTrackerBadConfig(t *testing.T) {
	opts := &TrackerOptions{
		RootOptions: &RootOptions{ConfigPath: writeFile(t, "bad.yaml", "origin: \"Not Valid\"\n"), Format: "text"},
		DBConfig:    "default",
	}

	cmd, _, _ := newTestCommand(context.Background())
	err := runRegressionTracker(opts, cmd)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRegressionTrackerInterruptExitsCleanly(t *testing.T) {
	cfgPath, _ := writeTestConfig(t, store.BackendSQLite)
	mem := channel.NewMemory()
	opts := &TrackerOptions{
		RootOptions: &RootOptions{ConfigPath: cfgPath, Format: "text"},
		DBConfig:    "test",
		Channel:     mem,
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd, _, _ := newTestCommand(ctx)

	done := make(chan error, 1)
	go func() { done <- runRegressionTracker(opts, cmd) }()

	require.Eventually(t, func() bool { return mem.Blocked() == 1 }, 5*time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
		assert.Equal(t, ExitSuccess, GetExitCode(err))
	case <-time.After(5 * time.Second):
		t.Fatal("command did not stop after cancellation")
	}
	assert.Equal(t, 1, mem.Unsubscribes())
}

func TestRegressionTrackerUnopenableDatabase(t *testing.T) {
	// A directory where the sqlite file should be.
	cfgPath, dbPath := writeTestConfig(t, store.BackendSQLite)
	require.NoError(t, os.MkdirAll(dbPath, 0o755))

	opts := &TrackerOptions{
		RootOptions: &RootOptions{ConfigPath: cfgPath, Format: "text"},
		DBConfig:    "test",
		Input:       writeFile(t, "nodes.yaml", trackerNodes),
	}

	cmd, _, _ := newTestCommand(context.Background())
	err := runRegressionTracker(opts, cmd)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSendKCIDBDryRun(t *testing.T) {
	cfgPath, _ := writeTestConfig(t, store.BackendSQLite)
	opts := &SendKCIDBOptions{
		RootOptions: &RootOptions{ConfigPath: cfgPath, Format: "text"},
		Origin:      "kernelci",
		DryRun:      true,
		Input:       writeFile(t, "nodes.yaml", checkoutNodes),
	}

	cmd, out, errOut := newTestCommand(context.Background())
	require.NoError(t, runSendKCIDB(opts, cmd))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 1, "only the valid checkout is forwarded")

	var rev kcidb.Revision
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rev))
	assert.Equal(t, "kernelci:c1", rev.CheckoutID())
	assert.Equal(t, "2023-01-01T00:00:00+00:00", rev.Checkouts[0].StartTime)
	assert.Equal(t, "kernelci-pipeline", rev.Checkouts[0].Misc.SubmittedBy)

	assert.Contains(t, errOut.String(), "dropping node")
	assert.Contains(t, errOut.String(), "skipping malformed record")
}

type collectingSink struct {
	revisions []kcidb.Revision
}

func (s *collectingSink) Submit(ctx context.Context, rev kcidb.Revision) error {
	s.revisions = append(s.revisions, rev)
	return nil
}

func TestSendKCIDBInjectedSinkAndChannel(t *testing.T) {
	cfgPath, _ := writeTestConfig(t, store.BackendSQLite)
	mem := channel.NewMemory()
	sink := &collectingSink{}
	opts := &SendKCIDBOptions{
		RootOptions: &RootOptions{ConfigPath: cfgPath, Format: "text"},
		Origin:      "lab_1",
		Channel:     mem,
		Sink:        sink,
	}

	cmd, _, _ := newTestCommand(context.Background())
	done := make(chan error, 1)
	go func() { done <- runSendKCIDB(opts, cmd) }()

	require.Eventually(t, func() bool { return mem.Active() == 1 }, 5*time.Second, time.Millisecond)
	mem.Publish(testutil.Checkout("c9", "2023-05-01 10:00:00"))
	mem.Publish(testutil.Node("t1", "baseline", node.ResultPass))
	mem.Close()

	require.NoError(t, <-done)
	require.Len(t, sink.revisions, 1)
	assert.Equal(t, "lab_1:c9", sink.revisions[0].CheckoutID())
	assert.Equal(t, "2023-05-01T10:00:00+00:00", sink.revisions[0].Checkouts[0].StartTime)
}

func TestSendKCIDBRequiresSettings(t *testing.T) {
	cfgPath, _ := writeTestConfig(t, store.BackendSQLite)

	tests := []struct {
		name string
		opts *SendKCIDBOptions
		want []string
	}{
		{
			name: "live without kcidb settings",
			opts: &SendKCIDBOptions{Origin: "kernelci"},
			want: []string{"kcidb.project_id", "kcidb.topic_name"},
		},
		{
			name: "dry run without origin",
			opts: &SendKCIDBOptions{DryRun: true},
			want: []string{"origin"},
		},
		{
			name: "invalid origin",
			opts: &SendKCIDBOptions{Origin: "Kernel CI", DryRun: true},
			want: []string{"origin"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.RootOptions = &RootOptions{ConfigPath: cfgPath, Format: "text"}
			cmd, _, _ := newTestCommand(context.Background())

			err := runSendKCIDB(tt.opts, cmd)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			for _, field := range tt.want {
				assert.Contains(t, err.Error(), field)
			}
		})
	}
}

func TestSendKCIDBConnectFailure(t *testing.T) {
	cfgPath, _ := writeTestConfig(t, store.BackendSQLite)
	opts := &SendKCIDBOptions{
		RootOptions: &RootOptions{ConfigPath: cfgPath, Format: "text"},
		Origin:      "kernelci",
		ProjectID:   "kernelci-prod",
		TopicName:   "playground_kcidb_new",
	}

	cmd, _, _ := newTestCommand(context.Background())
	err := runSendKCIDB(opts, cmd)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestValidateCommandJSON(t *testing.T) {
	path := writeFile(t, "nodes.yaml", checkoutNodes)

	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--format", "json", "validate", path})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)

	report := resp.Data
	assert.Equal(t, 1, report.Valid)
	assert.Equal(t, 1, report.Invalid)
	assert.Equal(t, 1, report.Malformed)
	assert.Equal(t, 1, report.Skipped)
	require.Len(t, report.Records, 4)

	assert.Equal(t, StatusValid, report.Records[0].Status)
	assert.Equal(t, "kernelci:c1", report.Records[0].Checkout)
	assert.Equal(t, StatusSkipped, report.Records[1].Status)
	assert.Equal(t, StatusInvalid, report.Records[2].Status)
	assert.Equal(t, ErrCodeSchema, report.Records[2].Code)
	assert.Equal(t, StatusMalformed, report.Records[3].Status)
}

func TestValidateCommandTextAllValid(t *testing.T) {
	path := writeFile(t, "nodes.json", `[{"_id":"c1","name":"checkout","state":"done","created":"2023-01-01T00:00:00Z",
"revision":{"tree":"next","url":"https://git.kernel.org/next.git","commit":"0123456789abcdef0123456789abcdef01234567","branch":"master"}}]`)

	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"validate", "--origin", "lab", path})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "ok       c1 -> lab:c1")
	assert.Contains(t, out.String(), "1 valid, 0 invalid, 0 malformed, 0 skipped")
}

func TestValidateCommandMissingFile(t *testing.T) {
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--format", "json", "validate", filepath.Join(t.TempDir(), "missing.yaml")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
}

func TestValidateCommandUsesConfigOrigin(t *testing.T) {
	nodes := writeFile(t, "nodes.json", `[{"_id":"c1","name":"checkout","state":"done","created":"2023-01-01T00:00:00Z",
"revision":{"tree":"next","url":"https://git.kernel.org/next.git","commit":"0123456789abcdef0123456789abcdef01234567","branch":"master"}}]`)
	cfgPath := writeFile(t, "kcibridge.yaml", "origin: lab_config\n")

	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--config", cfgPath, "validate", nodes})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "ok       c1 -> lab_config:c1")
}

func TestValidateCommandBadConfig(t *testing.T) {
	nodes := writeFile(t, "nodes.yaml", checkoutNodes)
	cfgPath := writeFile(t, "kcibridge.yaml", "origin: \"Not Valid\"\n")

	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--format", "json", "--config", cfgPath, "validate", nodes})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeConfig, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "origin")
}

func TestRuntimeServesMetrics(t *testing.T) {
	cmd, _, _ := newTestCommand(context.Background())
	rt, err := newRuntime(&RootOptions{Format: "text", MetricsAddr: "127.0.0.1:0"}, cmd)
	require.NoError(t, err)
	defer rt.close()

	require.NotEmpty(t, rt.metricsAddr)
	resp, err := http.Get("http://" + rt.metricsAddr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestRuntimeWritesTraceFile(t *testing.T) {
	tracePath := filepath.Join(t.TempDir(), "spans.json")
	cmd, _, _ := newTestCommand(context.Background())
	rt, err := newRuntime(&RootOptions{Format: "text", TraceFile: tracePath}, cmd)
	require.NoError(t, err)

	_, span := rt.tracer.Start(context.Background(), "regression_tracker.process")
	span.End()
	rt.close()

	data, err := os.ReadFile(tracePath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "regression_tracker.process")
}

func TestRuntimeJSONLogs(t *testing.T) {
	cmd, _, errOut := newTestCommand(context.Background())
	rt, err := newRuntime(&RootOptions{Format: "text", LogFormat: "json", Verbose: true}, cmd)
	require.NoError(t, err)
	defer rt.close()

	rt.logger.Debug("probe", "node", "n1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(errOut.Bytes()), &line))
	assert.Equal(t, "probe", line["msg"])
	assert.Equal(t, "DEBUG", line["level"])
	assert.Equal(t, "n1", line["node"])
}

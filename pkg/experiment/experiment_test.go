// Copyright 2025 probebench project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package experiment

import (
	"archive/tar"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"

	"github.com/energybench/probebench/pkg/bench"
	"github.com/energybench/probebench/pkg/benchconfig"
	"github.com/energybench/probebench/pkg/build"
	"github.com/energybench/probebench/pkg/osutil"
	"github.com/energybench/probebench/pkg/runner"
	"github.com/energybench/probebench/pkg/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

type fakeBuilder struct {
	compiled []string
	cleaned  []string
	fail     map[string]error
}

func (fb *fakeBuilder) Compile(workdir, group string, features []string) (string, error) {
	fb.compiled = append(fb.compiled, group)
	if err := fb.fail[group]; err != nil {
		return "", err
	}
	return filepath.Join(workdir, "target", "release", "deps", group+"-0f1e2d"), nil
}

func (fb *fakeBuilder) Clean(workdir string) error {
	fb.cleaned = append(fb.cleaned, filepath.Base(workdir))
	return nil
}

type fakeLister struct{}

func (fakeLister) IterSymbols(bin string) ([]string, error) {
	return []string{"_ZN9criterion7bencher19Bencher$LT$M$GT$4iter17h0123456789abcdefE"}, nil
}

type fakeDisassembler struct {
	text string
	// Per-group overrides of text.
	texts map[string]string
}

func (fd *fakeDisassembler) Disassemble(bin string) ([]byte, error) {
	if text, ok := fd.texts[strings.Split(filepath.Base(bin), "-")[0]]; ok {
		return []byte(text), nil
	}
	return []byte(fd.text), nil
}

type fakeTool struct {
	added   []string
	deleted []string
	// Labels containing fail are rejected.
	fail string
}

func (ft *fakeTool) Add(bin, spec string) ([]byte, error) {
	label, _, _ := strings.Cut(spec, "=")
	if ft.fail != "" && strings.Contains(label, ft.fail) {
		return nil, fmt.Errorf("probe-definition(0): %v: no symbol found", spec)
	}
	ft.added = append(ft.added, spec)
	group := "probe_" + strings.Split(filepath.Base(bin), "-")[0]
	event := group + ":" + label
	if n := countPrefix(ft.added, label+"="); n > 1 {
		event += fmt.Sprintf("_%v", n-1)
	}
	return []byte(fmt.Sprintf("Added new event:\n  %v (on %v in %v)\n\n", event, spec, bin)), nil
}

func countPrefix(specs []string, prefix string) int {
	n := 0
	for _, spec := range specs {
		if strings.HasPrefix(spec, prefix) {
			n++
		}
	}
	return n
}

func (ft *fakeTool) Delete(pattern string) ([]byte, error) {
	ft.deleted = append(ft.deleted, pattern)
	return nil, nil
}

type fakeExecutor struct {
	cmds []*runner.Command
	// Runs of benchmarks with these ids fail.
	fail map[string]bool
	// Called for every command before it "runs".
	hook func(*runner.Command)
}

func (fe *fakeExecutor) Execute(cmd *runner.Command) *runner.Outcome {
	fe.cmds = append(fe.cmds, cmd)
	if fe.hook != nil {
		fe.hook(cmd)
	}
	filter := cmd.Args[len(cmd.Args)-1]
	if fe.fail[strings.Trim(filter, "^$")] {
		return &runner.Outcome{Status: runner.Failed, ExitCode: 101}
	}
	return &runner.Outcome{Status: runner.Succeeded}
}

type testEnv struct {
	cfg      *benchconfig.Config
	builder  *fakeBuilder
	tool     *fakeTool
	executor *fakeExecutor
	disasm   *fakeDisassembler
	exp      *Experiment
}

func newTestEnv(t *testing.T, projects ...*bench.Project) *testEnv {
	if runtime.GOOS != "linux" {
		t.Skip("control fifos are created on linux only")
	}
	dir := t.TempDir()
	cfg := benchconfig.Defaults()
	cfg.Projects = filepath.Join(dir, "projects")
	cfg.Meta = filepath.Join(dir, "meta")
	cfg.Data = filepath.Join(dir, "data")
	cfg.Results = filepath.Join(dir, "results")
	cfg.Tmp = t.TempDir()
	cfg.Iterations = 1
	cfg.Preflight = false
	for _, p := range projects {
		cfg.Targets = append(cfg.Targets, p.Name)
		data, err := json.Marshal(p)
		require.NoError(t, err)
		require.NoError(t, osutil.WriteFile(filepath.Join(cfg.Meta, p.Name+".json"), data))
	}
	require.NoError(t, benchconfig.Complete(cfg))
	env := &testEnv{
		cfg:      cfg,
		builder:  &fakeBuilder{fail: make(map[string]error)},
		tool:     new(fakeTool),
		executor: &fakeExecutor{fail: make(map[string]bool)},
		disasm:   new(fakeDisassembler),
	}
	env.exp = New(cfg, Deps{
		Builder:      env.builder,
		Lister:       fakeLister{},
		Disassembler: env.disasm,
		Tool:         env.tool,
		Executor:     env.executor,
	}, nil, nil)
	env.exp.Rand = stats.NewSeededRand(1)
	return env
}

var varint = &bench.Project{
	Name: "varint",
	BenchFiles: []*bench.BenchFile{
		{Name: "decode", Source: "benches/decode.rs", Benches: []string{"decode u32", "decode u64"}},
		{Name: "encode", Source: "benches/encode.rs", Features: []string{"std"}, Benches: []string{"encode/u32"}},
		{Name: "empty", Source: "benches/empty.rs"},
	},
}

var serde = &bench.Project{
	Name: "serde",
	BenchFiles: []*bench.BenchFile{
		{Name: "json", Source: "benches/json.rs", Benches: []string{"twitter"}},
	},
}

func TestIterationSymbolMode(t *testing.T) {
	env := newTestEnv(t, varint)
	rep, err := env.exp.Iteration(env.cfg.Targets)
	require.NoError(t, err)

	assert.Equal(t, []string{"varint"}, env.builder.cleaned)
	assert.Equal(t, []string{"decode", "encode"}, env.builder.compiled)
	assert.Equal(t, 3, rep.Runs)
	assert.Equal(t, 3, rep.Succeeded)
	assert.Empty(t, rep.Failures)

	sym := "_ZN9criterion7bencher19Bencher$LT$M$GT$4iter17h0123456789abcdefE"
	assert.Equal(t, []string{
		"varint_decode=" + sym + " self->iters",
		"varint_encode=" + sym + " self->iters",
	}, env.tool.added)
	// Each probe is deleted once, after its last benchmark ran.
	slices.Sort(env.tool.deleted)
	assert.Equal(t, []string{"probe_decode:varint_decode", "probe_encode:varint_encode"}, env.tool.deleted)

	require.Len(t, env.executor.cmds, 3)
	for _, cmd := range env.executor.cmds {
		assert.Equal(t, env.cfg.ProjectDir("varint"), cmd.Dir)
		assert.True(t, strings.HasPrefix(cmd.Output, filepath.Join(env.cfg.Data, "varint")), cmd.Output)
		events := cmd.Args[slices.Index(cmd.Args, "-e")+1]
		assert.True(t, strings.HasPrefix(events, "instructions,"), events)
		assert.True(t, strings.Contains(events, ",probe_decode:varint_decode") ||
			strings.Contains(events, ",probe_encode:varint_encode"), events)
	}
	m := env.exp.Metrics()
	assert.Equal(t, 2, m.BuildsOK.Val())
	assert.Equal(t, 3, m.RunsOK.Val())
	assert.Equal(t, 2, m.ProbesDeleted.Val())
}

func TestIterationFailures(t *testing.T) {
	env := newTestEnv(t, varint, serde)
	env.builder.fail["encode"] = &build.Error{
		Report:  []byte("error[E0308]: mismatched types"),
		Command: "cd /projects/varint && cargo bench --bench encode --no-run",
	}
	env.executor.fail["decode u64"] = true
	rep, err := env.exp.Iteration(env.cfg.Targets)
	require.NoError(t, err)

	assert.Equal(t, 3, rep.Runs)
	assert.Equal(t, 2, rep.Succeeded)
	require.Len(t, rep.Failures, 2)
	assert.Equal(t, runner.StageBuild, rep.Failures[0].Stage)
	assert.Equal(t, "varint/encode/", rep.Failures[0].Target.String())
	assert.Equal(t, "cd /projects/varint && cargo bench --bench encode --no-run", rep.Failures[0].Command)
	assert.Equal(t, runner.StageRun, rep.Failures[1].Stage)
	assert.Equal(t, "decode u64", rep.Failures[1].Target.ID)
	assert.Contains(t, rep.Summary(), "build varint/encode/: error[E0308]: mismatched types")
	assert.Equal(t, 1, env.exp.Metrics().BuildsFailed.Val())
}

func TestIterationProbeFailure(t *testing.T) {
	env := newTestEnv(t, varint, serde)
	env.tool.fail = "varint_encode"
	rep, err := env.exp.Iteration(env.cfg.Targets)
	require.NoError(t, err)

	// varint is skipped as a whole, serde still runs.
	assert.Equal(t, 1, rep.Runs)
	require.Len(t, env.executor.cmds, 1)
	assert.Equal(t, env.cfg.ProjectDir("serde"), env.executor.cmds[0].Dir)
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, runner.StageProbe, rep.Failures[0].Stage)
	assert.Contains(t, rep.Failures[0].Reason, "probe installation failed")
	// The already installed decode probe is removed right away.
	assert.Contains(t, env.tool.deleted, "probe_decode:varint_decode")
	assert.Contains(t, env.tool.deleted, "probe_json:serde_json")
}

func TestIterationMissingProject(t *testing.T) {
	env := newTestEnv(t, serde)
	rep, err := env.exp.Iteration([]string{"missing", "serde"})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Runs)
	require.Len(t, rep.Failures, 1)
	assert.Contains(t, rep.Failures[0].Reason, "failed to read project missing")
}

const disassembly = `
            self.measurement.start();
    4d2f0:	48 8b 07             	mov    (%rdi),%rax
    4d2f7:	48 83 c1 01          	add    $0x1,%rcx
    4d2fb:	48 39 c8             	cmp    %rcx,%rax
    4d2fe:	75 f0                	jne    4d2f0 <criterion::bencher::Bencher<M>::iter+0x40>
            self.measurement.end(start);
            self.measurement.start();
    4e010:	48 ff c2             	inc    %rdx
    4e013:	48 39 d6             	cmp    %rdx,%rsi
    4e016:	74 20                	je     4e038 <criterion::bencher::Bencher<M>::iter_batched+0x38>
            self.measurement.end(start);
`

func TestIterationAddressMode(t *testing.T) {
	env := newTestEnv(t, serde)
	env.cfg.Mode = benchconfig.ModeAddress
	env.cfg.Verify = true
	env.disasm.text = disassembly
	var verified []string
	env.exp.verify = func(bin string, addrs []string) ([]string, error) {
		verified = addrs
		return addrs[:1], nil
	}
	rep, err := env.exp.Iteration(env.cfg.Targets)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Succeeded)
	assert.Equal(t, []string{"4d2fe", "4e016"}, verified)
	assert.Equal(t, []string{"serde_json=0x4d2fe"}, env.tool.added)

	env.tool.added = nil
	env.disasm.text = "objdump: bench: file format not recognized\n"
	rep, err = env.exp.Iteration(env.cfg.Targets)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Runs)
	require.Len(t, rep.Failures, 1)
	assert.Contains(t, rep.Failures[0].Reason, "contains no instructions")
	assert.Empty(t, env.tool.added)
}

func TestIterationNoLocations(t *testing.T) {
	mixed := &bench.Project{
		Name: "mixed",
		BenchFiles: []*bench.BenchFile{
			{Name: "good", Source: "benches/good.rs", Benches: []string{"a", "b"}},
			{Name: "shape", Source: "benches/shape.rs", Benches: []string{"c"}},
		},
	}
	env := newTestEnv(t, mixed)
	env.cfg.Mode = benchconfig.ModeAddress
	env.disasm.text = disassembly
	// The shape group has instructions, but no loop edge between the measurement calls.
	env.disasm.texts = map[string]string{
		"shape": "    4d2f0:	48 8b 07             	mov    (%rdi),%rax\n",
	}
	rep, err := env.exp.Iteration(env.cfg.Targets)
	require.NoError(t, err)

	// Only the shape group is skipped, the good group still runs.
	assert.Equal(t, 2, rep.Runs)
	assert.Equal(t, 2, rep.Succeeded)
	require.Len(t, env.executor.cmds, 2)
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, runner.StageProbe, rep.Failures[0].Stage)
	assert.Equal(t, "shape", rep.Failures[0].Target.Group)
	assert.Contains(t, rep.Failures[0].Reason, "no probe locations")
	assert.Equal(t, []string{"mixed_good=0x4d2fe", "mixed_good=0x4e016"}, env.tool.added)
	assert.Equal(t, []string{"probe_good:mixed_good|probe_good:mixed_good_1"}, env.tool.deleted)
}

func TestOrderedIteration(t *testing.T) {
	env := newTestEnv(t, varint)
	env.cfg.Shuffle = false
	_, err := env.exp.Iteration(env.cfg.Targets)
	require.NoError(t, err)
	var ids []string
	for _, cmd := range env.executor.cmds {
		ids = append(ids, cmd.Args[len(cmd.Args)-1])
	}
	// The queue is drained from the tail.
	assert.Equal(t, []string{"^encode/u32$", "^decode u64$", "^decode u32$"}, ids)
}

func TestRun(t *testing.T) {
	env := newTestEnv(t, serde)
	env.cfg.Iterations = 2
	env.cfg.Clean = false
	env.cfg.Archive = true
	env.cfg.MetricsFile = filepath.Join(env.cfg.Results, "metrics.prom")
	report := filepath.Join(env.cfg.ProjectDir("serde"), "target", "criterion", "twitter", "new", "estimates.json")
	env.executor.hook = func(cmd *runner.Command) {
		require.NoError(t, osutil.WriteFile(report, []byte(`{"mean":{"point_estimate":1.5}}`)))
	}
	rep, err := env.exp.Run(env.cfg.Targets)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Runs)
	assert.Equal(t, "all 2 runs succeeded\n", rep.Summary())
	assert.Empty(t, env.builder.cleaned)

	archives, err := filepath.Glob(filepath.Join(env.cfg.Results, "reports", "*", "serde.tar.xz"))
	require.NoError(t, err)
	require.Len(t, archives, 2)
	assert.Equal(t, map[string]string{"twitter/new/estimates.json": `{"mean":{"point_estimate":1.5}}`},
		readArchive(t, archives[0]))
	assert.NoDirExists(t, filepath.Join(env.cfg.ProjectDir("serde"), "target", "criterion"))

	metrics, err := os.ReadFile(env.cfg.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "probebench_runs_ok_total 2")
	assert.FileExists(t, filepath.Join(env.cfg.Results, "machine_info.txt"))
}

func TestRunShutdown(t *testing.T) {
	env := newTestEnv(t, serde)
	shutdown := make(chan struct{})
	close(shutdown)
	env.exp.SetShutdown(shutdown)
	rep, err := env.exp.Run(env.cfg.Targets)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Runs)
	assert.Empty(t, env.builder.compiled)
}

func readArchive(t *testing.T, file string) map[string]string {
	f, err := os.Open(file)
	require.NoError(t, err)
	defer f.Close()
	xzr, err := xz.NewReader(f)
	require.NoError(t, err)
	tr := tar.NewReader(xzr)
	files := make(map[string]string)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		files[hdr.Name] = string(data)
	}
	return files
}

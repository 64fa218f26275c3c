package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yleoer/zhconv/internal/testutil"
	"github.com/yleoer/zhconv/pkg/engine"
	"github.com/yleoer/zhconv/pkg/jobs"
	"github.com/yleoer/zhconv/pkg/rules"
)

type fakeSource struct {
	eng          engine.Engine
	groups       rules.Groups
	groupsLoaded bool
}

func (s fakeSource) Engine() (engine.Engine, bool) { return s.eng, s.eng != nil }

func (s fakeSource) RuleGroups() (rules.Groups, bool) { return s.groups, s.groupsLoaded }

// recordingSink 按顺序记录所有副作用
type recordingSink struct {
	events     []string
	artifacts  []Artifact
	notes      []Notification
	failOn     string
	onDelivery func()
}

func (s *recordingSink) Deliver(ctx context.Context, artifact Artifact) error {
	if s.onDelivery != nil {
		s.onDelivery()
	}
	if s.failOn != "" && artifact.Source == s.failOn {
		return errors.New("disk full")
	}
	s.events = append(s.events, "deliver:"+artifact.Name)
	s.artifacts = append(s.artifacts, artifact)
	return nil
}

func (s *recordingSink) Notify(n Notification) {
	s.events = append(s.events, string(n.Level)+":"+n.Job)
	s.notes = append(s.notes, n)
}

func readySource() fakeSource {
	return fakeSource{
		eng:          testutil.NewFakeEngine(engine.ModeMediaWiki, "计算机", "電腦", "软件", "軟體"),
		groups:       rules.Groups{Data: map[string]string{}},
		groupsLoaded: true,
	}
}

func newPipeline(source Source, sink Sink) *Pipeline {
	return New(source, jobs.NewRunner(nil), sink, zap.NewNop())
}

func TestRunIsolatesFailures(t *testing.T) {
	sink := &recordingSink{}
	p := newPipeline(readySource(), sink)

	batch := []jobs.Job{
		jobs.NewFileJob("a.txt", []byte("计算机")),
		jobs.NewFileJob("b.txt", []byte{'a', 0x80, 0xff}),
		jobs.NewFileJob("c.md", []byte("软件")),
	}
	outcomes := p.Run(context.Background(), batch, jobs.Options{Target: engine.ZhTW})

	require.Len(t, outcomes, 3)
	assert.True(t, outcomes[0].OK())
	assert.ErrorIs(t, outcomes[1].Err, jobs.ErrInvalidEncoding)
	assert.True(t, outcomes[2].OK())

	assert.Equal(t, []string{
		"deliver:a.zh-TW.txt", "success:a.txt",
		"error:b.txt",
		"deliver:c.zh-TW.md", "success:c.md",
	}, sink.events)
	assert.Equal(t, "電腦", sink.artifacts[0].Text)
	assert.Equal(t, "a.txt", sink.artifacts[0].Source)
	assert.Equal(t, "軟體", sink.artifacts[1].Text)
	assert.Equal(t, "invalid encoding", sink.notes[1].Message)
}

func TestRunNotReadyIsNoOp(t *testing.T) {
	batch := []jobs.Job{jobs.NewTextJob("计算机"), jobs.NewFileJob("a.txt", []byte("软件"))}

	t.Run("no engine", func(t *testing.T) {
		sink := &recordingSink{}
		source := readySource()
		source.eng = nil
		p := newPipeline(source, sink)
		assert.False(t, p.Ready())
		assert.Empty(t, p.Run(context.Background(), batch, jobs.Options{Target: engine.ZhTW}))
		assert.Empty(t, sink.events)
	})

	t.Run("rule groups loading", func(t *testing.T) {
		sink := &recordingSink{}
		source := readySource()
		source.groupsLoaded = false
		p := newPipeline(source, sink)
		assert.False(t, p.Ready())
		assert.Empty(t, p.Run(context.Background(), batch, jobs.Options{Target: engine.ZhTW}))
		assert.Empty(t, sink.events)
	})
}

func TestRunSkipsEmptyJobsSilently(t *testing.T) {
	sink := &recordingSink{}
	p := newPipeline(readySource(), sink)

	outcomes := p.Run(context.Background(), []jobs.Job{
		jobs.NewTextJob("   \n"),
		jobs.NewFileJob("blank.txt", []byte("\t")),
	}, jobs.Options{Target: engine.ZhHant})

	require.Len(t, outcomes, 2)
	assert.True(t, outcomes[0].Skipped)
	assert.True(t, outcomes[1].Skipped)
	assert.False(t, outcomes[0].OK())
	assert.Empty(t, sink.events)
}

func TestRunTextJob(t *testing.T) {
	sink := &recordingSink{}
	p := newPipeline(readySource(), sink)

	outcomes := p.Run(context.Background(), []jobs.Job{jobs.NewTextJob("计算机")}, jobs.Options{Target: engine.ZhTW})
	require.Len(t, outcomes, 1)
	require.NotNil(t, outcomes[0].Artifact)
	assert.Equal(t, "", outcomes[0].Artifact.Name)
	assert.Equal(t, "電腦", outcomes[0].Artifact.Text)
	assert.Equal(t, []string{"deliver:", "success:text input"}, sink.events)
}

func TestRunDeliveryFailure(t *testing.T) {
	sink := &recordingSink{failOn: "a.txt"}
	p := newPipeline(readySource(), sink)

	outcomes := p.Run(context.Background(), []jobs.Job{
		jobs.NewFileJob("a.txt", []byte("计算机")),
		jobs.NewFileJob("b.txt", []byte("软件")),
	}, jobs.Options{Target: engine.ZhTW})

	require.Len(t, outcomes, 2)
	assert.ErrorIs(t, outcomes[0].Err, ErrDelivery)
	assert.Equal(t, "delivery failed", Reason(outcomes[0].Err))
	assert.True(t, outcomes[1].OK())
	assert.Equal(t, []string{"error:a.txt", "deliver:b.zh-TW.txt", "success:b.txt"}, sink.events)
}

func TestRunEngineFailure(t *testing.T) {
	source := readySource()
	fake := testutil.NewFakeEngine(engine.ModeOpenCC)
	fake.FailOn = "坏"
	source.eng = fake
	sink := &recordingSink{}
	p := newPipeline(source, sink)

	outcomes := p.Run(context.Background(), []jobs.Job{
		jobs.NewFileJob("bad.txt", []byte("坏")),
		jobs.NewFileJob("ok.txt", []byte("好")),
	}, jobs.Options{Target: engine.ZhCN})

	require.Len(t, outcomes, 2)
	assert.ErrorIs(t, outcomes[0].Err, testutil.ErrFakeConvert)
	assert.Equal(t, "conversion failed", sink.notes[0].Message)
	assert.True(t, outcomes[1].OK())
}

func TestRunStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sink := &recordingSink{onDelivery: cancel}
	p := newPipeline(readySource(), sink)

	outcomes := p.Run(ctx, []jobs.Job{
		jobs.NewFileJob("a.txt", []byte("计算机")),
		jobs.NewFileJob("b.txt", []byte("软件")),
	}, jobs.Options{Target: engine.ZhTW})

	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].OK())
	assert.Equal(t, []string{"deliver:a.zh-TW.txt", "success:a.txt"}, sink.events)
}

func TestArtifactName(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"a.txt", "a.zh-TW.txt"},
		{"README", "README.zh-TW"},
		{".bashrc", ".bashrc.zh-TW"},
		{"archive.tar.gz", "archive.tar.zh-TW.gz"},
		{"docs/说明.md", "docs/说明.zh-TW.md"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ArtifactName(tc.name, engine.ZhTW))
		})
	}
}

func TestReason(t *testing.T) {
	assert.Equal(t, "", Reason(nil))
	assert.Equal(t, "invalid encoding", Reason(jobs.ErrInvalidEncoding))
	assert.Equal(t, "cancelled", Reason(context.Canceled))
	assert.Equal(t, "conversion failed", Reason(errors.New("boom")))
}

func TestFileSink(t *testing.T) {
	dir := t.TempDir()
	sink := NewFileSink(dir, "output.txt", zap.NewNop())

	require.NoError(t, sink.Deliver(context.Background(), Artifact{Name: "sub/a.zh-TW.txt", Source: "sub/a.txt", Text: "電腦"}))
	data, err := os.ReadFile(filepath.Join(dir, "a.zh-TW.txt"))
	require.NoError(t, err)
	assert.Equal(t, "電腦", string(data))

	require.NoError(t, sink.Deliver(context.Background(), Artifact{Text: "軟體"}))
	data, err = os.ReadFile(filepath.Join(dir, "output.txt"))
	require.NoError(t, err)
	assert.Equal(t, "軟體", string(data))

	assert.Error(t, NewFileSink(dir, "", zap.NewNop()).Deliver(context.Background(), Artifact{Text: "x"}))
}

func TestCollector(t *testing.T) {
	c := &Collector{}
	p := newPipeline(readySource(), c)
	p.Run(context.Background(), []jobs.Job{jobs.NewFileJob("a.txt", []byte("计算机"))}, jobs.Options{Target: engine.ZhHK})
	require.Len(t, c.Artifacts, 1)
	assert.Equal(t, "a.zh-HK.txt", c.Artifacts[0].Name)
	require.Len(t, c.Notifications, 1)
	assert.Equal(t, LevelSuccess, c.Notifications[0].Level)
}

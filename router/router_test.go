package router

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dotside-studios/nfc-juke/bus"
	"github.com/dotside-studios/nfc-juke/dispatch"
	"github.com/dotside-studios/nfc-juke/logging"
	"github.com/dotside-studios/nfc-juke/tags"
)

const prefix = "rfid/reader01"

type fakePlayer struct {
	mu    sync.Mutex
	calls []string
}

func (p *fakePlayer) record(call string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
	return nil
}

func (p *fakePlayer) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *fakePlayer) Name() string  { return "office-mini" }
func (p *fakePlayer) Album() string { return "Kind of Blue" }
func (p *fakePlayer) Mode() string  { return "play" }

func (p *fakePlayer) LoadURL(_ context.Context, url string) error { return p.record("LoadURL " + url) }
func (p *fakePlayer) LoadPath(_ context.Context, path string) error {
	return p.record("LoadPath " + path)
}
func (p *fakePlayer) Command(_ context.Context, tokens ...string) error {
	return p.record("Command " + strings.Join(tokens, " "))
}
func (p *fakePlayer) Subcommand(_ context.Context, name string, args ...string) error {
	return p.record("Subcommand " + name + " " + strings.Join(args, " "))
}
func (p *fakePlayer) Update(context.Context) error { return p.record("Update") }

func newRegistry(t *testing.T, table string) *tags.Registry {
	t.Helper()
	entries, err := tags.Parse(strings.NewReader(table), "tags.csv")
	require.NoError(t, err)
	return tags.NewRegistry(entries)
}

func newRouter(t *testing.T, table string) (*Router, *fakePlayer) {
	t.Helper()
	p := &fakePlayer{}
	return New(newRegistry(t, table), dispatch.New(), p, prefix), p
}

func TestAlbumTagEndToEnd(t *testing.T) {
	r, p := newRouter(t, "t1,album,Jazz/MilesDavis,Kind of Blue\n")

	out := r.OnEvent(context.Background(), "rfid/reader01/tag", []byte("t1"))

	require.NoError(t, out.Err)
	assert.Equal(t, []string{"LoadPath /music/Jazz/MilesDavis/", "Update"}, p.Calls())
	assert.Equal(t, RouteTag, out.Route)
	assert.Equal(t, "t1", out.Tag)
	assert.Equal(t, dispatch.StatusPlayed, out.Result.Status)
	assert.Equal(t, "Play album Kind of Blue on player=office-mini", out.Result.Message)
	assert.NotEmpty(t, out.EventID)
}

func TestYearTag(t *testing.T) {
	r, p := newRouter(t, "t2,year,1977\n")

	out := r.OnEvent(context.Background(), "rfid/reader01/tag", []byte("t2"))

	require.NoError(t, out.Err)
	assert.Equal(t, []string{
		"Subcommand dynamicplaylist playlist play dplccustom_play_year dynamicplaylist_parameter_1:1977",
		"Update",
	}, p.Calls())
}

func TestUnknownTagMakesNoPlayerCalls(t *testing.T) {
	r, p := newRouter(t, "t1,url,http://x/y\n")

	out := r.OnEvent(context.Background(), "rfid/reader01/tag", []byte("nope"))

	assert.Empty(t, p.Calls())
	assert.True(t, errors.Is(out.Err, dispatch.ErrUnknownTag))
	assert.Equal(t, dispatch.StatusRejected, out.Result.Status)
	assert.Equal(t, "nope", out.Tag)
}

func TestButtonBehavesLikeButtonTag(t *testing.T) {
	table := "button1,command,pause\n"

	rButton, pButton := newRouter(t, table)
	outButton := rButton.OnEvent(context.Background(), "rfid/reader01/button1", []byte("whatever \xff"))

	rTag, pTag := newRouter(t, table)
	outTag := rTag.OnEvent(context.Background(), "rfid/reader01/tag", []byte("button1"))

	require.NoError(t, outButton.Err)
	require.NoError(t, outTag.Err)
	assert.Equal(t, []string{"Command pause", "Update"}, pButton.Calls())
	assert.Equal(t, pTag.Calls(), pButton.Calls())
	assert.Equal(t, ButtonTag, outButton.Tag)
	assert.Equal(t, outTag.Result, outButton.Result)
	assert.Equal(t, RouteButton, outButton.Route)
}

func TestOtherTopicsAreIgnored(t *testing.T) {
	r, p := newRouter(t, "t1,url,http://x/y\n")

	for _, topic := range []string{"rfid/reader01/status", "rfid/reader01/tag/raw", "rfid/reader02/tag"} {
		out := r.OnEvent(context.Background(), topic, []byte("t1"))
		assert.Equal(t, RouteIgnored, out.Route, topic)
		assert.NoError(t, out.Err)
	}
	assert.Empty(t, p.Calls())
}

func TestIgnoredTopicIsLoggedAtInfo(t *testing.T) {
	var buf bytes.Buffer
	logging.Configure(logging.Config{Level: "info", Output: &buf})
	t.Cleanup(func() { logging.Configure(logging.Config{}) })

	r, _ := newRouter(t, "t1,quit\n")
	r.OnEvent(context.Background(), "rfid/reader01/status", []byte("online"))

	assert.Contains(t, buf.String(), `"level":"info"`)
	assert.Contains(t, buf.String(), "no route for topic")
	assert.Contains(t, buf.String(), "rfid/reader01/status")
}

func TestInvalidUTF8IsDecodeError(t *testing.T) {
	r, p := newRouter(t, "t1,url,http://x/y\n")

	out := r.OnEvent(context.Background(), "rfid/reader01/tag", []byte{0xff, 0xfe})

	assert.Equal(t, RouteInvalid, out.Route)
	assert.True(t, errors.Is(out.Err, dispatch.ErrDecode))
	assert.Empty(t, p.Calls())
}

func TestObserversSeeEveryOutcome(t *testing.T) {
	r, _ := newRouter(t, "t1,quit,\n")
	var seen []Outcome
	r.Observe(func(o Outcome) { seen = append(seen, o) })

	r.OnEvent(context.Background(), "rfid/reader01/tag", []byte("t1"))
	r.OnEvent(context.Background(), "rfid/reader01/tag", []byte("t2"))

	require.Len(t, seen, 2)
	assert.Equal(t, dispatch.StatusSkipped, seen[0].Result.Status)
	assert.Equal(t, "quit()", seen[0].Action)
	assert.Equal(t, dispatch.StatusRejected, seen[1].Result.Status)
	assert.NotEqual(t, seen[0].EventID, seen[1].EventID)
}

// gatedDispatcher blocks every dispatch until released and tracks overlap.
type gatedDispatcher struct {
	started chan string
	release chan struct{}

	mu       sync.Mutex
	active   int
	overlap  bool
	ctxErrs  []error
	finished []string
}

func (d *gatedDispatcher) Dispatch(ctx context.Context, _ dispatch.Player, tag string, _ tags.Action) (dispatch.Result, error) {
	d.mu.Lock()
	d.active++
	if d.active > 1 {
		d.overlap = true
	}
	d.mu.Unlock()

	d.started <- tag
	<-d.release

	d.mu.Lock()
	d.active--
	d.ctxErrs = append(d.ctxErrs, ctx.Err())
	d.finished = append(d.finished, tag)
	d.mu.Unlock()
	return dispatch.Result{Status: dispatch.StatusPlayed}, nil
}

func TestRunIsSequentialAndFinishesInFlightDispatch(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := &gatedDispatcher{started: make(chan string, 4), release: make(chan struct{})}
	r := New(newRegistry(t, "a,quit,\nb,quit,\n"), d, &fakePlayer{}, prefix)

	msgs := make(chan bus.Message, 4)
	msgs <- bus.Message{Topic: "rfid/reader01/tag", Payload: []byte("a")}
	msgs <- bus.Message{Topic: "rfid/reader01/tag", Payload: []byte("b")}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, msgs) }()

	require.Equal(t, "a", <-d.started)
	d.release <- struct{}{}
	require.Equal(t, "b", <-d.started)

	// Interrupt while "b" is being dispatched.
	cancel()
	select {
	case <-done:
		t.Fatal("Run returned before the in-flight dispatch finished")
	case <-time.After(50 * time.Millisecond):
	}
	d.release <- struct{}{}

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	assert.False(t, d.overlap, "dispatches overlapped")
	assert.Equal(t, []string{"a", "b"}, d.finished)
	assert.Equal(t, []error{nil, nil}, d.ctxErrs)
}

func TestRunStopsWhenChannelCloses(t *testing.T) {
	defer goleak.VerifyNone(t)

	r, p := newRouter(t, "t1,url,http://x/y\n")
	msgs := make(chan bus.Message, 1)
	msgs <- bus.Message{Topic: "rfid/reader01/tag", Payload: []byte("t1")}
	close(msgs)

	require.NoError(t, r.Run(context.Background(), msgs))
	assert.Equal(t, []string{"LoadURL http://x/y", "Update"}, p.Calls())
}

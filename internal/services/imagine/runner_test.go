package imagine

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mjrelay/internal/interfaces"
	"github.com/ternarybob/mjrelay/internal/models"
)

const upscaleSource = "https://media.discordapp.net/ephemeral/fox/image.png?width=256&height=256"

// foxTimeline: the prompt is already in the channel, the bot answers after 20s,
// and the upscaled image shows up after the U1 click
func foxTimeline() []timedMessage {
	return []timedMessage{
		{0, userMessage("m1", "/imagine prompt [a red fox]")},
		{20 * time.Second, botMessage("m2", "a red fox — Midjourney Bot")},
		{80 * time.Second, botMessage("m3", "a red fox - Image #1 Midjourney Bot")},
	}
}

type runnerFixture struct {
	clock    *fakeClock
	session  *fakeSession
	provider *fakeProvider
	sink     interfaces.ResultSink
	runner   *Runner
}

func newRunnerFixture(timeline []timedMessage, sink interfaces.ResultSink) *runnerFixture {
	clk := newFakeClock()
	view := newFakeView(clk, timeline...).attach("m3", upscaleSource)
	view.controls["m2"] = "U1"
	session := &fakeSession{fakeView: view}
	provider := &fakeProvider{session: session}

	runner := NewRunner(testOptions(), provider, sink, arbor.NewLogger())
	runner.clock = clk.clock()

	return &runnerFixture{clock: clk, session: session, provider: provider, sink: sink, runner: runner}
}

func TestRunner_ScenarioA_HappyPath(t *testing.T) {
	sink := &fakeSink{}
	f := newRunnerFixture(foxTimeline(), sink)

	result := f.runner.Run(context.Background())

	require.NoError(t, result.Err)
	assert.Equal(t, models.JobStateDone, result.State)
	assert.Equal(t, "a red fox", result.Prompt)
	assert.Equal(t, "https://media.discordapp.net/ephemeral/fox/image.png?format=png&quality=lossless", result.ImageURL)
	assert.NoError(t, result.DispatchErr)
	assert.NotEmpty(t, result.JobID)

	assert.Equal(t, "https://discord.com/channels/111/222", f.session.openedAt)
	assert.Equal(t, []string{"/imagine", " a red fox"}, f.session.typed)
	require.Len(t, f.session.activated, 1)
	assert.Equal(t, "m2", f.session.activated[0].MessageID)

	require.Len(t, sink.results, 1)
	assert.Equal(t, models.ImageResult{ImageURL: result.ImageURL, Prompt: "a red fox"}, sink.results[0])
	assert.Equal(t, 1, f.session.closed, "session released")

	// settle 3s, polls at 3..23s, render 50s, action settle 10s
	assert.Equal(t, 83*time.Second, f.clock.elapsed())
}

func TestRunner_ScenarioB_ReplyTimeout(t *testing.T) {
	sink := &fakeSink{}
	f := newRunnerFixture([]timedMessage{
		{0, userMessage("m1", "/imagine prompt [a red fox]")},
		{0, botMessage("unrelated", "a blue whale - Midjourney Bot")},
	}, sink)

	result := f.runner.Run(context.Background())

	assert.Equal(t, models.JobStateFailed, result.State)
	assert.Equal(t, models.JobStateDetectingReply, result.FailedIn)
	assert.True(t, IsKind(result.Err, KindReplyTimeout))
	assert.Empty(t, sink.results, "no dispatch after a timeout")
	assert.Empty(t, f.session.activated)
	assert.Equal(t, 1, f.session.closed)
}

func TestRunner_ScenarioC_ControlNotFound(t *testing.T) {
	sink := &fakeSink{}
	f := newRunnerFixture(foxTimeline(), sink)
	delete(f.session.controls, "m2")

	result := f.runner.Run(context.Background())

	assert.Equal(t, models.JobStateFailed, result.State)
	assert.Equal(t, models.JobStateActionTriggered, result.FailedIn)
	assert.True(t, IsKind(result.Err, KindControlNotFound))
	assert.Zero(t, f.session.attachmentCalls, "no extraction attempted")
	assert.Empty(t, sink.results)
	assert.Equal(t, 1, f.session.closed)
}

func TestRunner_ScenarioD_DispatchFailureStillDone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("collector exploded"))
	}))
	defer server.Close()

	f := newRunnerFixture(foxTimeline(), NewDispatcher(server.URL, time.Second, arbor.NewLogger()))

	result := f.runner.Run(context.Background())

	assert.Equal(t, models.JobStateDone, result.State)
	assert.NoError(t, result.Err)
	assert.NotEmpty(t, result.ImageURL)
	require.Error(t, result.DispatchErr)
	assert.True(t, IsKind(result.DispatchErr, KindDispatch))
	assert.Contains(t, result.DispatchErr.Error(), "collector exploded")
	assert.Equal(t, 1, f.session.closed)
}

func TestRunner_SessionInitFailure(t *testing.T) {
	f := newRunnerFixture(foxTimeline(), &fakeSink{})
	f.provider.err = errors.New("chrome not found")

	result := f.runner.Run(context.Background())

	assert.Equal(t, models.JobStateFailed, result.State)
	assert.Equal(t, models.JobStateInit, result.FailedIn)
	assert.True(t, IsKind(result.Err, KindSessionInit))
	assert.Zero(t, f.session.closed, "no session to release")
}

func TestRunner_NavigationFailureReleasesSession(t *testing.T) {
	f := newRunnerFixture(foxTimeline(), &fakeSink{})
	f.session.openErr = errors.New("redirected to /login")

	result := f.runner.Run(context.Background())

	assert.True(t, IsKind(result.Err, KindNavigation))
	assert.Equal(t, models.JobStateAwaitUI, result.FailedIn)
	assert.Equal(t, 1, f.session.closed)
}

func TestRunner_PromptExtraction(t *testing.T) {
	t.Run("no messages ever render", func(t *testing.T) {
		f := newRunnerFixture(nil, &fakeSink{})
		result := f.runner.Run(context.Background())

		assert.True(t, IsKind(result.Err, KindPromptExtraction))
		assert.Equal(t, DefaultMessageWait, f.clock.elapsed())
		assert.Empty(t, f.session.typed)
	})

	t.Run("latest message renders late", func(t *testing.T) {
		timeline := foxTimeline()
		timeline[0].at = 10 * time.Second
		for i := 1; i < len(timeline); i++ {
			timeline[i].at += 10 * time.Second
		}
		f := newRunnerFixture(timeline, &fakeSink{})

		result := f.runner.Run(context.Background())
		require.NoError(t, result.Err)
		assert.Equal(t, "a red fox", result.Prompt)
	})

	t.Run("latest message has no body", func(t *testing.T) {
		f := newRunnerFixture([]timedMessage{{0, models.Message{ID: "m1", Text: "image only"}}}, &fakeSink{})
		result := f.runner.Run(context.Background())
		assert.True(t, IsKind(result.Err, KindPromptExtraction))
	})

	t.Run("prompt empty after cleaning", func(t *testing.T) {
		f := newRunnerFixture([]timedMessage{{0, userMessage("m1", "/imagine prompt [ ]")}}, &fakeSink{})
		result := f.runner.Run(context.Background())
		assert.True(t, IsKind(result.Err, KindPromptExtraction))
		assert.Empty(t, f.session.typed)
	})
}

func TestRunner_ReacquisitionFailure(t *testing.T) {
	f := newRunnerFixture(foxTimeline()[:2], &fakeSink{})
	view := f.session.fakeView
	f.runner.clock.sleep = func(ctx context.Context, d time.Duration) error {
		// The reply is deleted while the grid renders
		if d == DefaultRenderWait {
			view.timeline = view.timeline[:1]
		}
		return f.clock.sleep(ctx, d)
	}

	result := f.runner.Run(context.Background())

	assert.True(t, IsKind(result.Err, KindTargetReacquisition))
	assert.Equal(t, models.JobStateReacquiring, result.FailedIn)
	assert.Empty(t, f.session.activated)
}

func TestRunner_NoResourceFound(t *testing.T) {
	timeline := foxTimeline()[:2]
	sink := &fakeSink{}
	f := newRunnerFixture(timeline, sink)

	result := f.runner.Run(context.Background())

	assert.True(t, IsKind(result.Err, KindResourceNotFound))
	assert.Equal(t, models.JobStateExtracting, result.FailedIn)
	require.Len(t, f.session.activated, 1, "action ran before extraction")
	assert.Empty(t, sink.results)
}

package router

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/touch-switch/internal/channel"
	"github.com/sweeney/touch-switch/internal/group"
	"github.com/sweeney/touch-switch/internal/mqtt"
	"github.com/sweeney/touch-switch/internal/tap"
)

var topics = mqtt.Topics{Base: "home/hall", Group: "home/group", Mgt: "home/mgt", Hostname: "hall"}

type testClock struct{ ms uint32 }

func (c *testClock) now() uint32              { return c.ms }
func (c *testClock) advance(d time.Duration) { c.ms += uint32(d.Milliseconds()) }

type fixture struct {
	clock  *testClock
	pub    *mqtt.FakeClient
	router *Router
	resets int
}

func newFixture(t *testing.T, hb, initDelay time.Duration, ids ...uint8) *fixture {
	t.Helper()
	f := &fixture{clock: &testClock{ms: 5000}, pub: mqtt.NewFakeClient(topics)}
	var chans []*channel.Channel
	for i, id := range ids {
		c := channel.New(channel.Config{
			Index: i,
			ID:    id,
			Tap:   tap.Config{LongTap: 800 * time.Millisecond, InterTap: 400 * time.Millisecond},
			Ops: [channel.NumSlots]channel.Operation{
				channel.Toggle(),
				channel.AutoOff(time.Minute),
				channel.ToggleMaskOff(0x3f),
			},
		}, f.clock.now, nil, f.pub)
		require.NoError(t, c.Enable())
		chans = append(chans, c)
	}
	f.router = New(Config{
		Topics:         topics,
		Version:        "v1.2.0",
		Heartbeat:      hb,
		InitStateDelay: initDelay,
		Reset:          func() { f.resets++ },
	}, f.clock.now, chans, f.pub)
	return f
}

func (f *fixture) dispatch(t *testing.T, topic, payload string) {
	t.Helper()
	require.NoError(t, f.router.Dispatch(topic, []byte(payload)))
}

func TestDispatchChannelCommand(t *testing.T) {
	f := newFixture(t, 0, 0, 3, 5)

	f.dispatch(t, "home/hall/cmd/ch1", "on")
	c, ok := f.router.Channel(1)
	require.True(t, ok)
	assert.True(t, c.State().On)
	assert.Equal(t, []string{"on"}, f.pub.SentTo("home/hall/stat/ch1"))

	f.dispatch(t, "home/hall/cmd/ch1", "off")
	assert.False(t, c.State().On)

	f.dispatch(t, "home/hall/cmd/ch1", "toggle")
	f.dispatch(t, "home/hall/cmd/ch7", "on")
	f.dispatch(t, "home/other/cmd/ch0", "on")
	assert.Len(t, f.pub.Sent(), 2)
}

func TestDispatchGroupTurnOff(t *testing.T) {
	f := newFixture(t, 0, 0, 3, 5)
	for _, c := range f.router.Channels() {
		require.NoError(t, c.SetState(true))
	}
	f.pub.Reset()

	f.dispatch(t, "home/group", "tof/0x0000000000000004/1")

	c3, _ := f.router.Channel(0)
	c5, _ := f.router.Channel(1)
	assert.False(t, c3.State().On)
	assert.True(t, c5.State().On)
	assert.Equal(t, []mqtt.Published{{Topic: "home/hall/stat/ch0", Payload: "off", Retained: true}}, f.pub.Sent())
}

func TestDispatchGroupForwardExcludesWave(t *testing.T) {
	f := newFixture(t, 0, 0, 2)

	// A long tap forwarded to ids 2 and 3 toggles channel 2 and turns off
	// the peers of its mask that the wave did not already address.
	f.dispatch(t, "home/group", "flt/0x0000000000000006/1")

	c, _ := f.router.Channel(0)
	assert.True(t, c.State().On)
	assert.Equal(t, []string{"tof/0x0000000000000039/1"}, f.pub.SentTo("home/group"))
	assert.Equal(t, group.Mask(0x3d), c.Operation(channel.LongSingle).Mask, "configured mask untouched")
}

func TestDispatchGroupGarbage(t *testing.T) {
	f := newFixture(t, 0, 0, 1)
	for _, p := range []string{"", "fst", "fst/0x01/1", "zzz/0x0000000000000001/1"} {
		f.dispatch(t, "home/group", p)
	}
	assert.Empty(t, f.pub.Sent())
}

func TestDiscovery(t *testing.T) {
	f := newFixture(t, 0, 0, 3, 0)
	c, _ := f.router.Channel(0)
	require.NoError(t, c.SetState(true))
	f.pub.Reset()

	f.dispatch(t, "home/mgt", "dir")
	assert.Equal(t, []string{"hall v1.2.0 ch0:3:on ch1:0:off"}, f.pub.SentTo("home/mgt/hall"))

	f.pub.Reset()
	f.dispatch(t, "home/hall/cmd", "dir")
	assert.Len(t, f.pub.SentTo("home/mgt/hall"), 1)

	f.pub.Reset()
	f.dispatch(t, "home/mgt", "dir/extra")
	assert.Empty(t, f.pub.Sent())
}

func TestReset(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload string
		reset   bool
	}{
		{"management names host", "home/mgt", "rst/hall", true},
		{"management names other host", "home/mgt", "rst/kitchen", false},
		{"management without host", "home/mgt", "rst", false},
		{"device topic", "home/hall/cmd", "rst", true},
		{"device topic names host", "home/hall/cmd", "rst/hall", true},
		{"empty host", "home/mgt", "rst/", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 0, 0, 1)
			f.dispatch(t, tt.topic, tt.payload)
			if tt.reset {
				assert.Equal(t, 1, f.resets)
				assert.Equal(t, []string{"offline"}, f.pub.SentTo("home/hall/stat"))
			} else {
				assert.Zero(t, f.resets)
				assert.Empty(t, f.pub.Sent())
			}
		})
	}
}

func TestInitialStateDelayed(t *testing.T) {
	f := newFixture(t, time.Minute, time.Second, 1, 2)

	require.NoError(t, f.router.Poll())
	assert.Empty(t, f.pub.Sent(), "nothing before the first connection")

	require.NoError(t, f.router.Connected())
	f.clock.advance(999 * time.Millisecond)
	require.NoError(t, f.router.Poll())
	assert.Empty(t, f.pub.Sent())
	assert.False(t, f.router.InitialStateSent())

	f.clock.advance(time.Millisecond)
	require.NoError(t, f.router.Poll())
	assert.True(t, f.router.InitialStateSent())
	assert.Equal(t, []mqtt.Published{
		{Topic: "home/hall/stat", Payload: "online", Retained: true},
		{Topic: "home/hall/stat/ch0", Payload: "off", Retained: true},
		{Topic: "home/hall/stat/ch1", Payload: "off", Retained: true},
	}, f.pub.Sent())

	f.pub.Reset()
	require.NoError(t, f.router.InitialState())
	require.NoError(t, f.router.Poll())
	assert.Empty(t, f.pub.Sent(), "initial state is sent once")
}

func TestReconnectForcesHeartbeat(t *testing.T) {
	f := newFixture(t, time.Hour, 0, 1)
	require.NoError(t, f.router.Connected())
	require.NoError(t, f.router.Poll())
	f.pub.Reset()

	require.NoError(t, f.router.Connected())
	assert.Equal(t, []string{"online"}, f.pub.SentTo("home/hall/stat"))
	assert.Equal(t, []string{"off"}, f.pub.SentTo("home/hall/stat/ch0"))
}

func TestHeartbeatInterval(t *testing.T) {
	f := newFixture(t, time.Minute, 0, 1)
	require.NoError(t, f.router.Connected())
	require.NoError(t, f.router.Poll())
	f.pub.Reset()

	f.clock.advance(59 * time.Second)
	require.NoError(t, f.router.Poll())
	assert.Empty(t, f.pub.Sent())

	f.clock.advance(time.Second)
	require.NoError(t, f.router.Poll())
	assert.Equal(t, []string{"online"}, f.pub.SentTo("home/hall/stat"))

	f.pub.Reset()
	f.clock.advance(30 * time.Second)
	require.NoError(t, f.router.Poll())
	assert.Empty(t, f.pub.Sent(), "interval restarts after each heartbeat")
}

func TestHeartbeatDisabled(t *testing.T) {
	f := newFixture(t, 0, 0, 1)
	require.NoError(t, f.router.Connected())
	require.NoError(t, f.router.Poll())
	f.pub.Reset()

	f.clock.advance(24 * time.Hour)
	require.NoError(t, f.router.Poll())
	assert.Empty(t, f.pub.Sent())

	require.NoError(t, f.router.Heartbeat(true))
	assert.Equal(t, []string{"online"}, f.pub.SentTo("home/hall/stat"))
}

func TestPollRunsChannels(t *testing.T) {
	f := newFixture(t, 0, 0, 1)
	c, _ := f.router.Channel(0)

	c.Edges().Push(tap.Press, f.clock.ms)
	c.Edges().Push(tap.Release, f.clock.ms+100)
	f.clock.advance(time.Second)
	require.NoError(t, f.router.Poll())

	assert.True(t, c.State().On)
	assert.Equal(t, 1, c.Stats().ShortTaps)
}

func TestPublishErrorsReturned(t *testing.T) {
	f := newFixture(t, 0, 0, 1)
	f.pub.Err = assert.AnError
	assert.ErrorIs(t, f.router.Heartbeat(true), assert.AnError)
	assert.ErrorIs(t, f.router.Dispatch("home/hall/cmd/ch0", []byte("on")), assert.AnError)

	c, _ := f.router.Channel(0)
	assert.True(t, c.State().On, "local state survives a failed publish")
}

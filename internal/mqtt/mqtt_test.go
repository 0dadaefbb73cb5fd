package mqtt

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTopics = Topics{Base: "home/hall", Group: "home/group", Mgt: "home/mgt", Hostname: "hall"}

func TestTopicLayout(t *testing.T) {
	assert.Equal(t, "home/hall/cmd", testTopics.DeviceCmd())
	assert.Equal(t, "home/hall/stat", testTopics.DeviceStat())
	assert.Equal(t, "home/hall/cmd/ch2", testTopics.ChannelCmd(2))
	assert.Equal(t, "home/hall/stat/ch0", testTopics.ChannelStat(0))
	assert.Equal(t, "home/mgt/hall", testTopics.MgtReply())
	assert.Equal(t,
		[]string{"home/hall/cmd", "home/hall/cmd/+", "home/group", "home/mgt"},
		testTopics.Subscriptions())
}

func TestSubscriptionsSkipUnsetTopics(t *testing.T) {
	tp := Topics{Base: "sw"}
	assert.Equal(t, []string{"sw/cmd", "sw/cmd/+"}, tp.Subscriptions())
}

func TestChannelIndex(t *testing.T) {
	tests := []struct {
		topic string
		want  int
		ok    bool
	}{
		{"home/hall/cmd/ch0", 0, true},
		{"home/hall/cmd/ch12", 12, true},
		{"home/hall/cmd/ch", 0, false},
		{"home/hall/cmd/chx", 0, false},
		{"home/hall/cmd/ch-1", 0, false},
		{"home/hall/cmd/ch+1", 0, false},
		{"home/hall/cmd/ch01", 0, false},
		{"home/hall/cmd/ch00", 0, false},
		{"home/hall/cmd/ch1 ", 0, false},
		{"home/hall/cmd/ch1/x", 0, false},
		{"home/hall/cmd/ch99999999999999999999", 0, false},
		{"home/hall/cmd/ch10", 10, true},
		{"home/hall/cmd", 0, false},
		{"home/other/cmd/ch1", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			got, ok := testTopics.ChannelIndex(tt.topic)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTopicsValidate(t *testing.T) {
	require.NoError(t, testTopics.Validate())
	assert.Error(t, Topics{}.Validate())
	assert.Error(t, Topics{Base: "a/#"}.Validate())
	assert.Error(t, Topics{Base: "a", Group: "g/+"}.Validate())
}

func TestStatePayload(t *testing.T) {
	assert.Equal(t, "on", StatePayload(true))
	assert.Equal(t, "off", StatePayload(false))
}

func TestFakeClientRecords(t *testing.T) {
	f := NewFakeClient(testTopics)
	require.NoError(t, f.PublishState(1, true))
	require.NoError(t, f.PublishGroup([]byte("tof/0x0000000000000004/1")))
	require.NoError(t, f.PublishDevice(PayloadOnline))
	require.NoError(t, f.PublishMgt([]byte("hall v1")))

	sent := f.Sent()
	require.Len(t, sent, 4)
	assert.Equal(t, Published{Topic: "home/hall/stat/ch1", Payload: "on", Retained: true}, sent[0])
	assert.Equal(t, Published{Topic: "home/group", Payload: "tof/0x0000000000000004/1"}, sent[1])
	assert.Equal(t, []string{"online"}, f.SentTo("home/hall/stat"))
	assert.Equal(t, []string{"hall v1"}, f.SentTo("home/mgt/hall"))
}

func TestFakeClientError(t *testing.T) {
	f := NewFakeClient(testTopics)
	f.Err = errors.New("broker down")
	assert.Error(t, f.PublishState(0, false))
	assert.Empty(t, f.Sent())

	f.Reset()
	assert.NoError(t, f.PublishState(0, false))
}

func TestFakeClientInbox(t *testing.T) {
	f := NewFakeClient(testTopics)
	f.Inject("home/group", "tof/0x0000000000000001/1")
	msg := <-f.Messages()
	assert.Equal(t, "home/group", msg.Topic)
	assert.Equal(t, "tof/0x0000000000000001/1", string(msg.Payload))
}

func TestFakeClientConnects(t *testing.T) {
	f := NewFakeClient(testTopics)
	require.NoError(t, f.Close())
	assert.False(t, f.IsConnected())
	assert.True(t, f.Closed)

	f.Connect()
	f.Connect()
	assert.True(t, f.IsConnected())
	<-f.Connects()
	select {
	case <-f.Connects():
		t.Fatal("connect signal should coalesce")
	default:
	}
}

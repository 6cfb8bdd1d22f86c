package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hourmeter-backend/internal/maintenance"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func completedToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakePublisher struct {
	got   []published
	token *fakeToken
}

func (p *fakePublisher) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	p.got = append(p.got, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return p.token
}

func TestMQTTSink_PublishesTriggerAsJSON(t *testing.T) {
	pub := &fakePublisher{token: completedToken(nil)}
	sink := NewMQTTSink(pub, "hourmeter/alarms/", 1, time.Second)

	require.NoError(t, sink.NotifyAlarmTriggered(context.Background(), trigger))

	require.Len(t, pub.got, 1)
	assert.Equal(t, "hourmeter/alarms/101", pub.got[0].topic)
	assert.Equal(t, byte(1), pub.got[0].qos)

	var got maintenance.TriggerResult
	require.NoError(t, json.Unmarshal(pub.got[0].payload, &got))
	assert.Equal(t, trigger, got)
}

func TestMQTTSink_PublishError(t *testing.T) {
	pub := &fakePublisher{token: completedToken(errors.New("not connected"))}
	sink := NewMQTTSink(pub, "alarms", 0, time.Second)

	err := sink.NotifyAlarmTriggered(context.Background(), trigger)
	assert.ErrorContains(t, err, "not connected")
}

func TestMQTTSink_Timeout(t *testing.T) {
	pub := &fakePublisher{token: &fakeToken{done: make(chan struct{})}}
	sink := NewMQTTSink(pub, "alarms", 0, 10*time.Millisecond)

	err := sink.NotifyAlarmTriggered(context.Background(), trigger)
	assert.ErrorIs(t, err, errPublishTimeout)
}

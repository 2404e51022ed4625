package mqtt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-telemetry/internal/config"
	masterdata "fleet-telemetry/internal/masterdata/domain"
	telemetry "fleet-telemetry/internal/telemetry/domain"
)

type recordingIngester struct {
	mu     sync.Mutex
	drafts []telemetry.Draft
	err    error
}

func (r *recordingIngester) Ingest(_ context.Context, draft telemetry.Draft) (*telemetry.Reading, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.drafts = append(r.drafts, draft)
	return &telemetry.Reading{DeviceID: draft.DeviceID}, nil
}

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type fakeClient struct {
	handlers     map[string]paho.MessageHandler
	connectErr   error
	failTopic    string
	disconnected bool
}

func (c *fakeClient) IsConnected() bool      { return true }
func (c *fakeClient) IsConnectionOpen() bool { return true }
func (c *fakeClient) Connect() paho.Token    { return doneToken{err: c.connectErr} }
func (c *fakeClient) Disconnect(uint)        { c.disconnected = true }
func (c *fakeClient) Publish(string, byte, bool, interface{}) paho.Token {
	return doneToken{}
}
func (c *fakeClient) Subscribe(topic string, _ byte, cb paho.MessageHandler) paho.Token {
	if topic == c.failTopic {
		return doneToken{err: errors.New("not authorized")}
	}
	if c.handlers == nil {
		c.handlers = make(map[string]paho.MessageHandler)
	}
	c.handlers[topic] = cb
	return doneToken{}
}
func (c *fakeClient) SubscribeMultiple(map[string]byte, paho.MessageHandler) paho.Token {
	return doneToken{}
}
func (c *fakeClient) Unsubscribe(...string) paho.Token        { return doneToken{} }
func (c *fakeClient) AddRoute(string, paho.MessageHandler)    {}
func (c *fakeClient) OptionsReader() paho.ClientOptionsReader { return paho.ClientOptionsReader{} }

func TestDeviceIDFromTopic(t *testing.T) {
	assert.Equal(t, "esp-1", DeviceIDFromTopic("fleet/esp-1/readings"))
	assert.Equal(t, "esp-1", DeviceIDFromTopic("/plant/a/esp-1/readings"))
	assert.Empty(t, DeviceIDFromTopic("fleet/esp-1/status"))
	assert.Empty(t, DeviceIDFromTopic("readings"))
}

func TestHandleMessage(t *testing.T) {
	ing := &recordingIngester{}
	sub, err := newSubscriber(&fakeClient{}, config.MQTTConfig{}, ing, nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, sub.HandleMessage(ctx, "fleet/esp-topic/readings", []byte(`{"temperature":20}`)))
	require.NoError(t, sub.HandleMessage(ctx, "fleet/esp-topic/readings", []byte(`{"device_id":"esp-body"}`)))
	require.Len(t, ing.drafts, 2)
	assert.Equal(t, "esp-topic", ing.drafts[0].DeviceID)
	assert.Equal(t, 20.0, *ing.drafts[0].Temperature)
	assert.Equal(t, "esp-body", ing.drafts[1].DeviceID)

	assert.Error(t, sub.HandleMessage(ctx, "fleet/x/readings", []byte(`not json`)))
	assert.Error(t, sub.HandleMessage(ctx, "fleet/status", []byte(`{}`)))

	ing.err = masterdata.ErrDeviceNotFound
	assert.ErrorIs(t, sub.HandleMessage(ctx, "fleet/ghost/readings", []byte(`{}`)), masterdata.ErrDeviceNotFound)
}

func TestStartSubscribesAndRoutes(t *testing.T) {
	client := &fakeClient{failTopic: "denied/+/readings"}
	ing := &recordingIngester{}
	sub, err := newSubscriber(client, config.MQTTConfig{Topics: []string{"fleet/+/readings", "denied/+/readings"}}, ing, nil)
	require.NoError(t, err)

	require.NoError(t, sub.Start())
	require.Contains(t, client.handlers, "fleet/+/readings")
	assert.NotContains(t, client.handlers, "denied/+/readings")

	client.handlers["fleet/+/readings"](client, fakeMessage{topic: "fleet/esp-9/readings", payload: []byte(`{"gas_index":50}`)})
	require.Len(t, ing.drafts, 1)
	assert.Equal(t, "esp-9", ing.drafts[0].DeviceID)

	sub.Stop()
	assert.True(t, client.disconnected)
}

func TestStartConnectError(t *testing.T) {
	sub, err := newSubscriber(&fakeClient{connectErr: errors.New("refused")}, config.MQTTConfig{}, &recordingIngester{}, nil)
	require.NoError(t, err)
	assert.Error(t, sub.Start())
}

func TestNewSubscriberRequiresBroker(t *testing.T) {
	_, err := NewSubscriber(config.MQTTConfig{}, &recordingIngester{}, nil)
	assert.Error(t, err)
}

package pubsub

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingPublisher struct {
	subject string
	headers map[string]string
	payload []byte
}

func (r *recordingPublisher) Publish(subject string, headers map[string]string, payload []byte) error {
	r.subject = subject
	r.headers = headers
	r.payload = payload
	return nil
}

func TestRecordingPublisherSatisfiesInterface(t *testing.T) {
	var p Publisher = &recordingPublisher{}
	require := assert.New(t)
	require.NoError(p.Publish("orders.abc", map[string]string{"X-Source": "mca-timer"}, []byte(`{}`)))
}

package rabbitMQ

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ds124wfegd/linktracker/pkg/queue"
)

type fakeAck struct {
	acked, nacked, requeued bool
}

func (f *fakeAck) Ack(bool) error { f.acked = true; return nil }

func (f *fakeAck) Nack(_ bool, requeue bool) error {
	f.nacked, f.requeued = true, requeue
	return nil
}

func TestSettleBody(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want fakeAck
	}{
		{"processed", nil, fakeAck{acked: true}},
		{"transient failure", errors.New("database is locked"), fakeAck{nacked: true, requeued: true}},
		{"poison message", queue.Permanent(errors.New("malformed click")), fakeAck{nacked: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got fakeAck
			settleBody(context.Background(), []byte(`{}`), &got, func(ctx context.Context, body []byte) error {
				assert.Equal(t, `{}`, string(body))
				return tt.err
			})
			assert.Equal(t, tt.want, got)
		})
	}
}

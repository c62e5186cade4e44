package payment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	header := Sign(payload, "whsec_test", time.Now())

	assert.NoError(t, VerifySignature(payload, header, "whsec_test"))
}

func TestVerifySignatureTamperedPayload(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	header := Sign(payload, "whsec_test", time.Now())

	err := VerifySignature([]byte(`{"id":"evt_2"}`), header, "whsec_test")
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifySignatureWrongSecret(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	header := Sign(payload, "whsec_test", time.Now())

	err := VerifySignature(payload, header, "whsec_other")
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifySignatureMalformedHeader(t *testing.T) {
	payload := []byte(`{}`)
	for _, header := range []string{
		"",
		"garbage",
		"t=123",
		"v1=deadbeef",
		"t=notanumber,v1=deadbeef",
	} {
		err := VerifySignature(payload, header, "whsec_test")
		assert.ErrorIs(t, err, ErrMalformedHeader, "header %q", header)
	}
}

func TestVerifySignatureStaleTimestamp(t *testing.T) {
	payload := []byte(`{}`)

	header := Sign(payload, "whsec_test", time.Now().Add(-10*time.Minute))
	assert.ErrorIs(t, VerifySignature(payload, header, "whsec_test"), ErrStaleTimestamp)

	// a future timestamp is just as suspect as a stale one
	header = Sign(payload, "whsec_test", time.Now().Add(10*time.Minute))
	assert.ErrorIs(t, VerifySignature(payload, header, "whsec_test"), ErrStaleTimestamp)

	// zero tolerance disables the replay window entirely
	header = Sign(payload, "whsec_test", time.Now().Add(-time.Hour))
	assert.NoError(t, VerifySignatureWithTolerance(payload, header, "whsec_test", 0))
}

func TestParseEvent(t *testing.T) {
	ev, err := ParseEvent([]byte(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"data": {"object": {"id": "cs_1", "line_items": [{"name": "keyboard", "unit_amount": 4999, "quantity": 2}]}}
	}`))
	require.NoError(t, err)
	assert.Equal(t, "evt_1", ev.ID)
	assert.Equal(t, EventCheckoutCompleted, ev.Type)
	require.Len(t, ev.Data.Session.LineItems, 1)
	assert.EqualValues(t, 4999, ev.Data.Session.LineItems[0].UnitAmount)

	_, err = ParseEvent([]byte(`not json`))
	assert.Error(t, err)

	_, err = ParseEvent([]byte(`{"type":"checkout.session.completed"}`))
	assert.Error(t, err, "an event without an id cannot be reconciled")
}

package realtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNotification(t *testing.T) {
	ev, err := ParseNotification(`{"type":"UPDATE","record":{"id":"n1","status":"done"},"old_record":{"id":"n1","status":"pending"}}`)
	require.NoError(t, err)
	assert.Equal(t, KindUpdate, ev.Kind)
	assert.Equal(t, "n1", ev.RowID())
	assert.JSONEq(t, `{"id":"n1","status":"done"}`, string(ev.Data()))
}

func TestParseNotification_Delete(t *testing.T) {
	ev, err := ParseNotification(`{"type":"DELETE","record":null,"old_record":{"id":"gone"}}`)
	require.NoError(t, err)
	assert.Equal(t, "gone", ev.RowID())
	assert.JSONEq(t, `{"id":"gone"}`, string(ev.Data()))
}

func TestParseNotification_Rejects(t *testing.T) {
	_, err := ParseNotification(`not json`)
	assert.Error(t, err)

	_, err = ParseNotification(`{"type":"TRUNCATE"}`)
	assert.Error(t, err)
}

func TestChangeEvent_NoRow(t *testing.T) {
	ev := ChangeEvent{Kind: KindInsert, Record: json.RawMessage(`null`)}
	assert.Nil(t, ev.Data())
	assert.Empty(t, ev.RowID())
}

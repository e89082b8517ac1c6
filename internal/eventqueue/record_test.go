package eventqueue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseType(t *testing.T) {
	ty, err := ParseType("Probe_Fire")
	require.NoError(t, err)
	assert.Equal(t, ProbeFire, ty)
	ty, err = ParseType("200")
	require.NoError(t, err)
	assert.Equal(t, Type(200), ty)
	_, err = ParseType("256")
	assert.Error(t, err)
	assert.Equal(t, "type(77)", Type(77).String())
}

func TestMaskHas(t *testing.T) {
	m := MaskOf(ProbeInstall, TraceStop, Type(63), Type(64))
	assert.True(t, m.Has(ProbeInstall))
	assert.True(t, m.Has(Type(63)))
	assert.False(t, m.Has(ProbeFire))
	assert.False(t, AllTypes.Has(Type(64)), "types beyond the mask width never match")
}

func TestRecordJSON(t *testing.T) {
	b, err := json.Marshal(Record{Type: ProbeFire, Guest: 2, Thread: -1, Payload: []byte("hi")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"probe_fire","guest":2,"thread":-1,"payload":"aGk="}`, string(b))

	var r Record
	require.NoError(t, json.Unmarshal([]byte(`{"type":250,"payload":"aGk="}`), &r))
	assert.Equal(t, Type(250), r.Type)
	assert.Equal(t, "hi", string(r.Payload))
	assert.Error(t, json.Unmarshal([]byte(`{"type":"bogus"}`), &r))
}

func TestMaskJSON(t *testing.T) {
	var s struct {
		Mask Mask `json:"mask"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"mask":"0x21"}`), &s))
	assert.Equal(t, MaskOf(ProbeInstall, ProbeFire), s.Mask)
	require.NoError(t, json.Unmarshal([]byte(`{"mask":4}`), &s))
	assert.Equal(t, MaskOf(TraceStart), s.Mask)

	b, err := json.Marshal(struct {
		Mask Mask `json:"mask"`
	}{AllTypes})
	require.NoError(t, err)
	assert.JSONEq(t, `{"mask":"0xffffffffffffffff"}`, string(b))
}

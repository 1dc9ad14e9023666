package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalAddsKind(t *testing.T) {
	data, err := Marshal(Eval{
		Header:     Header{MessageID: "req-1"},
		Script:     "value || 0",
		Idempotent: true,
		Track:      true,
	})
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Equal(t, "eval", fields["kind"])
	assert.Equal(t, "req-1", fields["messageId"])
	assert.Equal(t, "value || 0", fields["script"])
	assert.Equal(t, true, fields["track"])
	assert.NotContains(t, fields, "instanceId")
}

func TestResultVarsPresence(t *testing.T) {
	tests := []struct {
		name     string
		vars     Tracking
		wantVars bool
	}{
		{name: "untracked", vars: nil, wantVars: false},
		{name: "tracked but empty", vars: Tracking{}, wantVars: true},
		{name: "tracked", vars: Tracking{"value": {Read: Version(0)}}, wantVars: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Marshal(Result{
				ResponseHeader: Reply("sandbox-1", "req-1"),
				Result:         12,
				Vars:           tt.vars,
			})
			require.NoError(t, err)

			var fields map[string]any
			require.NoError(t, json.Unmarshal(data, &fields))
			_, ok := fields["vars"]
			assert.Equal(t, tt.wantVars, ok)

			decoded, err := Unmarshal(data)
			require.NoError(t, err)
			res, ok := decoded.(Result)
			require.True(t, ok)
			assert.Equal(t, tt.wantVars, res.Vars != nil)
			assert.Equal(t, "req-1", res.RespondsTo())
		})
	}
}

func TestTrackedVersionZeroIsKept(t *testing.T) {
	data, err := Marshal(Result{
		ResponseHeader: Reply("sandbox-2", "req-2"),
		Vars:           Tracking{"value": {Read: Version(0), Write: Version(1)}},
	})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"value":{"read":0,"write":1}`)
}

func TestUnmarshalVariants(t *testing.T) {
	tests := []struct {
		frame string
		kind  Kind
		check func(t *testing.T, m Message)
	}{
		{
			frame: `{"kind":"ping","messageId":"a"}`,
			kind:  KindPing,
		},
		{
			frame: `{"kind":"init","messageId":"b","funcs":["getUser","sendMail"],"readOnlyGlobals":true}`,
			kind:  KindInit,
			check: func(t *testing.T, m Message) {
				init := m.(Init)
				assert.Equal(t, []string{"getUser", "sendMail"}, init.Funcs)
				assert.True(t, init.ReadOnlyGlobals)
			},
		},
		{
			frame: `{"kind":"call-result","messageId":"c","inResponseTo":"sandbox-3","result":{"name":"ada"}}`,
			kind:  KindCallResult,
			check: func(t *testing.T, m Message) {
				res := m.(CallResult)
				assert.Equal(t, "sandbox-3", res.InResponseTo)
				assert.Equal(t, map[string]any{"name": "ada"}, res.Result)
			},
		},
		{
			frame: `{"kind":"error","messageId":"d","inResponseTo":"sandbox-4","message":"nope"}`,
			kind:  KindError,
			check: func(t *testing.T, m Message) {
				assert.EqualError(t, m.(Error), "nope")
				assert.True(t, IsResponse(m))
			},
		},
		{
			frame: `{"kind":"teleport","messageId":"e"}`,
			kind:  Kind("teleport"),
			check: func(t *testing.T, m Message) {
				assert.IsType(t, Unknown{}, m)
				assert.Equal(t, "e", m.ID())
				assert.False(t, IsResponse(m))
			},
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			m, err := Unmarshal([]byte(tt.frame))
			require.NoError(t, err)
			assert.Equal(t, tt.kind, m.Kind())
			if tt.check != nil {
				tt.check(t, m)
			}
		})
	}
}

func TestUnmarshalMalformed(t *testing.T) {
	for _, frame := range []string{`not json`, `{"messageId":"x"}`, `[]`} {
		_, err := Unmarshal([]byte(frame))
		assert.ErrorIs(t, err, ErrMalformed, frame)
	}
}

func TestCallArgsNeverNull(t *testing.T) {
	data, err := Marshal(Call{Header: Header{MessageID: "sandbox-9"}, Key: "now", CorrelationID: "req-1"})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"args":[]`)
	assert.Contains(t, string(data), `"idempotent":false`)
}

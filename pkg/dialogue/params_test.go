package dialogue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParamValue_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		kind    Kind
		wantErr bool
	}{
		{"string", `"Magic_Sword"`, KindString, false},
		{"integer", `3`, KindNumber, false},
		{"negative float", `-1.25`, KindNumber, false},
		{"true", `true`, KindBool, false},
		{"false", `false`, KindBool, false},
		{"nested map", `{"a":{"b":"c"}}`, KindMap, false},
		{"null", `null`, 0, true},
		{"array", `[1,2]`, 0, true},
		{"garbage", `tru`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v ParamValue
			err := json.Unmarshal([]byte(tt.input), &v)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, v.Kind())
			assert.True(t, v.IsValid())
		})
	}
}

func TestParams_MarshalJSON(t *testing.T) {
	var nilParams Params
	b, err := json.Marshal(nilParams)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(b))

	p := Params{
		"item_name": String("Magic_Sword"),
		"count":     Number(2),
		"cursed":    Bool(false),
		"origin":    Map(Params{"forge": String("dying star")}),
	}
	b, err = json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"item_name":"Magic_Sword","count":2,"cursed":false,"origin":{"forge":"dying star"}}`, string(b))

	var back Params
	require.NoError(t, json.Unmarshal(b, &back))
	assert.True(t, p.Equal(back))
}

func TestParamValue_ZeroValueCannotMarshal(t *testing.T) {
	_, err := json.Marshal(Params{"bad": {}})
	assert.Error(t, err)
}

func TestParams_Equal(t *testing.T) {
	assert.True(t, Params(nil).Equal(Params{}))
	assert.False(t, Params{"a": String("1")}.Equal(Params{"a": Number(1)}))
	assert.False(t, Params{"a": String("1")}.Equal(Params{"b": String("1")}))
	assert.True(t, Params{"m": Map(Params{"x": Bool(true)})}.Equal(Params{"m": Map(Params{"x": Bool(true)})}))
}

func TestParams_Keys(t *testing.T) {
	p := Params{"zeta": Bool(true), "alpha": Bool(true), "mid": Bool(true)}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, p.Keys())
}

func TestParamValue_Accessors(t *testing.T) {
	s, ok := String("x").AsString()
	assert.True(t, ok)
	assert.Equal(t, "x", s)

	_, ok = String("x").AsNumber()
	assert.False(t, ok)

	assert.Equal(t, "map", KindMap.String())
	assert.Equal(t, "invalid", Kind(0).String())
}

func TestParamValue_String(t *testing.T) {
	tests := []struct {
		v    ParamValue
		want string
	}{
		{String("Magic_Sword"), "Magic_Sword"},
		{Number(2), "2"},
		{Number(0.5), "0.5"},
		{Bool(true), "true"},
		{Map(Params{"b": Number(1), "a": String("x")}), "{a=x, b=1}"},
		{ParamValue{}, "<invalid>"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.v.String())
	}
}

package models

import (
	"encoding/json"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueString(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	tests := []struct {
		name  string
		value Value
		want  string
	}{
		{"string", StringValue("online"), "online"},
		{"integral number", NumberValue(4), "4"},
		{"fractional number", NumberValue(1.5), "1.5"},
		{"bool", BoolValue(true), "true"},
		{"ip", IPValue(netip.MustParseAddr("10.0.1.5")), "10.0.1.5"},
		{"network", NetworkValue(netip.MustParsePrefix("10.0.0.0/16")), "10.0.0.0/16"},
		{"relation", RelationValue("hv1.dc0"), "hv1.dc0"},
		{
			"datetime normalizes to utc",
			DatetimeValue(time.Date(2024, 6, 1, 14, 30, 0, 0, berlin)),
			"2024-06-01T12:30:00Z",
		},
		{
			"multi joins with commas",
			MultiValue([]Value{StringValue("web"), StringValue("db")}),
			"web,db",
		},
		{"empty multi", MultiValue(nil), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.value.String())
		})
	}
}

func TestValueNative(t *testing.T) {
	assert.Equal(t, int64(4), NumberValue(4).Native())
	assert.Equal(t, 1.5, NumberValue(1.5).Native())
	assert.Equal(t, "10.0.1.5", IPValue(netip.MustParseAddr("10.0.1.5")).Native())
	assert.Equal(t, []any{"web", int64(2)},
		MultiValue([]Value{StringValue("web"), NumberValue(2)}).Native())
	assert.Equal(t, []any{}, MultiValue(nil).Native())
}

func TestValueMarshalJSON(t *testing.T) {
	data, err := json.Marshal(map[string]Value{
		"cores": NumberValue(4),
		"tags":  MultiValue([]Value{StringValue("web")}),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"cores":4,"tags":["web"]}`, string(data))
}

func TestValueEqual(t *testing.T) {
	assert.True(t, NumberValue(4).Equal(NumberValue(4)))
	assert.False(t, NumberValue(4).Equal(NumberValue(5)))
	// "4" the string and 4 the number are different values.
	assert.False(t, StringValue("4").Equal(NumberValue(4)))

	utc := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	assert.True(t, DatetimeValue(utc).Equal(DatetimeValue(utc.In(time.FixedZone("CET", 3600)))))

	multi := func(elems ...string) Value {
		values := make([]Value, len(elems))
		for i, e := range elems {
			values[i] = StringValue(e)
		}
		return MultiValue(values)
	}
	assert.True(t, multi("a", "b").Equal(multi("a", "b")))
	assert.False(t, multi("a", "b").Equal(multi("b", "a")))
	assert.False(t, multi("a").Equal(multi("a", "a")))
}

func TestValueCompare(t *testing.T) {
	// Numbers compare numerically, not as text.
	assert.Negative(t, NumberValue(9).Compare(NumberValue(10)))
	assert.Positive(t, NumberValue(10).Compare(NumberValue(9)))
	assert.Zero(t, NumberValue(4).Compare(NumberValue(4)))

	early := DatetimeValue(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	late := DatetimeValue(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	assert.Negative(t, early.Compare(late))

	assert.Negative(t, StringValue("alpha").Compare(StringValue("beta")))

	// Mixed kinds fall back to canonical text.
	assert.Positive(t, StringValue("9").Compare(NumberValue(10)))
}

func TestIsIdentityAttr(t *testing.T) {
	for _, name := range []string{"object_id", "hostname", "servertype", "project", "intern_ip", "segment"} {
		assert.True(t, IsIdentityAttr(name), name)
	}
	assert.False(t, IsIdentityAttr("state"))
}

func TestAttributeComputed(t *testing.T) {
	assert.True(t, (&Attribute{Type: TypeReverseRelation}).Computed())
	assert.True(t, (&Attribute{Type: TypeSupernet}).Computed())
	assert.True(t, (&Attribute{Type: TypeDomain}).Computed())
	assert.False(t, (&Attribute{Type: TypeString}).Computed())
}

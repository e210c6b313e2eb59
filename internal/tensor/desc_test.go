package tensor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataTypeSize(t *testing.T) {
	tests := []struct {
		dtype DataType
		size  int
		name  string
	}{
		{Float32, 4, "float32"},
		{Float16, 2, "float16"},
		{Int8, 1, "int8"},
		{Int32, 4, "int32"},
		{Bool, 1, "bool"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.size, tt.dtype.Size())
			assert.Equal(t, tt.name, tt.dtype.String())
			parsed, err := ParseDataType(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.dtype, parsed)
		})
	}

	_, err := ParseDataType("complex64")
	assert.Error(t, err)
	assert.False(t, DataType(42).Valid())
}

func TestDataTypeJSON(t *testing.T) {
	b, err := json.Marshal(map[string]DataType{"dtype": Float16})
	require.NoError(t, err)
	assert.JSONEq(t, `{"dtype":"float16"}`, string(b))

	var got struct{ Dtype DataType }
	require.NoError(t, json.Unmarshal([]byte(`{"Dtype":"fp32"}`), &got))
	assert.Equal(t, Float32, got.Dtype)
	assert.Error(t, json.Unmarshal([]byte(`{"Dtype":"qint4"}`), &got))

	_, err = json.Marshal(DataType(42))
	assert.Error(t, err)
}

func TestShape(t *testing.T) {
	s := Shape{2, 5, 3}
	assert.Equal(t, 30, s.NumElements())
	require.NoError(t, s.Validate())
	assert.Equal(t, "(2, 5, 3)", s.String())

	dyn := Shape{Dynamic, 5, 3}
	assert.True(t, dyn.IsDynamic())
	assert.Equal(t, 0, dyn.NumElements())
	assert.Error(t, dyn.Validate())
	assert.Equal(t, "(?, 5, 3)", dyn.String())

	assert.Error(t, make(Shape, MaxDims+1).Validate())
}

func TestDescCloneIsDeep(t *testing.T) {
	d := NewDesc(Float16, 2, 5, 3)
	c := d.Clone()
	c.Dims[0] = 9

	assert.Equal(t, 2, d.Dims[0])
	assert.False(t, d.Equal(c))
	assert.Equal(t, 60, d.ByteSize())
	assert.Equal(t, "float16(2, 5, 3)/linear", d.String())
}

func TestDynamicDescUpper(t *testing.T) {
	d := DynamicDesc{
		Desc: NewDesc(Float32, Dynamic, 5, 3),
		Min:  Shape{1, 5, 3},
		Max:  Shape{8, 5, 3},
	}
	assert.Equal(t, Shape{8, 5, 3}, d.Upper())

	static := NewDynamicDesc(NewDesc(Float32, 2, 5, 3))
	assert.Equal(t, Shape{2, 5, 3}, static.Upper())
}

func TestLoadStore(t *testing.T) {
	values := []float32{1.5, -2, 0, 3.25}
	for _, dt := range []DataType{Float32, Float16} {
		buf := Encode(values, dt)
		assert.Len(t, buf, len(values)*dt.Size())
		assert.Equal(t, values, Decode(buf, dt), dt.String())
	}

	buf := make([]byte, 4)
	Store(buf, Int32, 0, -7)
	assert.Equal(t, float32(-7), Load(buf, Int32, 0))

	Store(buf, Bool, 1, 0.5)
	assert.Equal(t, float32(1), Load(buf, Bool, 1))

	Store(buf, Int8, 2, -3)
	assert.Equal(t, float32(-3), Load(buf, Int8, 2))
}

package cache

import (
	"math"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOp = "completion.Client.Stream"

func TestDerive_OrderIndependent(t *testing.T) {
	d := NewDeriver()

	a := Args{}
	a["prompt"] = "list files"
	a["temperature"] = 0.1
	a["top_probability"] = 1.0

	b := Args{}
	b["top_probability"] = 1.0
	b["temperature"] = 0.1
	b["prompt"] = "list files"

	ka, err := d.Derive(testOp, a)
	require.NoError(t, err)
	kb, err := d.Derive(testOp, b)
	require.NoError(t, err)
	assert.Equal(t, ka, kb)
}

func TestDerive_NestedMapsOrderIndependent(t *testing.T) {
	d := NewDeriver()
	k1, err := d.Derive(testOp, Args{"opts": map[string]any{"x": 1, "y": []any{"a", map[string]any{"p": 1, "q": 2}}}})
	require.NoError(t, err)
	k2, err := d.Derive(testOp, Args{"opts": map[string]any{"y": []any{"a", map[string]any{"q": 2, "p": 1}}, "x": 1}})
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
}

func TestDerive_IgnoresCachingArg(t *testing.T) {
	d := NewDeriver()
	base := Args{"prompt": "hello", "temperature": 0.1}

	k0, err := d.Derive(testOp, base)
	require.NoError(t, err)
	kOn, err := d.Derive(testOp, Args{"prompt": "hello", "temperature": 0.1, CachingArg: true})
	require.NoError(t, err)
	kOff, err := d.Derive(testOp, Args{"prompt": "hello", "temperature": 0.1, CachingArg: false})
	require.NoError(t, err)

	assert.Equal(t, k0, kOn)
	assert.Equal(t, k0, kOff)
}

func TestDerive_Sensitivity(t *testing.T) {
	d := NewDeriver()
	base := Args{"prompt": "list files", "temperature": 0.1, "top_probability": 1.0}
	baseKey, err := d.Derive(testOp, base)
	require.NoError(t, err)

	tests := []struct {
		name string
		args Args
	}{
		{"prompt", Args{"prompt": "list files ", "temperature": 0.1, "top_probability": 1.0}},
		{"temperature", Args{"prompt": "list files", "temperature": 0.2, "top_probability": 1.0}},
		{"top_probability", Args{"prompt": "list files", "temperature": 0.1, "top_probability": 0.9}},
		{"extra argument", Args{"prompt": "list files", "temperature": 0.1, "top_probability": 1.0, "n": 1}},
		{"missing argument", Args{"prompt": "list files", "temperature": 0.1}},
		{"renamed argument", Args{"query": "list files", "temperature": 0.1, "top_probability": 1.0}},
	}
	seen := map[Key]string{baseKey: "base"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, err := d.Derive(testOp, tt.args)
			require.NoError(t, err)
			prev, dup := seen[k]
			assert.False(t, dup, "key collides with %s", prev)
			seen[k] = tt.name
		})
	}
}

func TestDerive_SeparatesOperations(t *testing.T) {
	d := NewDeriver()
	args := Args{"prompt": "hello"}
	k1, err := d.Derive("op.A", args)
	require.NoError(t, err)
	k2, err := d.Derive("op.B", args)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2)
}

func TestDerive_KeyFormat(t *testing.T) {
	k, err := NewDeriver().Derive(testOp, Args{"prompt": "../../etc/passwd"})
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{64}$`), string(k))
	assert.NoError(t, validateKey(k))
}

func TestDerive_NonSerializable(t *testing.T) {
	d := NewDeriver()
	tests := []struct {
		name string
		args Args
	}{
		{"func", Args{"cb": func() {}}},
		{"channel", Args{"ch": make(chan int)}},
		{"NaN", Args{"temperature": math.NaN()}},
		{"Inf", Args{"temperature": math.Inf(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Derive(testOp, tt.args)
			assert.ErrorIs(t, err, ErrKeyDerivation)
		})
	}
}

func TestDerive_EmptyOperation(t *testing.T) {
	_, err := NewDeriver().Derive("", Args{"prompt": "x"})
	assert.ErrorIs(t, err, ErrKeyDerivation)
}

func TestDerive_InvalidUTF8IsDistinct(t *testing.T) {
	d := NewDeriver()

	kFF, err := d.Derive(testOp, Args{"prompt": "x\xff"})
	require.NoError(t, err)
	kFE, err := d.Derive(testOp, Args{"prompt": "x\xfe"})
	require.NoError(t, err)
	kRepl, err := d.Derive(testOp, Args{"prompt": "x�"})
	require.NoError(t, err)

	assert.NotEqual(t, kFF, kFE)
	assert.NotEqual(t, kFF, kRepl)
	assert.NotEqual(t, kFE, kRepl)

	nested1, err := d.Derive(testOp, Args{"opts": map[string]any{"k": []any{"\xff"}}})
	require.NoError(t, err)
	nested2, err := d.Derive(testOp, Args{"opts": map[string]any{"k": []any{"\xfe"}}})
	require.NoError(t, err)
	assert.NotEqual(t, nested1, nested2)

	again, err := d.Derive(testOp, Args{"prompt": "x\xff"})
	require.NoError(t, err)
	assert.Equal(t, kFF, again)
}

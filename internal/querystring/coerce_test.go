package querystring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pitabwire/flagconsole/model"
)

func TestInt(t *testing.T) {
	tests := []struct {
		name   string
		value  any
		want   int64
		wantOK bool
	}{
		{"string", "2", 2, true},
		{"leading zero", "08", 8, true},
		{"int", 5, 5, true},
		{"float integral", 3.0, 3, true},
		{"fractional", "2.5", 0, false},
		{"empty", "", 0, false},
		{"text", "abc", 0, false},
		{"nil", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Int(model.SearchOptions{"role": tt.value}, "role")
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInt_absent(t *testing.T) {
	_, ok := Int(model.SearchOptions{}, "role")
	assert.False(t, ok)
}

func TestPage(t *testing.T) {
	assert.Equal(t, 1, Page(model.SearchOptions{}))
	assert.Equal(t, 3, Page(model.SearchOptions{"page": "3"}))
	assert.Equal(t, 1, Page(model.SearchOptions{"page": "0"}))
	assert.Equal(t, 1, Page(model.SearchOptions{"page": "-4"}))
	assert.Equal(t, 1, Page(model.SearchOptions{"page": "two"}))
}

func TestTristate(t *testing.T) {
	on := Tristate(model.SearchOptions{"enabled": "true"}, "enabled")
	off := Tristate(model.SearchOptions{"enabled": "false"}, "enabled")
	if assert.NotNil(t, on) {
		assert.True(t, *on)
	}
	if assert.NotNil(t, off) {
		assert.False(t, *off)
	}
	assert.Nil(t, Tristate(model.SearchOptions{}, "enabled"))
	assert.Nil(t, Tristate(model.SearchOptions{"enabled": ""}, "enabled"))
	maybe := Tristate(model.SearchOptions{"enabled": "maybe"}, "enabled")
	if assert.NotNil(t, maybe) {
		assert.False(t, *maybe)
	}
	b := Tristate(model.SearchOptions{"enabled": true}, "enabled")
	if assert.NotNil(t, b) {
		assert.True(t, *b)
	}
}

func TestNegated(t *testing.T) {
	tests := []struct {
		name string
		opts model.SearchOptions
		want *bool
	}{
		{"absent", model.SearchOptions{}, nil},
		{"empty", model.SearchOptions{"enabled": ""}, nil},
		{"false", model.SearchOptions{"enabled": "false"}, ptr(true)},
		{"true", model.SearchOptions{"enabled": "true"}, ptr(false)},
		{"other", model.SearchOptions{"enabled": "yes"}, ptr(false)},
		{"bool false", model.SearchOptions{"enabled": false}, ptr(true)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Negated(tt.opts, "enabled"))
		})
	}
}

func ptr(b bool) *bool { return &b }

func TestString(t *testing.T) {
	assert.Equal(t, "", String(model.SearchOptions{}, "q"))
	assert.Equal(t, "x", String(model.SearchOptions{"q": "x"}, "q"))
	assert.Equal(t, "7", String(model.SearchOptions{"q": 7}, "q"))
}

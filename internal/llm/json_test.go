package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around", `Sure! Here it is: {"a":1} Hope that helps.`, `{"a":1}`},
		{"no object", "OUI", "OUI"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanJSON(tt.in))
		})
	}
}

func TestRepairJSON(t *testing.T) {
	assert.Equal(t, `{"name": "x", "keywords": ["a"]}`, RepairJSON(`{name: "x", keywords: ["a",]}`))
	assert.Equal(t, `{"a": 1, "type": 2}`, RepairJSON(`{"a": 1, type": 2}`))
}

type payload struct {
	Name string `json:"name"`
	N    int    `json:"n"`
}

func (p *payload) Validate() error {
	if p.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

func TestDecodeJSON(t *testing.T) {
	fallback := payload{Name: "fallback"}

	got, err := DecodeJSON("```json\n{\"name\":\"Senso-ji\",\"n\":2}\n```", fallback)
	require.NoError(t, err)
	assert.Equal(t, payload{Name: "Senso-ji", N: 2}, got)

	got, err = DecodeJSON(`{name: "Repaired", n: 1,}`, fallback)
	require.NoError(t, err)
	assert.Equal(t, "Repaired", got.Name)

	got, err = DecodeJSON("not json at all", fallback)
	assert.Error(t, err)
	assert.Equal(t, fallback, got)

	got, err = DecodeJSON(`{"n": 3}`, fallback)
	assert.ErrorContains(t, err, "name is required")
	assert.Equal(t, fallback, got)

	got, err = DecodeJSON(`{"name": }`, fallback)
	assert.Error(t, err)
	assert.Equal(t, fallback, got)
}

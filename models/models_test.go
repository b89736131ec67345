package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabelOrderMatchesEncoding(t *testing.T) {
	for i, label := range Labels {
		assert.Equal(t, i, int(label))
	}
	assert.Equal(t, "fake", LabelFake.String())
	assert.Equal(t, "real", LabelReal.String())
	assert.Equal(t, "Real Audio", LabelReal.DisplayName())
	assert.Equal(t, "Fake Audio", LabelFake.DisplayName())
}

func TestParseLabel(t *testing.T) {
	l, err := ParseLabel(" REAL ")
	require.NoError(t, err)
	assert.Equal(t, LabelReal, l)

	_, err = ParseLabel("synthetic")
	assert.Error(t, err)
}

func TestLabelJSON(t *testing.T) {
	raw, err := json.Marshal(struct {
		L Label `json:"l"`
	}{LabelFake})
	require.NoError(t, err)
	assert.JSONEq(t, `{"l":"fake"}`, string(raw))

	var decoded struct {
		L Label `json:"l"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"l":"real"}`), &decoded))
	assert.Equal(t, LabelReal, decoded.L)

	_, err = json.Marshal(Label(7))
	assert.Error(t, err)
}

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"voiceguard/config"
)

func TestTrainConfigPrecedence(t *testing.T) {
	settings := config.Default().Train
	settings.Epochs = 20
	settings.ValidationSplit = 0.1

	tc := trainConfig(&CLI{ValidationSplit: -1}, settings)
	assert.Equal(t, 20, tc.Epochs)
	assert.Equal(t, 1, tc.BatchSize)
	assert.Equal(t, 0.1, tc.ValidationSplit)
	assert.True(t, tc.Shuffle)

	tc = trainConfig(&CLI{Epochs: 3, BatchSize: 8, LearningRate: 0.01, Seed: 9, ValidationSplit: 0, NoShuffle: true}, settings)
	assert.Equal(t, 3, tc.Epochs)
	assert.Equal(t, 8, tc.BatchSize)
	assert.Equal(t, 0.01, tc.LearningRate)
	assert.Equal(t, uint64(9), tc.Seed)
	assert.Zero(t, tc.ValidationSplit)
	assert.False(t, tc.Shuffle)
	assert.NoError(t, tc.Validate())
}

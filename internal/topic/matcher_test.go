package topic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		name      string
		filter    string
		topic     string
		wantMatch bool
	}{
		{"exact match", "home/room/temperature", "home/room/temperature", true},
		{"no match", "home/room/temperature", "home/room/humidity", false},
		{"single level wildcard", "home/+/temperature", "home/room/temperature", true},
		{"single level wildcard wrong depth", "home/+/temperature", "home/room/kitchen/temperature", false},
		{"multi level wildcard", "home/#", "home/room/temperature", true},
		{"multi level wildcard matches zero extra levels", "home/#", "home", true},
		{"bare hash matches everything", "#", "home/room/temperature", true},
		{"multiple plus wildcards", "home/+/+/temperature", "home/room/a/temperature", true},
		{"plus does not cross levels", "home/+", "home/room/temperature", false},
		{"filter longer than topic", "home/room/temperature/extra", "home/room/temperature", false},
		{"case sensitive", "Home/Room", "home/room", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMatch, Match(tt.filter, tt.topic))
		})
	}
}

func TestValidateTopic(t *testing.T) {
	assert.NoError(t, ValidateTopic("home/room/temperature"))
	assert.Error(t, ValidateTopic(""))
	assert.Error(t, ValidateTopic("home/+/temperature"))
	assert.Error(t, ValidateTopic("home/#"))
}

func TestValidateFilter(t *testing.T) {
	assert.NoError(t, ValidateFilter("home/+/temperature"))
	assert.NoError(t, ValidateFilter("home/#"))
	assert.NoError(t, ValidateFilter("#"))
	assert.Error(t, ValidateFilter(""))
	assert.Error(t, ValidateFilter("home/room#"))
	assert.Error(t, ValidateFilter("home/#/room"))
	assert.Error(t, ValidateFilter("home/room+"))
}

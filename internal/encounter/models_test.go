package encounter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormStatus(t *testing.T) {
	cases := []struct {
		code string
		want FormStatus
	}{
		{"", StatusBlank},
		{"0", StatusIncomplete},
		{"1", StatusUnverified},
		{"2", StatusComplete},
	}
	for _, tc := range cases {
		got, err := ParseFormStatus(tc.code)
		require.NoError(t, err, "code %q", tc.code)
		assert.Equal(t, tc.want, got, "code %q", tc.code)
	}
}

func TestParseFormStatusRejectsUnknownCodes(t *testing.T) {
	for _, code := range []string{"3", "-1", "complete", "Yes", " 2"} {
		_, err := ParseFormStatus(code)
		assert.Error(t, err, "code %q", code)
	}
}

func TestStatusPredicates(t *testing.T) {
	assert.True(t, StatusComplete.Complete())
	assert.False(t, StatusComplete.Started())

	assert.True(t, StatusIncomplete.Started())
	assert.True(t, StatusUnverified.Started())

	assert.False(t, StatusBlank.Started())
	assert.False(t, StatusBlank.Complete())
}

func TestNewWindowFiltersBySince(t *testing.T) {
	events := []Event{
		{Instance: 3},
		{Instance: 10},
		{Instance: 11},
	}
	w := NewWindow(events, 10)
	require.Len(t, w.Events, 2)
	assert.Equal(t, 10, w.Events[0].Instance)
	assert.Equal(t, 11, w.Events[1].Instance)
}

func TestNewWindowEmpty(t *testing.T) {
	assert.True(t, NewWindow(nil, 1).Empty())
	assert.True(t, NewWindow([]Event{{Instance: 2}}, 5).Empty())
}

package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type moodRequest struct {
	Score   int    `json:"score" validate:"min=1,max=10"`
	Comment string `json:"comment" validate:"max=10"`
	Email   string `json:"email,omitempty" validate:"omitempty,email"`
}

func TestStructReportsJSONFieldNames(t *testing.T) {
	v := New()
	err := v.Struct(moodRequest{Score: 11, Comment: "far too long comment"})
	require.Error(t, err)

	issues := Issues(err)
	require.Len(t, issues, 2)
	assert.Equal(t, "comment", issues[0].Field)
	assert.Equal(t, "must be at most 10 characters long", issues[0].Message)
	assert.Equal(t, "score", issues[1].Field)
	assert.Equal(t, "must be at most 10", issues[1].Message)
}

func TestStructValid(t *testing.T) {
	v := New()
	assert.NoError(t, v.Struct(moodRequest{Score: 7, Email: "p@example.com"}))
}

func TestIssuesOfOtherErrors(t *testing.T) {
	assert.Nil(t, Issues(assert.AnError))
}

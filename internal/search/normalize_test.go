package search

import (
	"strings"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeNonBreakingSpaces(t *testing.T) {
	raw := "There are no results that\u00a0match your search.\u00a0Try again."
	assert.Equal(t, "there are no results that match your search. try again.", Normalize(raw))
}

// FuzzNormalize checks the shape of normalized text for arbitrary input.
func FuzzNormalize(f *testing.F) {
	f.Add([]byte("Search\u00a0History  is EMPTY"))
	f.Fuzz(func(t *testing.T, data []byte) {
		consumer := fuzz.NewConsumer(data)
		text, err := consumer.GetString()
		if err != nil {
			return
		}
		phrase, err := consumer.GetString()
		if err != nil {
			return
		}
		got := Normalize(text)
		assert.NotContains(t, got, "  ")
		assert.NotContains(t, got, "\u00a0")
		assert.Equal(t, strings.TrimSpace(got), got)
		// Every text contains itself once normalized.
		assert.True(t, ContainsAll(text, text))
		_ = ContainsAll(text, phrase)
	})
}

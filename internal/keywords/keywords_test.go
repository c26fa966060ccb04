package keywords

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTermsDropsStopWords(t *testing.T) {
	t.Parallel()

	terms := Terms("The Raft protocol is a consensus protocol for the cluster.")
	assert.Equal(t, []string{"raft", "protocol", "consensus", "protocol", "cluster"}, terms)
}

func TestTopRanksByFrequencyThenFirstSeen(t *testing.T) {
	t.Parallel()

	texts := []string{
		"golang channels and golang goroutines",
		"goroutines scheduling, channels everywhere",
		"garbage collection",
	}

	assert.Equal(t, []string{"golang", "channels", "goroutines"}, Top(texts, 3))
	assert.Equal(t, []string{"golang", "channels", "goroutines", "scheduling", "everywhere", "garbage", "collection"}, Top(texts, 10))
	assert.Empty(t, Top(texts, 0))
	assert.Empty(t, Top([]string{"the and of"}, 5))
}

func TestName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Golang", Name([]string{"golang", "channels"}))
	assert.Equal(t, "Self-Hosting", Name([]string{"self-hosting"}))
	assert.Equal(t, DefaultName, Name(nil))
}

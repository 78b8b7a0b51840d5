package refine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRewriter struct {
	output string
	err    error
	calls  int
}

func (f *fakeRewriter) RewriteText(ctx context.Context, instruction string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.output, nil
}

const originalPrompt = "Mina plays in the yard, MAIN FOCUS: Mina: black hair, soft watercolor"

func TestRefineEditedPromptWinsVerbatim(t *testing.T) {
	rewriter := &fakeRewriter{output: "should not be used"}
	r := NewRefiner(rewriter)

	edited := "A completely hand-written prompt"
	out := r.Refine(context.Background(), originalPrompt, "too many people", "Mina plays in the yard", edited)

	assert.Equal(t, edited, out)
	assert.Zero(t, rewriter.calls)
}

func TestRefineEditedPromptEqualToOriginalIsIgnored(t *testing.T) {
	r := NewRefiner(nil)

	out := r.Refine(context.Background(), originalPrompt, "extra person in the image", "Mina plays in the yard", originalPrompt)

	// 원본과 동일한 "수정"은 수정이 아니므로 피드백 보정이 적용된다
	assert.NotEqual(t, originalPrompt, out)
	assert.Contains(t, out, "ONLY")
}

func TestRefineEmptyFeedbackReturnsOriginal(t *testing.T) {
	r := NewRefiner(nil)

	out := r.Refine(context.Background(), originalPrompt, "   ", "Mina plays in the yard", "")

	assert.Equal(t, originalPrompt, out)
}

func TestRefineAIRewriteUsed(t *testing.T) {
	rewriter := &fakeRewriter{output: "Mina plays in the yard, ONLY Mina appears, no extra people"}
	r := NewRefiner(rewriter)

	out := r.Refine(context.Background(), originalPrompt, "there is an extra person", "Mina plays in the yard", "")

	assert.Equal(t, 1, rewriter.calls)
	assert.Equal(t, rewriter.output, out)
}

func TestRefineAIFailureFallsBackToRules(t *testing.T) {
	rewriter := &fakeRewriter{err: errors.New("quota exceeded")}
	r := NewRefiner(rewriter)

	out := r.Refine(context.Background(), originalPrompt, "there is an extra person", "Mina plays in the yard", "")

	assert.Equal(t, 1, rewriter.calls)
	assert.True(t, strings.HasPrefix(out, originalPrompt))
	assert.Contains(t, out, "ONLY")
	assert.Contains(t, out, "no extra people")
}

func TestRefineNilRewriterUsesRules(t *testing.T) {
	r := NewRefiner(nil)

	out := r.Refine(context.Background(), originalPrompt, "her hands look wrong", "Mina plays in the yard", "")

	assert.Contains(t, out, "anatomy")
	assert.Contains(t, out, "five fingers per hand")
}

func TestRefineUnmatchedFeedbackGetsGenericClause(t *testing.T) {
	r := NewRefiner(nil)

	out := r.Refine(context.Background(), originalPrompt, "it just looks off somehow", "Mina plays in the yard", "")

	assert.Contains(t, out, genericFixClause)
}

func TestRefineAnimalClauseAppended(t *testing.T) {
	r := NewRefiner(nil)

	out := r.Refine(context.Background(), originalPrompt, "extra person", "Mina plays with her puppy in the yard", "")

	assert.Contains(t, out, animalSeparationClause)
}

func TestRefineNoAnimalClauseWithoutAnimals(t *testing.T) {
	r := NewRefiner(nil)

	out := r.Refine(context.Background(), originalPrompt, "extra person", "Mina plays in the yard", "")

	assert.NotContains(t, out, animalSeparationClause)
}

func TestRefineBoundedLength(t *testing.T) {
	r := NewRefiner(nil)

	longPrompt := strings.Repeat("a very long scene description, ", 40)
	out := r.Refine(context.Background(), longPrompt, "extra person and wrong hands and missing character", "Mina and her puppy", "")

	assert.LessOrEqual(t, len(out), maxRefinedPromptLen)
}

func TestRefineMultipleRulesStack(t *testing.T) {
	r := NewRefiner(nil)

	out := r.Refine(context.Background(), originalPrompt, "extra person and the hands are distorted", "Mina plays in the yard", "")

	assert.Contains(t, out, "no extra people")
	assert.Contains(t, out, "anatomy")
}

func TestCleanRewrittenPrompt(t *testing.T) {
	require.Equal(t, "hello world", cleanRewrittenPrompt("```\nhello world\n```"))
	require.Equal(t, "hello", cleanRewrittenPrompt("\"hello\""))
	require.Equal(t, "hello", cleanRewrittenPrompt("  hello  "))
}

func TestContainsAnimalWord(t *testing.T) {
	assert.True(t, ContainsAnimalWord("Mina hugs her Puppy"))
	assert.True(t, ContainsAnimalWord("a dragon flies overhead"))
	assert.False(t, ContainsAnimalWord("Mina reads a book"))
}

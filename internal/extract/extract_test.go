package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanText_JoinsHyphenatedWords(t *testing.T) {
	in := "The consti-\ntution guarantees funda-\nmental rights."
	out := CleanText(in)
	assert.Equal(t, "The constitution guarantees fundamental rights.", out)
}

func TestCleanText_CollapsesSpaceRuns(t *testing.T) {
	in := "Article   14\t\tguarantees    equality."
	out := CleanText(in)
	assert.Equal(t, "Article 14 guarantees equality.", out)
}

func TestCleanText_PreservesNewlines(t *testing.T) {
	in := "FUNDAMENTAL RIGHTS\nArticle 14.\nArticle 19."
	out := CleanText(in)
	assert.Equal(t, in, out)
}

func TestCleanText_TrimsSurroundingWhitespace(t *testing.T) {
	assert.Equal(t, "text", CleanText("  \n\ntext \t\n"))
	assert.Equal(t, "", CleanText("   \n\t  "))
}

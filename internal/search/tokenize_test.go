package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize_Empty(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Tokenize(""))
	assert.Nil(t, Tokenize("   "))
}

func TestTokenize_LowercasesAndDropsStopWords(t *testing.T) {
	t.Parallel()

	got := Tokenize("The payment IS due")
	assert.Equal(t, []string{"payment", "due"}, got)
}

func TestTokenize_PreservesDollarAmounts(t *testing.T) {
	t.Parallel()

	got := Tokenize("loan payment of $2,100 monthly")
	assert.Contains(t, got, "$2,100")
}

func TestTokenize_PreservesPercentages(t *testing.T) {
	t.Parallel()

	got := Tokenize("recall improved to 91.7% overall")
	assert.Contains(t, got, "91.7%")
}

func TestTokenize_PreservesIDCodes(t *testing.T) {
	t.Parallel()

	got := Tokenize("ticket ABC-123 was filed")
	assert.Contains(t, got, "abc-123")
}

func TestTokenize_PreservesTimeRanges(t *testing.T) {
	t.Parallel()

	got := Tokenize("the 18-24 month objective")
	assert.Contains(t, got, "18-24 month")
}

func TestTokenize_KeepsNumericStopwordLookalikes(t *testing.T) {
	t.Parallel()

	// Tokens carrying digits or $%- survive even if they collide with a
	// stop word after lowering.
	got := Tokenize("pay 128,000 on-time")
	assert.Contains(t, got, "128,000")
	assert.Contains(t, got, "on-time")
}

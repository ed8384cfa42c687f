package ledger

import (
	"fmt"
	"math"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

// addChecked returns a+b or ErrArithmeticOverflow when the sum does not fit
// in an int64. Balance arithmetic is never allowed to wrap.
func addChecked(a, b int64) (int64, error) {
	if b > 0 && a > math.MaxInt64-b {
		return 0, fmt.Errorf("ledger: %d + %d: %w", a, b, domain.ErrArithmeticOverflow)
	}
	if b < 0 && a < math.MinInt64-b {
		return 0, fmt.Errorf("ledger: %d + %d: %w", a, b, domain.ErrArithmeticOverflow)
	}
	return a + b, nil
}

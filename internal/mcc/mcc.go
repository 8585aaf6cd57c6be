// Public domain.

// Package mcc scores membership assignments against known truth with the
// Matthews correlation coefficient.
//
// MCC gives a meaningful measure of a classifier even when the class sizes
// are very different, as for a small association in a large field.
package mcc

import (
	"fmt"
	"io"
	"math"
)

// Confusion is a two class confusion matrix.
type Confusion struct {
	TP, FN, FP, TN int
}

// Add counts one star.
func (c *Confusion) Add(predicted, actual bool) {
	switch {
	case predicted && actual:
		c.TP++
	case actual:
		c.FN++
	case predicted:
		c.FP++
	default:
		c.TN++
	}
}

// Classify predicts membership for scores at or above threshold and counts
// the predictions against actual.
func Classify(scores []float64, actual []bool, threshold float64) Confusion {
	var c Confusion
	for i, s := range scores {
		c.Add(s >= threshold, actual[i])
	}
	return c
}

// Total returns the number of stars counted.
func (c Confusion) Total() int { return c.TP + c.FN + c.FP + c.TN }

// MCC returns the Matthews correlation coefficient, 0 when any margin of
// the matrix is empty.
func (c Confusion) MCC() float64 {
	tp := float64(c.TP)
	fn := float64(c.FN)
	fp := float64(c.FP)
	tn := float64(c.TN)
	if d := (tp + fp) * (tp + fn) * (tn + fp) * (tn + fn); d > 0 {
		return (tp*tn - fp*fn) / math.Sqrt(d)
	}
	return 0
}

// Report writes the matrix and coefficient in the layout of a two by two
// table.  prec is the number of decimals of threshold.
func (c Confusion) Report(w io.Writer, threshold float64, prec int) error {
	_, err := fmt.Fprintf(w, `Total stars:        %d
Threshold:          %.*f

                       predicted
                    -----------------------
                     member    non-member
Actual member         %7d       %7d
Actual non-member     %7d       %7d

Matthews correlation coefficient: %.2f
`, c.Total(), prec, threshold, c.TP, c.FN, c.FP, c.TN, c.MCC())
	return err
}

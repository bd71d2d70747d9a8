package capture

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ValidatePDF checks that the printed output is a well-formed PDF. Chrome
// occasionally emits a truncated stream when the target closes mid-print;
// catching it here beats handing a broken file to the caller.
func ValidatePDF(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty pdf output")
	}
	conf := model.NewDefaultConfiguration()
	if err := api.Validate(bytes.NewReader(data), conf); err != nil {
		return fmt.Errorf("pdfcpu validate: %w", err)
	}
	return nil
}

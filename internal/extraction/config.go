package extraction

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Config holds the pipeline settings collected from flags
type Config struct {
	SourceDir   string `validate:"required"`
	OutputDir   string `validate:"required"`
	LedgerPath  string `validate:"required"`
	PageWorkers int    `validate:"gte=1,lte=32"`
	Resume      bool
	WriteXLSX   bool
}

// Validate reports missing directories and out-of-range worker counts
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid extraction config: %w", err)
	}
	return nil
}

package engine

import (
	"github.com/smersh1307n2/ESPB-sub001/api"
	"github.com/smersh1307n2/ESPB-sub001/internal/espbruntime"
)

// readRegIndex reads one u8 register-index operand and validates it
// against the current frame, the bounds check spec.md §3's
// "max_reg_used bounds validation" describes.
func (ec *execContext) readRegIndex() (int, error) {
	idx := int(ec.u8())
	if idx < 0 || idx >= len(ec.frame) {
		return 0, espbruntime.ErrInvalidRegisterIndex
	}
	return idx, nil
}

// readReg reads a register-index operand and returns that register's
// current value.
func (ec *execContext) readReg() (api.Value, error) {
	idx, err := ec.readRegIndex()
	if err != nil {
		return api.Void, err
	}
	return ec.frame[idx], nil
}

func (ec *execContext) setReg(idx int, v api.Value) error {
	if idx < 0 || idx >= len(ec.frame) {
		return espbruntime.ErrInvalidRegisterIndex
	}
	ec.frame[idx] = v
	return nil
}

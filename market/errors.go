package market

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidParameter 参数不满足前置条件（窗口、资金、手续费率、仓位比例等）
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrInsufficientData 价格序列长度不足，指标永远无法计算出有效值
	ErrInsufficientData = errors.New("insufficient data")
)

// ParameterError 参数错误
type ParameterError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("%s: %s=%v, %s", ErrInvalidParameter, e.Field, e.Value, e.Reason)
}

func (e *ParameterError) Unwrap() error {
	return ErrInvalidParameter
}

// InvalidParam 构造参数错误
func InvalidParam(field string, value interface{}, reason string) error {
	return &ParameterError{Field: field, Value: value, Reason: reason}
}

// DataError 数据不足错误
type DataError struct {
	Have int // 实际长度
	Need int // 所需最小长度
}

func (e *DataError) Error() string {
	return fmt.Sprintf("%s: series has %d points, need at least %d", ErrInsufficientData, e.Have, e.Need)
}

func (e *DataError) Unwrap() error {
	return ErrInsufficientData
}

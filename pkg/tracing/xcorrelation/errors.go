package xcorrelation

import "errors"

var (
	// ErrEmptyKey key 为空，Put 不做任何修改
	ErrEmptyKey = errors.New("xcorrelation: empty key")

	// ErrValueTooLong 值超过长度上限，Put 被拒绝
	ErrValueTooLong = errors.New("xcorrelation: value exceeds max length")

	// ErrTooManyElements 新 key 达到元素数量上限，Put 被拒绝
	ErrTooManyElements = errors.New("xcorrelation: element count reached limit")
)

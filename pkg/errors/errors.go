package errors

import "errors"

// ErrOptimisticLock 条件更新未命中：记录已被其他操作修改或已处于终态
// 各 Service 负责把它翻译成各自的业务错误（如 AlreadyPaid / InvalidTransition）
var ErrOptimisticLock = errors.New("数据已被其他操作修改，请刷新后重试")

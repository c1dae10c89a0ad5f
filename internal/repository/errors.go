package repository

import (
	"errors"

	"github.com/lib/pq"
)

// ErrDuplicateEmail はメールアドレスの一意制約違反を表す。
var ErrDuplicateEmail = errors.New("email already registered")

// uniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
const uniqueViolation = "23505"

// isUniqueViolation はエラーが一意制約違反かどうかを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	return false
}

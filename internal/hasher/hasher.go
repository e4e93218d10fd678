// Пакет hasher — детерминированный контент-хэш нормализованных байтов.
// SHA-256, канонический вид — 64 hex-символа в нижнем регистре.
// Без соли и per-call случайности: hash(x) == hash(x) всегда.
package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// HashHexLength — длина канонической hex-формы хэша.
const HashHexLength = 64

// Sum возвращает SHA-256 хэш данных в каноническом hex-виде.
func Sum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ValidateHex проверяет, что строка — канонический 64-символьный
// lowercase hex контент-хэш. Любая другая длина или регистр —
// ошибка валидации, не промах поиска.
func ValidateHex(hash string) error {
	if len(hash) != HashHexLength {
		return fmt.Errorf("content_hash должен содержать %d hex-символов, получено %d", HashHexLength, len(hash))
	}
	for i := 0; i < len(hash); i++ {
		c := hash[i]
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') {
			continue
		}
		return fmt.Errorf("content_hash содержит недопустимый символ %q на позиции %d (допустимы 0-9, a-f)", c, i)
	}
	return nil
}

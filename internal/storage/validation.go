package storage

import "errors"

var ErrKeyFormatInvalid = errors.New("key format invalid")

const maxKeyLength = 1024

// watermark ids are "thali" + base64url, so '-' and '_' are both allowed
func validateKeyFormat(key string) bool {
	if len(key) == 0 || len(key) > maxKeyLength {
		return false
	}
	for _, ch := range []rune(key) {
		if (ch >= '0' && ch <= '9') ||
			(ch >= 'a' && ch <= 'z') ||
			(ch >= 'A' && ch <= 'Z') ||
			(ch == '_') || (ch == '-') {
			continue
		} else {
			return false
		}
	}
	return true
}

package runner

import (
	"fmt"
	"unicode/utf16"
)

// idSeparator joins module and test names before hashing so that
// ("a", "bc") and ("ab", "c") produce different ids.
const idSeparator = "\x1C"

// missingPart stands in for the absent test name when a single name is
// hashed. Together with idSeparator it makes module ids and seeded orders
// match the ones a QUnit browser run produces for the same names.
const missingPart = "undefined"

// hashString returns the 32-bit shift-add hash of s as 8 lowercase hex
// digits, computed over UTF-16 code units.
func hashString(s string) string {
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = (h << 5) - h + int32(c)
	}
	return fmt.Sprintf("%08x", uint32(h))
}

// TestID returns the id of test name declared in module (full name).
func TestID(module, name string) string {
	return hashString(module + idSeparator + name)
}

// ModuleID returns the id of a module by its full name ("parent > child").
func ModuleID(fullName string) string {
	return hashName(fullName)
}

func hashName(s string) string {
	return hashString(s + idSeparator + missingPart)
}

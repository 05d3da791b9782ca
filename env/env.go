package env

import (
	"log"
	"os"
	"strconv"
	"strings"
)

// Default returns the trimmed value of the named variable or defaultValue
// when it is unset or blank. The chosen value is logged.
func Default(name, defaultValue string) string {
	name = strings.TrimSpace(name)
	defaultValue = strings.TrimSpace(defaultValue)
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		log.Println("# ", name, "=", v)
		return v
	}
	log.Println("# ", name, "=", defaultValue, "(default)")
	return defaultValue
}

// Int is Default for integer values. Values that do not parse fall back to
// defaultValue.
func Int(name string, defaultValue int) int {
	v := Default(name, strconv.Itoa(defaultValue))
	i, err := strconv.Atoi(v)
	if err != nil {
		log.Println("# ", name, "=", defaultValue, "(invalid:", v+")")
		return defaultValue
	}
	return i
}

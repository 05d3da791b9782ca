package env

import (
	"log"
	"os"
	"strings"
)

type secret string

func (s secret) String() string {
	if s == "" {
		return "(nil)"
	}
	return "***"
}

func (s secret) Secret() string {
	return string(s)
}

// Secret is Default for values that must not show up in logs.
func Secret(name, defaultValue string) secret {
	name = strings.TrimSpace(name)
	defaultValue = strings.TrimSpace(defaultValue)
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		log.Println("# ", name, "=", secret(v))
		return secret(v)
	}
	log.Println("# ", name, "=", secret(defaultValue), "(default)")
	return secret(defaultValue)
}

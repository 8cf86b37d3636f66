package env

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

var Env map[string]string

// GetEnv returns the value from the loaded .env map, then the OS environment,
// then def.
func GetEnv(key, def string) string {
	if val, ok := Env[key]; ok {
		return val
	}
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// GetInt parses an integer setting. Unparsable values fall back to def.
func GetInt(key string, def int) int {
	raw := strings.TrimSpace(GetEnv(key, ""))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("[Env] invalid integer for %s=%q, using default %d", key, raw, def)
		return def
	}
	return v
}

// GetBool parses a boolean setting. Unparsable values fall back to def.
func GetBool(key string, def bool) bool {
	raw := strings.TrimSpace(GetEnv(key, ""))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("[Env] invalid boolean for %s=%q, using default %t", key, raw, def)
		return def
	}
	return v
}

// SetupEnvFile loads the first .env found in the project root candidates.
// Running without one is fine when the process gets its settings from the
// real environment (containers, CI).
func SetupEnvFile() {
	envFiles := []string{
		".env",
		"../../.env",    // from cmd/<binary>
		"../../../.env", // deeper nesting (tests)
	}

	var err error
	for _, envFile := range envFiles {
		Env, err = godotenv.Read(envFile)
		if err == nil {
			return
		}
	}

	Env = map[string]string{}
	log.Printf("[Env] no .env file found, using process environment only")
}

func IsDev() bool {
	return GetEnv("APP_ENV", "prod") == "dev"
}

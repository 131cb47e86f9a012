package config

import (
	"os"
	"testing"
)

func FuzzLoadConfig(f *testing.F) {
	// Seed with minimal valid config
	f.Add([]byte(`
[sort]
numDigits = 2
input = "/tmp/keys.txt"
`))

	// Seed with empty config
	f.Add([]byte(""))

	// Seed with serve config
	f.Add([]byte(`
[serve]
port = "5044"
readTimeout = "5s"
batchMax = 1000
`))

	// Seed with a top-level key
	f.Add([]byte(`numDigits = 3`))

	f.Fuzz(func(t *testing.T, data []byte) {
		tmpDir := t.TempDir()
		configPath := tmpDir + "/fuzz.toml"
		if err := os.WriteFile(configPath, data, 0644); err != nil {
			return
		}
		// Should not panic, invalid configs return errors
		config, err := LoadConfig(configPath)
		if err != nil {
			return
		}
		config.ValidateSort()
		config.ValidateServe()
		config.ValidateInspect()
	})
}

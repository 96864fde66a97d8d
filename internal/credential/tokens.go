package credential

import (
	"bufio"
	"os"
	"strings"

	"github.com/ohmynofan/naoris-device-bot/internal/domain/model"
)

// ReadTokens returns the non-empty lines of a tokens file.
func ReadTokens(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &model.ConfigError{Source: path, Err: err}
	}
	defer file.Close()

	var tokens []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		tokens = append(tokens, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, &model.ConfigError{Source: path, Err: err}
	}
	return tokens, nil
}

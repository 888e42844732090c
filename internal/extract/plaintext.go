package extract

import (
	"context"
	"fmt"
	"os"
)

type PlainTextExtractor struct{}

func (e *PlainTextExtractor) Extract(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read text file: %w", err)
	}
	return string(data), nil
}

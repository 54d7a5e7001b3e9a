package executor

import (
	"fmt"
	"os"
)

func openLocalForRead(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open local file %s: %w", path, err)
	}
	return f, nil
}

func createLocalForWrite(path string) (*os.File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create local file %s: %w", path, err)
	}
	return f, nil
}

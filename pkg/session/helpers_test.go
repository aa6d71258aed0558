package session

import "os"

func writeProgressFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0644)
}

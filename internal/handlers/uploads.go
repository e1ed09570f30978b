package handlers

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

const maxUploadMemory = 32 << 20

// stageUpload copies the named multipart file into the local temp directory
// and returns its staged path plus a cleanup func. Callers must defer cleanup
// so the staged file is removed regardless of how the request ends.
func stageUpload(r *http.Request, field, tempDir string) (string, func(), error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return "", nil, fmt.Errorf("%s file is required", field)
	}
	defer file.Close()

	ext := filepath.Ext(header.Filename)
	staged, err := os.CreateTemp(tempDir, "upload-*"+ext)
	if err != nil {
		return "", nil, fmt.Errorf("stage %s upload: %w", field, err)
	}

	if _, err := io.Copy(staged, file); err != nil {
		staged.Close()
		os.Remove(staged.Name())
		return "", nil, fmt.Errorf("stage %s upload: %w", field, err)
	}
	if err := staged.Close(); err != nil {
		os.Remove(staged.Name())
		return "", nil, fmt.Errorf("stage %s upload: %w", field, err)
	}

	path := staged.Name()
	cleanup := func() { os.Remove(path) }
	return path, cleanup, nil
}

// anyBlank reports whether any of the values is empty after trimming.
func anyBlank(values ...string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return true
		}
	}
	return false
}

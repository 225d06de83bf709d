package network

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// Resolver maps an opaque destination identifier to the location a Transport sends to.
type Resolver func(destination string) (string, error)

// ProjectFilesURL returns a Resolver producing <baseURL>/api/projects/<destination>/files.
func ProjectFilesURL(baseURL string) Resolver {
	base := strings.TrimSuffix(baseURL, "/")
	return func(destination string) (string, error) {
		if destination == "" {
			return "", fmt.Errorf("destination must not be empty")
		}
		return fmt.Sprintf("%s/api/projects/%s/files", base, url.PathEscape(destination)), nil
	}
}

// ObjectPrefix returns a Resolver producing an object key prefix below prefix.
func ObjectPrefix(prefix string) Resolver {
	return func(destination string) (string, error) {
		if destination == "" {
			return "", fmt.Errorf("destination must not be empty")
		}
		if strings.Contains(destination, "..") {
			return "", fmt.Errorf("invalid destination: %s", destination)
		}
		return strings.TrimPrefix(path.Join(prefix, destination), "/"), nil
	}
}

func objectKey(prefix string, req Request) string {
	name := path.Base(req.File.Name())
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// Package fs holds the file system helpers used to keep key material and
// databases under the node's configuration folder.
package fs

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
)

const defaultDirectoryPermission = 0740

// HomeFolder returns the home folder of the current user
func HomeFolder() string {
	u, err := user.Current()
	if err != nil {
		return os.TempDir()
	}
	return u.HomeDir
}

// CreateSecureFolder creates the folder with owner-only write permission if it
// does not exist yet, and returns its path.
func CreateSecureFolder(folder string) (string, error) {
	exists, err := Exists(folder)
	if err != nil {
		return "", err
	}
	if !exists {
		if err := os.MkdirAll(folder, defaultDirectoryPermission); err != nil {
			return "", fmt.Errorf("creating folder %s: %w", folder, err)
		}
		return folder, nil
	}
	info, err := os.Lstat(folder)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a folder", folder)
	}
	return folder, nil
}

// Exists returns whether the given file or directory exists.
func Exists(filePath string) (bool, error) {
	_, err := os.Stat(filePath)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return true, err
}

// WriteSecureFile writes data to a file readable and writable by its owner only.
func WriteSecureFile(file string, data []byte) error {
	if _, err := CreateSecureFolder(filepath.Dir(file)); err != nil {
		return err
	}
	return os.WriteFile(file, data, 0600)
}
